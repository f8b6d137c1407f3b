package messaging

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

type fakeProducer struct {
	mu       sync.Mutex
	startErr error
	closeErr error
	started  bool
	closes   int
	sent     []Message
}

func (p *fakeProducer) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	return nil
}

func (p *fakeProducer) Send(_ context.Context, _, _ string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return p.closeErr
}

type fakeConsumer struct {
	name     string
	startErr error
	stopErr  error
	// deliver is sent to the handler asynchronously right after Start.
	deliver []byte

	mu      sync.Mutex
	running bool
	stops   int
	handled chan bool
}

func (c *fakeConsumer) Name() string { return c.name }

func (c *fakeConsumer) Start(ctx context.Context, h Handler) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	if c.deliver != nil {
		go func() { c.handled <- h(ctx, c.deliver) }()
	}
	return nil
}

func (c *fakeConsumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.stops++
	return c.stopErr
}

func (c *fakeConsumer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func specFor(c *fakeConsumer, h Handler) ConsumerSpec {
	return ConsumerSpec{
		Name:    c.name,
		New:     func() (Consumer, error) { return c, nil },
		Handler: func(Producer) Handler { return h },
	}
}

func okHandler(context.Context, []byte) bool { return true }

func TestManagerStartAndStop(t *testing.T) {
	producer := &fakeProducer{}
	entity := &fakeConsumer{name: "entity"}
	syncC := &fakeConsumer{name: "sync"}

	m := NewManager(func() (Producer, error) { return producer, nil },
		[]ConsumerSpec{specFor(entity, okHandler), specFor(syncC, okHandler)}, zap.NewNop())
	assert.Equal(t, StateUnstarted, m.State())

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateRunning, m.State())
	assert.True(t, m.Running())
	assert.Same(t, producer, m.Producer())
	assert.True(t, entity.isRunning())
	assert.True(t, syncC.isRunning())

	require.NoError(t, m.Stop())
	assert.Equal(t, StateStopped, m.State())
	assert.False(t, entity.isRunning())
	assert.False(t, syncC.isRunning())
	assert.Equal(t, 1, producer.closes)
	assert.Nil(t, m.Producer())
}

func TestManagerStartIsOneShot(t *testing.T) {
	m := NewManager(func() (Producer, error) { return &fakeProducer{}, nil }, nil, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestManagerProducerFailureIsFatal(t *testing.T) {
	consumerBuilt := false
	m := NewManager(
		func() (Producer, error) { return &fakeProducer{startErr: stderrors.New("no brokers")}, nil },
		[]ConsumerSpec{{
			Name: "entity",
			New: func() (Consumer, error) {
				consumerBuilt = true
				return &fakeConsumer{name: "entity"}, nil
			},
			Handler: func(Producer) Handler { return okHandler },
		}},
		zap.NewNop())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStartup))
	assert.False(t, consumerBuilt, "consumers must not start before the producer")
	assert.Equal(t, StateStopped, m.State())
}

func TestManagerClosesProducerWhenStartFails(t *testing.T) {
	tests := []struct {
		name     string
		closeErr error
	}{
		{name: "close succeeds"},
		{name: "close fails", closeErr: stderrors.New("close failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &fakeProducer{startErr: stderrors.New("partial start"), closeErr: tt.closeErr}
			m := NewManager(func() (Producer, error) { return producer, nil }, nil, zap.NewNop())

			err := m.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, producer.startErr)
			if tt.closeErr != nil {
				assert.ErrorIs(t, err, tt.closeErr)
			}
			assert.Equal(t, 1, producer.closes)
			assert.Nil(t, m.Producer())
			assert.Equal(t, StateStopped, m.State())
		})
	}
}

func TestManagerConsumerFailureRollsBack(t *testing.T) {
	producer := &fakeProducer{}
	first := &fakeConsumer{name: "entity"}
	second := &fakeConsumer{name: "sync", startErr: stderrors.New("group join failed")}
	third := &fakeConsumer{name: "audit"}

	m := NewManager(func() (Producer, error) { return producer, nil },
		[]ConsumerSpec{specFor(first, okHandler), specFor(second, okHandler), specFor(third, okHandler)},
		zap.NewNop())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStartup))
	consumer, _ := errors.Detail(err, "consumer")
	assert.Equal(t, "sync", consumer)

	assert.False(t, first.isRunning())
	assert.Equal(t, 1, first.stops)
	assert.False(t, third.isRunning())
	assert.Equal(t, 1, producer.closes)
	assert.Equal(t, StateStopped, m.State())

	// Stop after a failed start does not release the producer again.
	require.NoError(t, m.Stop())
	assert.Equal(t, 1, producer.closes)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	producer := &fakeProducer{}
	c := &fakeConsumer{name: "sync"}
	m := NewManager(func() (Producer, error) { return producer, nil },
		[]ConsumerSpec{specFor(c, okHandler)}, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	assert.Equal(t, 1, producer.closes)
	assert.Equal(t, 1, c.stops)
}

func TestManagerStopBeforeStart(t *testing.T) {
	m := NewManager(func() (Producer, error) { return &fakeProducer{}, nil }, nil, zap.NewNop())
	require.NoError(t, m.Stop())
	assert.Equal(t, StateStopped, m.State())
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
}

func TestManagerStopLogsConsumerFailure(t *testing.T) {
	producer := &fakeProducer{}
	failing := &fakeConsumer{name: "entity", stopErr: stderrors.New("close failed")}
	ok := &fakeConsumer{name: "sync"}
	m := NewManager(func() (Producer, error) { return producer, nil },
		[]ConsumerSpec{specFor(failing, okHandler), specFor(ok, okHandler)}, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeShutdown))
	assert.Equal(t, 1, ok.stops)
	assert.Equal(t, 1, producer.closes)
	assert.Equal(t, StateStopped, m.State())
}

func TestManagerGatesHandlersUntilRunning(t *testing.T) {
	var m *Manager
	observed := make(chan State, 1)
	early := &fakeConsumer{name: "entity", deliver: []byte("{}"), handled: make(chan bool, 1)}
	slow := &fakeConsumer{name: "sync"}

	slowSpec := ConsumerSpec{
		Name: "sync",
		New: func() (Consumer, error) {
			// Give the early consumer's delivery a chance to race startup.
			time.Sleep(20 * time.Millisecond)
			return slow, nil
		},
		Handler: func(Producer) Handler { return okHandler },
	}
	earlySpec := specFor(early, func(context.Context, []byte) bool {
		observed <- m.State()
		return true
	})

	m = NewManager(func() (Producer, error) { return &fakeProducer{}, nil },
		[]ConsumerSpec{earlySpec, slowSpec}, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	assert.True(t, <-early.handled)
	assert.Equal(t, StateRunning, <-observed)
}

func TestManagerGateRejectsAfterFailedStart(t *testing.T) {
	early := &fakeConsumer{name: "entity", deliver: []byte("{}"), handled: make(chan bool, 1)}
	broken := &fakeConsumer{name: "sync", startErr: stderrors.New("boom")}
	called := false

	m := NewManager(func() (Producer, error) { return &fakeProducer{}, nil },
		[]ConsumerSpec{
			specFor(early, func(context.Context, []byte) bool { called = true; return true }),
			specFor(broken, okHandler),
		}, zap.NewNop())
	require.Error(t, m.Start(context.Background()))

	assert.False(t, <-early.handled)
	assert.False(t, called)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestManagerSendUsesRunningProducer(t *testing.T) {
	producer := &fakeProducer{}
	m := NewManager(func() (Producer, error) { return producer, nil }, nil, zap.NewNop())

	err := m.Send(context.Background(), "record-events", "org-1", Message{EventType: "newRecord"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProducerNotRunning))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Send(context.Background(), "record-events", "org-1", Message{EventType: "newRecord"}))
	require.Len(t, producer.sent, 1)
	assert.Equal(t, "newRecord", producer.sent[0].EventType)

	require.NoError(t, m.Stop())
	err = m.Send(context.Background(), "record-events", "org-1", Message{EventType: "newRecord"})
	assert.True(t, errors.Is(err, ErrProducerNotRunning))
}
