package messaging

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
)

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New(errors.ErrorTypeStartup, "messaging already started")

// State is the Manager lifecycle state.
type State int32

const (
	StateUnstarted State = iota
	StateProducerStarted
	StateConsumersStarted
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateProducerStarted:
		return "producer_started"
	case StateConsumersStarted:
		return "consumers_started"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ConsumerSpec describes one named consumer. Handler receives the started
// producer so handlers can publish.
type ConsumerSpec struct {
	Name    string
	New     func() (Consumer, error)
	Handler func(p Producer) Handler
}

// Manager starts the producer before any consumer and stops consumers
// before the producer. Consumer handlers are held back until every consumer
// has started.
type Manager struct {
	newProducer func() (Producer, error)
	specs       []ConsumerSpec
	logger      *zap.Logger

	mu        sync.Mutex
	state     atomic.Int32
	consumers []Consumer

	// pmu guards producer apart from mu so Send never waits on Start or Stop.
	pmu      sync.RWMutex
	producer Producer

	ready     chan struct{}
	readyOnce sync.Once
	// started is written before ready is closed and read only after.
	started bool
}

// NewManager creates a manager for one producer and the given consumers.
func NewManager(newProducer func() (Producer, error), specs []ConsumerSpec, logger *zap.Logger) *Manager {
	return &Manager{
		newProducer: newProducer,
		specs:       specs,
		logger:      logger.With(zap.String("component", "messaging_manager")),
		ready:       make(chan struct{}),
	}
}

// Start brings up the producer and then each consumer in order. It may be
// called once; a failed Start leaves the manager Stopped with nothing
// running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadState() != StateUnstarted {
		return errors.Wrap(ErrAlreadyStarted, errors.ErrorTypeStartup, "cannot start messaging").
			WithDetail("state", m.loadState().String())
	}

	producer, err := m.newProducer()
	if err == nil {
		if err = producer.Start(ctx); err != nil {
			if closeErr := producer.Close(); closeErr != nil {
				m.logger.Warn("failed to close producer after failed start", zap.Error(closeErr))
				err = multierr.Append(err, closeErr)
			}
		}
	}
	if err != nil {
		m.abortStart()
		m.logger.Error("failed to start producer", zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeStartup, "failed to start producer")
	}
	m.pmu.Lock()
	m.producer = producer
	m.pmu.Unlock()
	m.setState(StateProducerStarted)
	m.logger.Info("producer started")

	for _, spec := range m.specs {
		consumer, err := spec.New()
		if err == nil {
			err = consumer.Start(ctx, m.gate(spec.Handler(producer)))
		}
		if err != nil {
			m.logger.Error("failed to start consumer, rolling back",
				zap.String("consumer", spec.Name),
				zap.Int("started", len(m.consumers)),
				zap.Error(err))
			m.stopConsumers()
			m.releaseProducer()
			m.abortStart()
			return errors.Wrap(err, errors.ErrorTypeStartup, "failed to start consumer").
				WithDetail("consumer", spec.Name)
		}
		m.consumers = append(m.consumers, consumer)
		metrics.ConsumersRunning.Inc()
		m.logger.Info("consumer started", zap.String("consumer", spec.Name))
	}
	m.setState(StateConsumersStarted)

	m.started = true
	m.setState(StateRunning)
	m.readyOnce.Do(func() { close(m.ready) })
	m.logger.Info("messaging running", zap.Int("consumers", len(m.consumers)))
	return nil
}

// gate holds a handler back until Start has finished. Messages that arrive
// after a failed start are rejected.
func (m *Manager) gate(h Handler) Handler {
	return func(ctx context.Context, value []byte) bool {
		select {
		case <-m.ready:
		case <-ctx.Done():
			return false
		}
		if !m.started {
			return false
		}
		return h(ctx, value)
	}
}

// Stop stops every consumer, then releases the producer. Failures are
// logged and returned together, but never stop the remaining steps.
// Calling Stop again, or before Start, is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.loadState() {
	case StateStopped:
		return nil
	case StateUnstarted:
		m.abortStart()
		return nil
	}

	m.setState(StateShuttingDown)
	m.logger.Info("stopping messaging", zap.Int("consumers", len(m.consumers)))

	err := multierr.Combine(m.stopConsumers(), m.releaseProducer())
	m.setState(StateStopped)

	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeShutdown, "messaging stopped with errors")
	}
	m.logger.Info("messaging stopped")
	return nil
}

// stopConsumers stops started consumers in reverse start order.
func (m *Manager) stopConsumers() error {
	var errs error
	for i := len(m.consumers) - 1; i >= 0; i-- {
		c := m.consumers[i]
		if err := c.Stop(); err != nil {
			m.logger.Error("failed to stop consumer", zap.String("consumer", c.Name()), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
		metrics.ConsumersRunning.Dec()
	}
	m.consumers = nil
	return errs
}

func (m *Manager) releaseProducer() error {
	m.pmu.Lock()
	p := m.producer
	m.producer = nil
	m.pmu.Unlock()
	if p == nil {
		return nil
	}
	if err := p.Close(); err != nil {
		m.logger.Error("failed to close producer", zap.Error(err))
		return err
	}
	return nil
}

func (m *Manager) abortStart() {
	m.setState(StateStopped)
	m.readyOnce.Do(func() { close(m.ready) })
}

// Producer returns the started producer, or nil before Start and after Stop.
func (m *Manager) Producer() Producer {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.producer
}

// Send publishes through the managed producer, so senders created before
// Start can hold the Manager as their Publisher.
func (m *Manager) Send(ctx context.Context, topic, key string, msg Message) error {
	p := m.Producer()
	if p == nil {
		return errors.Wrap(ErrProducerNotRunning, errors.ErrorTypeCollaborator, "messaging is not running").
			WithDetail("topic", topic).
			WithDetail("state", m.State().String())
	}
	return p.Send(ctx, topic, key, msg)
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Manager) loadState() State {
	return State(m.state.Load())
}

// State returns the current lifecycle state without waiting on Start or Stop.
func (m *Manager) State() State {
	return m.loadState()
}

// Running reports whether the manager is fully started.
func (m *Manager) Running() bool {
	return m.State() == StateRunning
}
