package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/configstore"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/messaging"
	"github.com/ajitpratap0/tenantsync/internal/store"
)

type nopProcessor struct{}

func (nopProcessor) Initialize(context.Context) error              { return nil }
func (nopProcessor) Emit(context.Context, connector.Record) error { return nil }

type nopProcessors struct{}

func (nopProcessors) NewProcessor(connector.Source, string) (connector.Processor, error) {
	return nopProcessor{}, nil
}

// connectorFixture wires a factory with one registered source whose run
// loop records the instances it was started for.
type connectorFixture struct {
	factory *connector.Factory
	configs *configstore.MemoryStore

	runs    atomic.Int32
	mu      sync.Mutex
	started []*connector.Instance
}

func newConnectorFixture(t *testing.T, sources ...connector.Source) *connectorFixture {
	t.Helper()
	fx := &connectorFixture{configs: configstore.NewMemoryStore()}

	registry := connector.NewRegistry(zap.NewNop())
	for _, source := range sources {
		require.NoError(t, registry.Register(connector.Definition{
			Source:     source,
			ConfigName: string(source),
			Run: func(ctx context.Context, inst *connector.Instance) error {
				fx.mu.Lock()
				fx.started = append(fx.started, inst)
				fx.mu.Unlock()
				fx.runs.Add(1)
				return nil
			},
		}))
	}
	fx.factory = connector.NewFactory(registry, fx.configs, nopProcessors{}, store.NewMemoryStore(), connector.NewSlot(), zap.NewNop())
	return fx
}

func (fx *connectorFixture) putCredentials(source connector.Source, orgID string, node map[string]interface{}) {
	fx.configs.Put(configstore.ConnectorConfigPath(string(source), orgID), node)
}

func (fx *connectorFixture) startedInstances() []*connector.Instance {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]*connector.Instance(nil), fx.started...)
}

type sentMessage struct {
	topic string
	key   string
	msg   messaging.Message
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (p *fakePublisher) Send(_ context.Context, topic, key string, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{topic: topic, key: key, msg: msg})
	return nil
}

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.msg.EventType)
	}
	return out
}

func encode(t *testing.T, eventType string, payload map[string]interface{}) []byte {
	t.Helper()
	data, err := messaging.Encode(messaging.NewMessage(eventType, payload))
	if err != nil {
		t.Fatal(err)
	}
	return data
}
