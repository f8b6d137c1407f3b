package app

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/tenantsync/internal/configstore"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/messaging"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/tenantsync/pkg/json"
)

type testProducer struct {
	startErr error

	mu   sync.Mutex
	sent []messaging.Message
}

func (p *testProducer) Start(context.Context) error { return p.startErr }
func (p *testProducer) Close() error                { return nil }

func (p *testProducer) messages() []messaging.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.Message(nil), p.sent...)
}

func (p *testProducer) Send(_ context.Context, _, _ string, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

type testConsumer struct {
	name string

	mu      sync.Mutex
	handler messaging.Handler
	stopped bool
}

func (c *testConsumer) Name() string { return c.name }

func (c *testConsumer) Start(_ context.Context, h messaging.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return nil
}

func (c *testConsumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *testConsumer) deliver(t *testing.T, eventType string, payload map[string]interface{}) bool {
	t.Helper()
	data, err := messaging.Encode(messaging.NewMessage(eventType, payload))
	require.NoError(t, err)
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	require.NotNil(t, h)
	return h(context.Background(), data)
}

// newGraph serves a token endpoint and an empty directory, so connector
// run loops finish a pass without records.
func newGraph(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/tenant-1/oauth2/v2.0/token" {
			_ = jsonpool.MarshalToWriter(w, map[string]interface{}{
				"access_token": "tok", "token_type": "Bearer", "expires_in": 3600,
			})
			return
		}
		_ = jsonpool.MarshalToWriter(w, map[string]interface{}{"value": []interface{}{}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	app       *App
	producer  *testProducer
	consumers map[string]*testConsumer
}

func newHarness(t *testing.T, producer *testProducer) *harness {
	t.Helper()
	return newHarnessWithLogger(t, producer, zap.NewNop())
}

func newHarnessWithLogger(t *testing.T, producer *testProducer, log *zap.Logger) *harness {
	t.Helper()
	graph := newGraph(t)

	cfg := config.Default()
	cfg.Service.HTTPAddr = "127.0.0.1:0"
	cfg.Service.ShutdownGrace = time.Second
	cfg.Graph.BaseURL = graph.URL
	cfg.Graph.AuthorityURL = graph.URL
	cfg.Graph.PollInterval = 0

	st := store.NewMemoryStore()
	st.AddOrg(store.Organization{ID: "org-1", AccountType: store.AccountTypeEnterprise, Active: true})
	st.AddUser(store.User{ID: "u1", OrgID: "org-1", Email: "ada@example.com", Active: true})
	st.EnableApp(store.App{OrgID: "org-1", Name: "OneDrive"})

	configs := configstore.NewMemoryStore()
	configs.Put(configstore.ConnectorConfigPath("onedrive", "org-1"), map[string]interface{}{
		"tenantId": "tenant-1", "clientId": "client", "clientSecret": "secret", "hasAdminConsent": true,
	})
	configs.Put(configstore.ConnectorConfigPath("sharepoint", "org-1"), map[string]interface{}{
		"tenantId": "tenant-1", "clientId": "client", "clientSecret": "secret", "hasAdminConsent": true,
		"sharepointDomain": "contoso.sharepoint.com",
	})

	h := &harness{producer: producer, consumers: make(map[string]*testConsumer)}
	var mu sync.Mutex
	a, err := New(context.Background(), cfg, log, Options{
		Version:     "test",
		Store:       st,
		Configs:     configs,
		NewProducer: func() (messaging.Producer, error) { return producer, nil },
		NewConsumer: func(co messaging.ConsumerOptions) (messaging.Consumer, error) {
			mu.Lock()
			defer mu.Unlock()
			c := &testConsumer{name: co.Name}
			h.consumers[co.Name] = c
			return c, nil
		},
	})
	require.NoError(t, err)
	h.app = a
	return h
}

func TestAppLifecycle(t *testing.T) {
	h := newHarness(t, &testProducer{})
	a := h.app

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Messaging().Running())
	require.Contains(t, h.consumers, "entity")
	require.Contains(t, h.consumers, "sync")

	resumeTask := a.ResumeTask()
	require.NotNil(t, resumeTask)
	select {
	case <-resumeTask.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("resume did not finish")
	}
	require.NoError(t, resumeTask.Err())

	_, ok := a.Factory().Slot().Get("org-1", connector.SourceOneDrive)
	assert.True(t, ok)

	resp, err := http.Get("http://" + a.HTTPAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	syncC := h.consumers["sync"]
	assert.True(t, syncC.deliver(t, "onedrive.init", map[string]interface{}{"orgId": "org-1"}))
	assert.True(t, syncC.deliver(t, "onedrive.resync", map[string]interface{}{"orgId": "org-1"}))
	assert.False(t, syncC.deliver(t, "onedrive.delete", map[string]interface{}{"orgId": "org-1"}))
	assert.False(t, syncC.deliver(t, "sharepointonline.start", map[string]interface{}{}))

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, messaging.StateStopped, a.Messaging().State())
	assert.Zero(t, a.Tasks().Count())
	for _, c := range h.consumers {
		assert.True(t, c.stopped, c.name)
	}
}

func TestAppEnabledAppCanBeInitializedLive(t *testing.T) {
	producer := &testProducer{}
	h := newHarness(t, producer)
	a := h.app

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	select {
	case <-a.ResumeTask().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("resume did not finish")
	}

	syncC := h.consumers["sync"]
	require.False(t, syncC.deliver(t, "sharepointonline.init", map[string]interface{}{"orgId": "org-1"}),
		"an app that was never enabled cannot be initialized")

	require.True(t, h.consumers["entity"].deliver(t, "appEnabled", map[string]interface{}{
		"orgId":      "org-1",
		"apps":       []interface{}{"SHAREPOINT ONLINE", "Drive"},
		"syncAction": "immediate",
	}))

	published := producer.messages()
	var types []string
	for _, msg := range published {
		types = append(types, msg.EventType)
	}
	require.Equal(t, []string{"sharepointonline.init", "sharepointonline.start", "drive.init", "drive.start"}, types)

	for _, msg := range published {
		assert.True(t, syncC.deliver(t, msg.EventType, msg.Payload), msg.EventType)
	}
	_, ok := a.Factory().Slot().Get("org-1", connector.SourceSharePoint)
	assert.True(t, ok)
}

func TestAppStopLogsRegisteredConnectors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := newHarnessWithLogger(t, &testProducer{}, zap.New(core))
	a := h.app

	require.NoError(t, a.Start(context.Background()))
	select {
	case <-a.ResumeTask().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("resume did not finish")
	}
	require.NoError(t, a.Stop(context.Background()))

	entries := logs.FilterMessage("stopping sync tasks").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"onedrive/org-1"}, entries[0].ContextMap()["connectors"])
}

func TestAppRegistersLifecycleEvents(t *testing.T) {
	h := newHarness(t, &testProducer{})

	types := h.app.Router().EventTypes()
	for _, want := range []string{
		"onedrive.init", "onedrive.start", "onedrive.resync",
		"sharepointonline.init", "sharepointonline.start", "sharepointonline.resync",
		"drive.init", "drive.start", "gmail.init", "gmail.start",
	} {
		assert.Contains(t, types, want)
	}
}

func TestAppStartFailsWithoutProducer(t *testing.T) {
	h := newHarness(t, &testProducer{startErr: stderrors.New("no brokers")})

	err := h.app.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeStartup, errors.TypeOf(err))
	assert.Empty(t, h.consumers)
	assert.Nil(t, h.app.ResumeTask())
}

func TestOpenCollaboratorsRejectUnknownDrivers(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "cassandra"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = openConfigs(config.SecretsConfig{Driver: "etcd"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	st, err := openStore(context.Background(), config.DatabaseConfig{Driver: config.DatabaseDriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)
}
