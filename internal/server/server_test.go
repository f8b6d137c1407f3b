package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jsonpool "github.com/ajitpratap0/tenantsync/pkg/json"
)

type fakeChecker struct{ running atomic.Bool }

func (c *fakeChecker) Running() bool { return c.running.Load() }

func newTestServer(checker Checker) *Server {
	s := New("127.0.0.1:0", checker, zap.NewNop())
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func getHealth(t *testing.T, s *Server) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body HealthResponse
	require.NoError(t, jsonpool.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestHealthReportsRunning(t *testing.T) {
	checker := &fakeChecker{}
	checker.running.Store(true)

	code, body := getHealth(t, newTestServer(checker))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, int64(1700000000000), body.Timestamp)
}

func TestHealthFailsWhenNotRunning(t *testing.T) {
	code, body := getHealth(t, newTestServer(&fakeChecker{}))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, StatusFail, body.Status)

	code, body = getHealth(t, newTestServer(nil))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, StatusFail, body.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeChecker{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartAndShutdown(t *testing.T) {
	checker := &fakeChecker{}
	checker.running.Store(true)
	s := newTestServer(checker)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	first := newTestServer(&fakeChecker{})
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	second := New(first.Addr(), &fakeChecker{}, zap.NewNop())
	assert.Error(t, second.Start())
}
