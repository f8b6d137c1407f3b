// Package server exposes the liveness and metrics HTTP endpoints.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/tenantsync/pkg/json"
)

const readHeaderTimeout = 5 * time.Second

// Health status values.
const (
	StatusHealthy = "healthy"
	StatusFail    = "fail"
)

// Checker reports whether the service can do its work.
type Checker interface {
	Running() bool
}

// HealthResponse is the body of /health. Timestamp is milliseconds since
// the Unix epoch.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Server serves /health and /metrics.
type Server struct {
	addr    string
	checker Checker
	logger  *zap.Logger
	now     func() time.Time

	srv *http.Server
	ln  net.Listener
}

// New creates a server listening on addr once started.
func New(addr string, checker Checker, log *zap.Logger) *Server {
	s := &Server{
		addr:    addr,
		checker: checker,
		logger:  log.With(zap.String("component", "http")),
		now:     time.Now,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the routes, for embedding and tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: StatusHealthy, Timestamp: s.now().UnixMilli()}
	code := http.StatusOK
	if s.checker == nil || !s.checker.Running() {
		resp.Status = StatusFail
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := jsonpool.MarshalToWriter(w, resp); err != nil {
		s.logger.Warn("failed to write health response", zap.Error(err))
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStartup, "failed to bind http listener").
			WithDetail("addr", s.addr)
	}
	s.ln = ln

	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeShutdown, "failed to stop http server")
	}
	return nil
}
