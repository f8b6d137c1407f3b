// Package supervisor runs long-lived sync work as tracked, cancellable units.
//
// Every unit gets its own goroutine and context. A unit that fails or
// panics is recorded on its Handle and logged; its siblings keep running.
package supervisor

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
)

// ErrClosed is returned by Spawn once ShutdownAll has started.
var ErrClosed = errors.New(errors.ErrorTypeShutdown, "supervisor is shut down")

// Work is one unit of sync work. It must return once ctx is done.
type Work func(ctx context.Context) error

// Handle tracks one spawned unit.
type Handle struct {
	ID        uuid.UUID
	OrgID     string
	Source    string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed once the unit has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the unit's error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel asks the unit to stop. It does not wait.
func (h *Handle) Cancel() {
	h.cancel()
}

// Supervisor owns every spawned unit.
type Supervisor struct {
	root   context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	handles map[uuid.UUID]*Handle
	wg      sync.WaitGroup
}

// New creates a supervisor. Units are cancelled by ShutdownAll, never by the
// context of the caller that spawned them.
func New(log *zap.Logger) *Supervisor {
	root, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		root:    root,
		cancel:  cancel,
		logger:  log.With(zap.String("component", "task_supervisor")),
		handles: make(map[uuid.UUID]*Handle),
	}
}

// Spawn starts work in its own goroutine and returns immediately.
func (s *Supervisor) Spawn(orgID, source string, work Work) (*Handle, error) {
	if work == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "nil work").
			WithDetail("org_id", orgID).
			WithDetail("source", source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Wrapf(ErrClosed, errors.ErrorTypeShutdown, "cannot spawn %s sync for org %s", source, orgID)
	}

	ctx, cancel := context.WithCancel(logger.WithOrg(s.root, orgID, source))
	h := &Handle{
		ID:        uuid.New(),
		OrgID:     orgID,
		Source:    source,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.handles[h.ID] = h
	s.wg.Add(1)

	metrics.TasksSpawned.WithLabelValues(source).Inc()
	metrics.TasksActive.WithLabelValues(source).Inc()

	go s.run(ctx, h, work)
	return h, nil
}

func (s *Supervisor) run(ctx context.Context, h *Handle, work Work) {
	log := s.logger.With(
		zap.String("task_id", h.ID.String()),
		zap.String("org_id", h.OrgID),
		zap.String("source", h.Source))
	timer := metrics.NewTimer()

	defer func() {
		if r := recover(); r != nil {
			h.err = errors.Newf(errors.ErrorTypeInternal, "sync task panicked: %v", r).
				WithDetail("stack", string(debug.Stack()))
			log.Error("sync task panicked", zap.Any("panic", r))
		}

		h.cancel()
		s.mu.Lock()
		delete(s.handles, h.ID)
		s.mu.Unlock()

		if h.err != nil {
			metrics.TaskFailures.WithLabelValues(h.Source).Inc()
		}
		metrics.TasksActive.WithLabelValues(h.Source).Dec()
		metrics.TaskDuration.WithLabelValues(h.Source).Observe(timer.Stop().Seconds())

		close(h.done)
		s.wg.Done()
	}()

	log.Debug("sync task started")
	h.err = work(ctx)
	switch {
	case h.err != nil:
		log.Error("sync task failed", zap.Error(h.err), zap.Duration("duration", timer.Stop()))
	default:
		log.Info("sync task finished", zap.Duration("duration", timer.Stop()))
	}
}

// Count returns the number of units still running.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Handles returns a snapshot of the running units, oldest first.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// ShutdownAll cancels every unit and waits up to grace for all of them to
// return. Units still running at the deadline are abandoned and logged.
// Later calls return immediately.
func (s *Supervisor) ShutdownAll(grace time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	outstanding := len(s.handles)
	s.mu.Unlock()

	s.logger.Info("stopping sync tasks",
		zap.Int("outstanding", outstanding),
		zap.Duration("grace", grace))
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info("all sync tasks stopped")
	case <-timer.C:
		for _, h := range s.Handles() {
			s.logger.Warn("abandoning sync task after grace period",
				zap.String("task_id", h.ID.String()),
				zap.String("org_id", h.OrgID),
				zap.String("source", h.Source),
				zap.Duration("running_for", time.Since(h.StartedAt)))
		}
	}
}
