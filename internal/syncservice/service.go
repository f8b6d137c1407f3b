// Package syncservice implements the long-lived, per-org sync services for
// sources that are not built per connector instance (Google Drive and
// Gmail). A service is initialized for an org once, snapshotting its active
// users, and then runs an initial sync fanning out over those users.
package syncservice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tenantsync/internal/account"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
)

// ErrNotInitialized is returned by PerformInitialSync for an org that was
// never initialized.
var ErrNotInitialized = errors.New(errors.ErrorTypeValidation, "sync service not initialized for org")

// UserRequest identifies one user's slice of an org sync.
type UserRequest struct {
	OrgID  string
	Source connector.Source
	User   store.User
	Mode   account.Mode
}

// Fetcher pulls one user's records from the source and hands each to emit.
type Fetcher interface {
	FetchUser(ctx context.Context, req UserRequest, emit func(connector.Record) error) error
}

// ModeLookup reports the account mode chosen for an org.
type ModeLookup interface {
	Mode(orgID string) (account.Mode, bool)
}

// Options wires a Service to its collaborators.
type Options struct {
	Store      store.Store
	Fetcher    Fetcher
	Processors connector.ProcessorFactory
	Modes      ModeLookup
	// Concurrency bounds concurrently synced users; 0 is unbounded.
	Concurrency int
}

type orgState struct {
	users         []store.User
	processor     connector.Processor
	mode          account.Mode
	initializedAt time.Time
}

// Service is the sync service of one source.
type Service struct {
	source connector.Source
	opts   Options
	logger *zap.Logger

	mu   sync.RWMutex
	orgs map[string]*orgState
}

// New creates the service for source.
func New(source connector.Source, opts Options, log *zap.Logger) *Service {
	return &Service{
		source: source,
		opts:   opts,
		logger: log.With(zap.String("component", "sync_service"), zap.String("source", string(source))),
		orgs:   make(map[string]*orgState),
	}
}

// Source returns the source the service syncs.
func (s *Service) Source() connector.Source {
	return s.source
}

// Initialize snapshots the org's active users and prepares its processor.
// Calling it again refreshes the snapshot.
func (s *Service) Initialize(ctx context.Context, orgID string) error {
	users, err := s.opts.Store.GetUsers(ctx, orgID, true)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeCollaborator, "failed to list %s users", s.source).
			WithDetail("org_id", orgID)
	}

	processor, err := s.opts.Processors.NewProcessor(s.source, orgID)
	if err == nil {
		err = processor.Initialize(ctx)
	}
	if err != nil {
		return errors.Wrapf(multierr.Combine(connector.ErrProcessorInitFailed, err), errors.ErrorTypeCollaborator,
			"%s processor for org %s", s.source, orgID)
	}

	mode := account.ModeUser
	if s.opts.Modes != nil {
		if m, ok := s.opts.Modes.Mode(orgID); ok {
			mode = m
		}
	}

	s.mu.Lock()
	s.orgs[orgID] = &orgState{
		users:         users,
		processor:     processor,
		mode:          mode,
		initializedAt: time.Now(),
	}
	s.mu.Unlock()

	logger.WithContext(logger.WithOrg(ctx, orgID, string(s.source)), s.logger).Info("sync service initialized",
		zap.Int("users", len(users)),
		zap.String("mode", string(mode)))
	return nil
}

// PerformInitialSync fetches every snapshotted user of orgID. A failing
// user does not stop the others; all failures are returned combined.
func (s *Service) PerformInitialSync(ctx context.Context, orgID string) error {
	s.mu.RLock()
	state, ok := s.orgs[orgID]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNotInitialized, errors.ErrorTypeValidation, "cannot sync %s", s.source).
			WithDetail("org_id", orgID)
	}

	log := logger.WithContext(logger.WithOrg(ctx, orgID, string(s.source)), s.logger)
	log.Info("initial sync started", zap.Int("users", len(state.users)))

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for _, user := range state.users {
		req := UserRequest{OrgID: orgID, Source: s.source, User: user, Mode: state.mode}
		g.Go(func() error {
			emit := func(rec connector.Record) error {
				return state.processor.Emit(ctx, rec)
			}
			if err := s.opts.Fetcher.FetchUser(ctx, req, emit); err != nil {
				log.Warn("user sync failed", zap.String("user_id", req.User.ID), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		log.Info("initial sync cancelled")
		return nil
	}
	log.Info("initial sync finished", zap.Int("failed_users", len(multierr.Errors(errs))))
	return errs
}
