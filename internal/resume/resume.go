// Package resume re-attaches sync work for every active organization after
// a process restart.
package resume

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tenantsync/internal/account"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/events"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
	"github.com/ajitpratap0/tenantsync/pkg/observability"
)

// Options wires a Resumer to its collaborators.
type Options struct {
	Store    store.Store
	Accounts account.Initializer
	Factory  *connector.Factory
	Services []events.SyncService
	Tasks    events.Spawner
	// Concurrency bounds concurrently resumed orgs; 0 is unbounded.
	Concurrency int
}

// Resumer enumerates active orgs and restarts their enabled integrations.
type Resumer struct {
	opts     Options
	services map[connector.Source]events.SyncService
	logger   *zap.Logger
}

// New creates a Resumer.
func New(opts Options, log *zap.Logger) *Resumer {
	services := make(map[connector.Source]events.SyncService, len(opts.Services))
	for _, svc := range opts.Services {
		services[svc.Source()] = svc
	}
	return &Resumer{
		opts:     opts,
		services: services,
		logger:   log.With(zap.String("component", "resumer")),
	}
}

// Resume restarts sync work for every active org. It returns false only when
// the orgs cannot be listed; per-org failures are logged and skipped.
func (r *Resumer) Resume(ctx context.Context) bool {
	timer := metrics.NewTimer()
	orgs, err := r.opts.Store.GetAllOrgs(ctx, true)
	if err != nil {
		r.logger.Error("failed to list active organizations", zap.Error(err))
		return false
	}
	if len(orgs) == 0 {
		r.logger.Info("no active organizations to resume")
		return true
	}

	var g errgroup.Group
	if r.opts.Concurrency > 0 {
		g.SetLimit(r.opts.Concurrency)
	}
	for _, org := range orgs {
		org := org
		g.Go(func() error {
			r.resumeOrgSafely(ctx, org)
			return nil
		})
	}
	// Per-org goroutines never return errors.
	_ = g.Wait()

	r.logger.Info("resume finished",
		zap.Int("orgs", len(orgs)),
		zap.Duration("duration", timer.Stop()))
	return true
}

func (r *Resumer) resumeOrgSafely(ctx context.Context, org store.Organization) {
	ctx = logger.WithOrg(ctx, org.ID, "")
	log := logger.WithContext(ctx, r.logger)
	ctx, span := observability.StartSpan(ctx, "resume.org", org.ID, "")

	var (
		skipped bool
		err     error
	)
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf(errors.ErrorTypeInternal, "resume panicked: %v", p).
				WithDetail("stack", string(debug.Stack()))
		}
		result := metrics.ResultSuccess
		switch {
		case err != nil:
			result = metrics.ResultFailure
			log.Error("failed to resume organization", zap.Error(err))
		case skipped:
			result = metrics.ResultSkipped
		}
		metrics.OrgsResumed.WithLabelValues(result).Inc()
		observability.EndSpan(span, err)
	}()

	skipped, err = r.resumeOrg(ctx, org, log)
}

// resumeOrg reports skipped for orgs that legitimately have nothing to run.
func (r *Resumer) resumeOrg(ctx context.Context, org store.Organization, log *zap.Logger) (bool, error) {
	if err := account.Initialize(ctx, r.opts.Accounts, org.ID, org.AccountType); err != nil {
		return false, errors.Wrap(err, errors.TypeOf(err), "account initialization failed").
			WithDetail("account_type", string(org.AccountType))
	}

	users, err := r.opts.Store.GetUsers(ctx, org.ID, true)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to list active users")
	}
	if len(users) == 0 {
		log.Info("organization has no active users, skipping")
		return true, nil
	}

	apps, err := r.opts.Store.GetOrgApps(ctx, org.ID)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to list enabled apps")
	}

	var pending []events.SyncService
	started := 0
	for _, app := range apps {
		source := connector.Normalize(app.Name)
		appLog := log.With(zap.String("source", source.String()))

		switch {
		case source.IsCalendar():
			appLog.Debug("calendar sync is not resumed")

		case r.services[source] != nil:
			svc := r.services[source]
			if err := svc.Initialize(ctx, org.ID); err != nil {
				appLog.Error("failed to initialize sync service", zap.Error(err))
				continue
			}
			pending = append(pending, svc)

		case r.isConnector(source):
			inst, err := r.opts.Factory.Build(ctx, org.ID, source)
			if err != nil {
				appLog.Error("failed to build connector", zap.Error(err))
				continue
			}
			if _, err := r.opts.Tasks.Spawn(org.ID, source.String(), inst.Run); err != nil {
				appLog.Error("failed to start connector sync", zap.Error(err))
				continue
			}
			started++

		default:
			appLog.Warn("no connector or sync service for app", zap.String("app", app.Name))
		}
	}

	for _, svc := range pending {
		svc := svc
		orgID := org.ID
		if _, err := r.opts.Tasks.Spawn(orgID, svc.Source().String(), func(ctx context.Context) error {
			return svc.PerformInitialSync(ctx, orgID)
		}); err != nil {
			log.Error("failed to start sync service", zap.String("source", svc.Source().String()), zap.Error(err))
			continue
		}
		started++
	}

	log.Info("organization resumed", zap.Int("apps", len(apps)), zap.Int("tasks_started", started))
	return false, nil
}

func (r *Resumer) isConnector(source connector.Source) bool {
	if r.opts.Factory == nil {
		return false
	}
	_, ok := r.opts.Factory.Registry().Lookup(source)
	return ok
}
