package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/supervisor"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
)

// ErrNotInitialized is returned by a start handler when no connector is
// registered for the (org, source) pair, i.e. init never succeeded.
var ErrNotInitialized = errors.New(errors.ErrorTypeValidation, "connector not initialized")

// Spawner runs work under supervision.
type Spawner interface {
	Spawn(orgID, source string, work supervisor.Work) (*supervisor.Handle, error)
}

// SyncService is a long-lived per-org sync service such as drive or gmail.
type SyncService interface {
	Source() connector.Source
	Initialize(ctx context.Context, orgID string) error
	PerformInitialSync(ctx context.Context, orgID string) error
}

// RegisterConnectorLifecycle registers init, start and resync handlers for
// every connector source the factory knows. resync behaves exactly like
// start.
func RegisterConnectorLifecycle(r *Router, factory *connector.Factory, tasks Spawner, log *zap.Logger) {
	l := &connectorLifecycle{
		factory: factory,
		tasks:   tasks,
		logger:  log.With(zap.String("component", "connector_lifecycle")),
	}
	for _, source := range factory.Registry().Sources() {
		start := l.start(source)
		r.Handle(EventType(string(source), VerbInit), l.init(source))
		r.Handle(EventType(string(source), VerbStart), start)
		r.Handle(EventType(string(source), VerbResync), start)
	}
}

type connectorLifecycle struct {
	factory *connector.Factory
	tasks   Spawner
	logger  *zap.Logger
}

func (l *connectorLifecycle) init(source connector.Source) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) error {
		inst, err := l.factory.Build(ctx, StringField(payload, FieldOrgID), source)
		if err != nil {
			return err
		}
		logger.WithContext(ctx, l.logger).Info("connector initialized",
			zap.String("instance_id", inst.ID.String()))
		return nil
	}
}

func (l *connectorLifecycle) start(source connector.Source) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) error {
		orgID := StringField(payload, FieldOrgID)
		if orgID == "" {
			return errors.Wrapf(connector.ErrMissingOrgID, errors.ErrorTypeValidation, "cannot start %s sync", source)
		}

		inst, ok := l.factory.Slot().Get(orgID, source)
		if !ok {
			return errors.Wrapf(ErrNotInitialized, errors.ErrorTypeValidation, "cannot start %s sync for org %s", source, orgID)
		}

		h, err := l.tasks.Spawn(orgID, string(source), inst.Run)
		if err != nil {
			return err
		}
		logger.WithContext(ctx, l.logger).Info("connector sync started",
			zap.String("instance_id", inst.ID.String()),
			zap.String("task_id", h.ID.String()))
		return nil
	}
}

// RegisterServiceLifecycle registers init, start and resync handlers for
// long-lived sync services. start spawns the service's initial sync.
func RegisterServiceLifecycle(r *Router, services []SyncService, tasks Spawner, log *zap.Logger) {
	log = log.With(zap.String("component", "service_lifecycle"))
	for _, svc := range services {
		svc := svc
		source := string(svc.Source())

		r.Handle(EventType(source, VerbInit), func(ctx context.Context, payload map[string]interface{}) error {
			orgID := StringField(payload, FieldOrgID)
			if orgID == "" {
				return errors.Wrapf(connector.ErrMissingOrgID, errors.ErrorTypeValidation, "cannot initialize %s", source)
			}
			return svc.Initialize(ctx, orgID)
		})

		start := func(ctx context.Context, payload map[string]interface{}) error {
			orgID := StringField(payload, FieldOrgID)
			if orgID == "" {
				return errors.Wrapf(connector.ErrMissingOrgID, errors.ErrorTypeValidation, "cannot start %s sync", source)
			}
			h, err := tasks.Spawn(orgID, source, func(ctx context.Context) error {
				return svc.PerformInitialSync(ctx, orgID)
			})
			if err != nil {
				return err
			}
			logger.WithContext(ctx, log).Info("service sync started", zap.String("task_id", h.ID.String()))
			return nil
		}
		r.Handle(EventType(source, VerbStart), start)
		r.Handle(EventType(source, VerbResync), start)
	}
}
