package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/account"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/messaging"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
)

// Entity event types handled here. Other entity events belong to the
// onboarding service and are acknowledged untouched.
const (
	EntityAppEnabled  = "appEnabled"
	EntityAppDisabled = "appDisabled"
)

// SyncActionImmediate asks for sync to start right after init.
const SyncActionImmediate = "immediate"

// EntityHandler turns entity topic events into sync topic lifecycle events.
type EntityHandler struct {
	store     store.Store
	accounts  account.Initializer
	syncTopic string
	logger    *zap.Logger
}

// NewEntityHandler creates a handler publishing to syncTopic.
func NewEntityHandler(st store.Store, accounts account.Initializer, syncTopic string, log *zap.Logger) *EntityHandler {
	return &EntityHandler{
		store:     st,
		accounts:  accounts,
		syncTopic: syncTopic,
		logger:    log.With(zap.String("component", "entity_handler")),
	}
}

// Bind returns the consumer handler publishing through pub.
func (h *EntityHandler) Bind(pub messaging.Publisher) messaging.Handler {
	return func(ctx context.Context, value []byte) bool {
		msg, err := messaging.Decode(value)
		if err != nil {
			h.logger.Warn("dropping undecodable entity message", zap.Error(err))
			return false
		}

		orgID := StringField(msg.Payload, FieldOrgID)
		ctx = logger.WithEvent(logger.WithOrg(ctx, orgID, ""), msg.EventType)
		log := logger.WithContext(ctx, h.logger)

		switch msg.EventType {
		case EntityAppEnabled:
			if err := h.appEnabled(ctx, pub, orgID, msg.Payload); err != nil {
				log.Error("failed to enable apps", zap.Error(err))
				return false
			}
			return true
		case EntityAppDisabled:
			// No stop event exists; running syncs finish on their own.
			log.Info("apps disabled", zap.Strings("apps", StringsField(msg.Payload, FieldApps)))
			return true
		default:
			log.Debug("entity event ignored")
			return true
		}
	}
}

func (h *EntityHandler) appEnabled(ctx context.Context, pub messaging.Publisher, orgID string, payload map[string]interface{}) error {
	if orgID == "" {
		return errors.Wrap(connector.ErrMissingOrgID, errors.ErrorTypeValidation, "appEnabled without orgId")
	}

	org, err := h.store.GetOrg(ctx, orgID)
	if err != nil {
		return err
	}

	// Processors and sync services check enablement on init, so the apps
	// are written before any init is published.
	names := StringsField(payload, FieldApps)
	apps := make([]store.App, 0, len(names))
	for _, name := range names {
		apps = append(apps, store.App{OrgID: orgID, Name: name, Type: name})
	}
	if err := h.store.EnableApps(ctx, orgID, apps); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to record enabled apps").
			WithDetail("org_id", orgID)
	}

	if err := account.Initialize(ctx, h.accounts, orgID, org.AccountType); err != nil {
		return err
	}

	immediate := StringField(payload, FieldSyncAction) == SyncActionImmediate
	log := logger.WithContext(ctx, h.logger)

	for _, app := range names {
		source := connector.Normalize(app)
		if source.IsCalendar() {
			log.Info("skipping calendar app", zap.String("app", app))
			continue
		}

		event := map[string]interface{}{FieldOrgID: orgID, FieldConnector: app}
		if err := h.publish(ctx, pub, EventType(string(source), VerbInit), orgID, event); err != nil {
			return err
		}
		if immediate {
			if err := h.publish(ctx, pub, EventType(string(source), VerbStart), orgID, event); err != nil {
				return err
			}
		}
	}
	return nil
}

// publish keys by org id so an org's events stay ordered on one partition.
func (h *EntityHandler) publish(ctx context.Context, pub messaging.Publisher, eventType, orgID string, payload map[string]interface{}) error {
	if err := pub.Send(ctx, h.syncTopic, orgID, messaging.NewMessage(eventType, payload)); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeCollaborator, "failed to publish %s", eventType)
	}
	logger.WithContext(ctx, h.logger).Info("lifecycle event published", zap.String("published", eventType))
	return nil
}
