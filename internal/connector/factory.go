package connector

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/configstore"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
)

// Factory builds connector instances and registers them in a Slot.
type Factory struct {
	registry   *Registry
	configs    configstore.Service
	processors ProcessorFactory
	store      store.Store
	slot       *Slot
	logger     *zap.Logger
	now        func() time.Time
}

// NewFactory wires a factory to its collaborators.
func NewFactory(registry *Registry, configs configstore.Service, processors ProcessorFactory,
	st store.Store, slot *Slot, log *zap.Logger) *Factory {
	return &Factory{
		registry:   registry,
		configs:    configs,
		processors: processors,
		store:      st,
		slot:       slot,
		logger:     log.With(zap.String("component", "connector_factory")),
		now:        time.Now,
	}
}

// Slot returns the slot instances are registered in.
func (f *Factory) Slot() *Slot {
	return f.slot
}

// Registry returns the definitions the factory builds from.
func (f *Factory) Registry() *Registry {
	return f.registry
}

// Build validates the org's credentials for source, initializes its
// processor and registers the new instance, superseding any previous one.
// It does not start the instance.
func (f *Factory) Build(ctx context.Context, orgID string, source Source) (*Instance, error) {
	inst, err := f.build(ctx, strings.TrimSpace(orgID), source)
	if err != nil {
		metrics.ConnectorBuilds.WithLabelValues(string(source), metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.ConnectorBuilds.WithLabelValues(string(source), metrics.ResultSuccess).Inc()
	return inst, nil
}

func (f *Factory) build(ctx context.Context, orgID string, source Source) (*Instance, error) {
	if orgID == "" {
		return nil, errors.Wrap(ErrMissingOrgID, errors.ErrorTypeValidation, "cannot build connector").
			WithDetail("source", string(source))
	}

	def, ok := f.registry.Lookup(source)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSource, errors.ErrorTypeValidation, "cannot build %s connector", source).
			WithDetail("org_id", orgID)
	}

	path := configstore.ConnectorConfigPath(def.ConfigName, orgID)
	raw, err := f.configs.GetConfig(ctx, path)
	switch {
	case errors.Is(err, configstore.ErrNotFound) || (err == nil && len(raw) == 0):
		return nil, errors.Wrapf(ErrCredentialsNotFound, errors.ErrorTypeNotFound, "%s credentials for org %s", source, orgID).
			WithDetail("path", path)
	case err != nil:
		return nil, errors.Wrapf(err, errors.ErrorTypeCollaborator, "failed to fetch %s credentials", source).
			WithDetail("org_id", orgID).
			WithDetail("path", path)
	}

	creds, err := ParseCredentials(raw, def.RequiredFields...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeValidation, "%s credentials for org %s", source, orgID)
	}

	processor, err := f.processors.NewProcessor(source, orgID)
	if err == nil {
		err = processor.Initialize(ctx)
	}
	if err != nil {
		// Combined so errors.Is matches both the failure kind and the cause.
		return nil, errors.Wrapf(multierr.Combine(ErrProcessorInitFailed, err), errors.ErrorTypeCollaborator,
			"%s processor for org %s", source, orgID)
	}

	inst := &Instance{
		ID:          uuid.New(),
		OrgID:       orgID,
		Source:      source,
		Credentials: creds,
		Processor:   processor,
		Store:       f.store,
		CreatedAt:   f.now(),
		run:         def.Run,
	}

	log := logger.WithContext(logger.WithOrg(ctx, orgID, string(source)), f.logger)
	if previous := f.slot.Set(inst); previous != nil {
		// The superseded instance keeps running until its own task exits.
		log.Warn("connector superseded",
			zap.String("previous_id", previous.ID.String()),
			zap.String("instance_id", inst.ID.String()))
	} else {
		log.Info("connector registered", zap.String("instance_id", inst.ID.String()))
	}
	metrics.ConnectorsRegistered.Set(float64(f.slot.Len()))
	return inst, nil
}
