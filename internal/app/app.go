// Package app wires tenantsync's components together and owns the process
// start and stop order.
//
// Start brings up tracing, then messaging (producer before consumers), then
// the HTTP endpoints, and finally spawns the resumer as a supervised task.
// Stop runs the reverse: HTTP first, then every supervised sync task is
// cancelled and given the configured grace period, then messaging is
// stopped and the collaborators are closed.
package app

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/account"
	"github.com/ajitpratap0/tenantsync/internal/configstore"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/connector/microsoft"
	"github.com/ajitpratap0/tenantsync/internal/events"
	"github.com/ajitpratap0/tenantsync/internal/ingest"
	"github.com/ajitpratap0/tenantsync/internal/messaging"
	"github.com/ajitpratap0/tenantsync/internal/resume"
	"github.com/ajitpratap0/tenantsync/internal/server"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/internal/supervisor"
	"github.com/ajitpratap0/tenantsync/internal/syncservice"
	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/observability"
)

// ErrResumeFailed is the error of the resume task when orgs could not be
// listed.
var ErrResumeFailed = errors.New(errors.ErrorTypeCollaborator, "resume could not enumerate organizations")

// Options overrides collaborators, mainly for tests. Zero fields are built
// from the configuration.
type Options struct {
	Version     string
	Store       store.Store
	Configs     configstore.Service
	NewProducer func() (messaging.Producer, error)
	NewConsumer func(opts messaging.ConsumerOptions) (messaging.Consumer, error)
}

// App is the assembled service.
type App struct {
	cfg    *config.Config
	opts   Options
	logger *zap.Logger

	store     store.Store
	configs   configstore.Service
	accounts  *account.Registry
	factory   *connector.Factory
	tasks     *supervisor.Supervisor
	router    *events.Router
	services  []events.SyncService
	messaging *messaging.Manager
	http      *server.Server
	resumer   *resume.Resumer

	stopTracing observability.ShutdownFunc
	resumeTask  *supervisor.Handle
}

// New builds every component from cfg without starting anything.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	a := &App{
		cfg:    cfg,
		opts:   opts,
		logger: log.With(zap.String("component", "app")),
	}

	var err error
	if a.store = opts.Store; a.store == nil {
		if a.store, err = openStore(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}
	if a.configs = opts.Configs; a.configs == nil {
		if a.configs, err = openConfigs(cfg.Secrets); err != nil {
			return nil, multierr.Append(err, a.store.Close(ctx))
		}
	}

	a.accounts = account.NewRegistry(log)
	a.tasks = supervisor.New(log)
	a.router = events.NewRouter(log)

	registry := connector.NewRegistry(log)
	for _, def := range microsoft.Definitions(microsoft.OptionsFromConfig(cfg.Graph), log) {
		if err := registry.Register(def); err != nil {
			return nil, multierr.Append(err, a.store.Close(ctx))
		}
	}

	newProducer := opts.NewProducer
	if newProducer == nil {
		newProducer = func() (messaging.Producer, error) {
			return messaging.NewKafkaProducer(cfg.Kafka, log), nil
		}
	}
	newConsumer := opts.NewConsumer
	if newConsumer == nil {
		newConsumer = func(co messaging.ConsumerOptions) (messaging.Consumer, error) {
			return messaging.NewKafkaConsumer(cfg.Kafka, co, log), nil
		}
	}

	entity := events.NewEntityHandler(a.store, a.accounts, cfg.Kafka.Topics.Sync, log)
	specs := []messaging.ConsumerSpec{
		consumerSpec(newConsumer, messaging.ConsumerOptions{
			Name:     "entity",
			Topic:    cfg.Kafka.Topics.Entity,
			GroupID:  cfg.Kafka.Consumers.EntityGroup,
			ClientID: cfg.Kafka.Consumers.EntityClientID,
		}, func(p messaging.Producer) messaging.Handler { return entity.Bind(p) }),
		consumerSpec(newConsumer, messaging.ConsumerOptions{
			Name:     "sync",
			Topic:    cfg.Kafka.Topics.Sync,
			GroupID:  cfg.Kafka.Consumers.SyncGroup,
			ClientID: cfg.Kafka.Consumers.SyncClientID,
		}, func(messaging.Producer) messaging.Handler { return events.SyncHandler(a.router, log) }),
	}
	a.messaging = messaging.NewManager(newProducer, specs, log)

	// Processors publish through the manager so they can be created before
	// the producer exists.
	processors := ingest.NewFactory(a.store, a.messaging, cfg.Kafka.Topics.Record, log)
	a.factory = connector.NewFactory(registry, a.configs, processors, a.store, connector.NewSlot(), log)

	fetcher := syncservice.NewGoogleFetcher(a.configs, syncservice.GoogleOptions{}, log)
	for _, source := range []connector.Source{connector.SourceDrive, connector.SourceGmail} {
		a.services = append(a.services, syncservice.New(source, syncservice.Options{
			Store:       a.store,
			Fetcher:     fetcher,
			Processors:  processors,
			Modes:       a.accounts,
			Concurrency: cfg.Service.SyncConcurrency,
		}, log))
	}

	events.RegisterConnectorLifecycle(a.router, a.factory, a.tasks, log)
	events.RegisterServiceLifecycle(a.router, a.services, a.tasks, log)

	a.resumer = resume.New(resume.Options{
		Store:       a.store,
		Accounts:    a.accounts,
		Factory:     a.factory,
		Services:    a.services,
		Tasks:       a.tasks,
		Concurrency: cfg.Service.ResumeConcurrency,
	}, log)
	a.http = server.New(cfg.Service.HTTPAddr, a.messaging, log)

	return a, nil
}

func consumerSpec(newConsumer func(messaging.ConsumerOptions) (messaging.Consumer, error),
	co messaging.ConsumerOptions, handler func(messaging.Producer) messaging.Handler) messaging.ConsumerSpec {
	return messaging.ConsumerSpec{
		Name:    co.Name,
		New:     func() (messaging.Consumer, error) { return newConsumer(co) },
		Handler: handler,
	}
}

// Start brings the service up. A messaging or listener failure aborts
// startup and leaves nothing running.
func (a *App) Start(ctx context.Context) error {
	stopTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:        a.cfg.Tracing.Enabled,
		ServiceName:    a.cfg.Tracing.ServiceName,
		ServiceVersion: a.opts.Version,
		SamplingRate:   a.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStartup, "failed to set up tracing")
	}
	a.stopTracing = stopTracing

	if err := a.messaging.Start(ctx); err != nil {
		_ = a.stopTracing(ctx)
		return err
	}

	if err := a.http.Start(); err != nil {
		if stopErr := a.messaging.Stop(); stopErr != nil {
			a.logger.Warn("messaging did not stop cleanly", zap.Error(stopErr))
		}
		_ = a.stopTracing(ctx)
		return err
	}

	if a.cfg.Service.ResumeOnStart {
		h, err := a.tasks.Spawn("", "resume", func(ctx context.Context) error {
			if !a.resumer.Resume(ctx) {
				return ErrResumeFailed
			}
			return nil
		})
		if err != nil {
			a.logger.Error("failed to start resume", zap.Error(err))
		} else {
			a.resumeTask = h
		}
	}

	a.logger.Info("tenantsync started",
		zap.String("http_addr", a.http.Addr()),
		zap.Strings("event_types", a.router.EventTypes()))
	return nil
}

// Stop shuts the service down. Every step runs even when an earlier one
// fails; the failures are logged and returned together.
func (a *App) Stop(ctx context.Context) error {
	var errs error

	if err := a.http.Shutdown(ctx); err != nil {
		a.logger.Warn("http server did not stop cleanly", zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	keys := a.factory.Slot().Keys()
	connectors := make([]string, 0, len(keys))
	for _, key := range keys {
		connectors = append(connectors, key.String())
	}
	a.logger.Info("stopping sync tasks",
		zap.Int("tasks", a.tasks.Count()),
		zap.Strings("connectors", connectors))
	a.tasks.ShutdownAll(a.cfg.Service.ShutdownGrace)

	if err := a.messaging.Stop(); err != nil {
		a.logger.Warn("messaging did not stop cleanly", zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("store did not close cleanly", zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			a.logger.Warn("tracer did not flush", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	a.logger.Info("tenantsync stopped")
	return errs
}

// Run starts the service, blocks until ctx is done and stops it.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return multierr.Append(err, a.store.Close(context.Background()))
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Service.ShutdownGrace+10*time.Second)
	defer cancel()
	return a.Stop(stopCtx)
}

// Router returns the event router.
func (a *App) Router() *events.Router {
	return a.router
}

// Factory returns the connector factory.
func (a *App) Factory() *connector.Factory {
	return a.factory
}

// Tasks returns the task supervisor.
func (a *App) Tasks() *supervisor.Supervisor {
	return a.tasks
}

// Messaging returns the messaging lifecycle manager.
func (a *App) Messaging() *messaging.Manager {
	return a.messaging
}

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() string {
	return a.http.Addr()
}

// ResumeTask returns the handle of the startup resume, if one was spawned.
func (a *App) ResumeTask() *supervisor.Handle {
	return a.resumeTask
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DatabaseDriverPostgres:
		return store.NewPostgresStore(ctx, cfg.URL, cfg.MaxConns)
	case config.DatabaseDriverMongo:
		return store.NewMongoStore(ctx, cfg.URL, cfg.MongoDatabase)
	case config.DatabaseDriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown database driver %q", cfg.Driver)
	}
}

func openConfigs(cfg config.SecretsConfig) (configstore.Service, error) {
	switch cfg.Driver {
	case config.SecretsDriverVault:
		return configstore.NewVaultStore(cfg.Vault)
	case config.SecretsDriverFile:
		return configstore.NewFileStore(cfg.File.Path)
	case config.SecretsDriverMemory:
		return configstore.NewMemoryStore(), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown secrets driver %q", cfg.Driver)
	}
}
