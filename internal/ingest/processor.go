// Package ingest forwards records observed by connectors and sync services
// onto the record topic, one Processor per (org, source).
package ingest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/messaging"
	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// Record event types published on the record topic.
const (
	EventNewRecord    = "newRecord"
	EventDeleteRecord = "deleteRecord"
)

var (
	// ErrAppNotEnabled is returned by Initialize when the org has not
	// enabled the processor's source.
	ErrAppNotEnabled = errors.New(errors.ErrorTypeValidation, "app is not enabled for organization")
	// ErrNotInitialized is returned by Emit before a successful Initialize.
	ErrNotInitialized = errors.New(errors.ErrorTypeInternal, "processor is not initialized")
)

var _ connector.Processor = (*Processor)(nil)

// Processor publishes one org's records for one source.
type Processor struct {
	orgID     string
	source    connector.Source
	store     store.Store
	publisher messaging.Publisher
	topic     string
	logger    *zap.Logger

	initMu      sync.Mutex
	initialized atomic.Bool
}

// Initialize checks that the org still has the source enabled. A processor
// that initialized once stays initialized.
func (p *Processor) Initialize(ctx context.Context) error {
	if p.initialized.Load() {
		return nil
	}
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.initialized.Load() {
		return nil
	}

	apps, err := p.store.GetOrgApps(ctx, p.orgID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to list enabled apps").
			WithDetail("org_id", p.orgID)
	}
	for _, app := range apps {
		if connector.Normalize(app.Name) == p.source {
			p.initialized.Store(true)
			p.logger.Debug("record processor initialized")
			return nil
		}
	}
	return errors.Wrap(ErrAppNotEnabled, errors.ErrorTypeValidation, "cannot ingest records").
		WithDetail("org_id", p.orgID).
		WithDetail("source", p.source.String())
}

// Emit publishes rec keyed by org. Kinds ending in ".deleted" become
// deleteRecord events.
func (p *Processor) Emit(ctx context.Context, rec connector.Record) error {
	if !p.initialized.Load() {
		return errors.Wrap(ErrNotInitialized, errors.ErrorTypeInternal, "cannot emit record").
			WithDetail("org_id", p.orgID).
			WithDetail("source", p.source.String())
	}

	eventType := EventNewRecord
	if strings.HasSuffix(rec.Kind, ".deleted") {
		eventType = EventDeleteRecord
	}
	orgID := rec.OrgID
	if orgID == "" {
		orgID = p.orgID
	}
	source := rec.Source
	if source == "" {
		source = p.source
	}

	payload := map[string]interface{}{
		"id":         rec.ID,
		"kind":       rec.Kind,
		"orgId":      orgID,
		"source":     source.String(),
		"data":       rec.Data,
		"observedAt": rec.ObservedAt.UnixMilli(),
	}
	if err := p.publisher.Send(ctx, p.topic, orgID, messaging.NewMessage(eventType, payload)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to publish record").
			WithDetail("record_id", rec.ID).
			WithDetail("topic", p.topic)
	}
	return nil
}

var _ connector.ProcessorFactory = (*Factory)(nil)

// Factory creates Processors that share one publisher and record topic.
type Factory struct {
	store     store.Store
	publisher messaging.Publisher
	topic     string
	logger    *zap.Logger
}

// NewFactory creates a processor factory publishing to topic.
func NewFactory(st store.Store, publisher messaging.Publisher, topic string, logger *zap.Logger) *Factory {
	return &Factory{
		store:     st,
		publisher: publisher,
		topic:     topic,
		logger:    logger.With(zap.String("component", "ingest")),
	}
}

// NewProcessor implements connector.ProcessorFactory.
func (f *Factory) NewProcessor(source connector.Source, orgID string) (connector.Processor, error) {
	if orgID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "orgId is required")
	}
	if source == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "source is required").WithDetail("org_id", orgID)
	}
	return &Processor{
		orgID:     orgID,
		source:    source,
		store:     f.store,
		publisher: f.publisher,
		topic:     f.topic,
		logger:    f.logger.With(zap.String("org_id", orgID), zap.String("source", source.String())),
	}, nil
}
