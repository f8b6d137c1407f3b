package connector

import (
	"context"
	"time"
)

// Record is one canonical item observed in a source.
type Record struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	OrgID      string                 `json:"orgId"`
	Source     Source                 `json:"source"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ObservedAt time.Time              `json:"observedAt"`
}

// Processor ingests records for one (org, source). Initialize must be safe
// to call more than once.
type Processor interface {
	Initialize(ctx context.Context) error
	Emit(ctx context.Context, rec Record) error
}

// ProcessorFactory creates the ingestion processor for an (org, source).
type ProcessorFactory interface {
	NewProcessor(source Source, orgID string) (Processor, error)
}

// RunFunc is a connector's run loop. It must return once ctx is done.
type RunFunc func(ctx context.Context, inst *Instance) error

// Definition describes one connector source type.
type Definition struct {
	Source      Source
	DisplayName string
	// ConfigName is the config node holding per-org credentials:
	// /services/connectors/{ConfigName}/config/{orgId}.
	ConfigName string
	// RequiredFields are mandatory credential fields beyond BaseFields.
	RequiredFields []string
	Run            RunFunc
}
