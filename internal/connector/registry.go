package connector

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// Registry holds the connector Definitions known to the process.
type Registry struct {
	mu          sync.RWMutex
	definitions map[Source]Definition
	logger      *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		definitions: make(map[Source]Definition),
		logger:      logger.With(zap.String("component", "connector_registry")),
	}
}

// Register adds def. Sources must be unique and carry a config node name
// and a run loop.
func (r *Registry) Register(def Definition) error {
	def.Source = Normalize(string(def.Source))
	if def.Source == "" || def.ConfigName == "" || def.Run == nil {
		return errors.New(errors.ErrorTypeConfig, "connector definition needs a source, config name and run loop").
			WithDetail("source", string(def.Source))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Source]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "connector %s already registered", def.Source)
	}

	r.definitions[def.Source] = def
	r.logger.Info("connector registered",
		zap.String("source", string(def.Source)),
		zap.String("config_name", def.ConfigName))
	return nil
}

// Lookup returns the definition for source.
func (r *Registry) Lookup(source Source) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[source]
	return def, ok
}

// Sources returns the registered sources sorted by name.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.definitions))
	for s := range r.definitions {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}
