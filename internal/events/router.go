// Package events routes control events from the message bus to the
// handlers that build and start connectors and sync services.
//
// Event types have the form "{source}.{verb}", e.g. "onedrive.init" or
// "sharepointonline.start". The Router never lets a handler failure escape:
// every outcome is reduced to a boolean and a log line.
package events

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
	"github.com/ajitpratap0/tenantsync/pkg/observability"
)

// Payload field names shared by the handlers.
const (
	FieldOrgID      = "orgId"
	FieldConnector  = "connector"
	FieldApps       = "apps"
	FieldSyncAction = "syncAction"
)

// Lifecycle verbs.
const (
	VerbInit   = "init"
	VerbStart  = "start"
	VerbResync = "resync"
)

// HandlerFunc handles one event payload.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) error

// Router dispatches events by type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a router with no handlers.
func NewRouter(log *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   log.With(zap.String("component", "event_router")),
	}
}

// EventType joins a source and a verb into an event type.
func EventType(source, verb string) string {
	return normalizeType(source + "." + verb)
}

func normalizeType(eventType string) string {
	return strings.ToLower(strings.TrimSpace(eventType))
}

// Handle registers h for eventType, replacing any previous handler.
func (r *Router) Handle(eventType string, h HandlerFunc) {
	eventType = normalizeType(eventType)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[eventType]; exists {
		r.logger.Warn("replacing event handler", zap.String("event_type", eventType))
	}
	r.handlers[eventType] = h
}

// EventTypes returns the registered event types sorted by name.
func (r *Router) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch runs the handler registered for eventType. It returns false for
// an unknown type, a handler error or a handler panic.
func (r *Router) Dispatch(ctx context.Context, eventType string, payload map[string]interface{}) bool {
	eventType = normalizeType(eventType)
	orgID := StringField(payload, FieldOrgID)
	source, _, _ := strings.Cut(eventType, ".")

	ctx = logger.WithEvent(logger.WithOrg(ctx, orgID, source), eventType)
	log := logger.WithContext(ctx, r.logger)

	r.mu.RLock()
	h, ok := r.handlers[eventType]
	r.mu.RUnlock()
	if !ok {
		log.Warn("no handler for event type")
		metrics.EventsDispatched.WithLabelValues(eventType, metrics.ResultUnknown).Inc()
		return false
	}

	ctx, span := observability.StartSpan(ctx, "events.dispatch", orgID, source)
	span.SetAttributes(attribute.String("event.type", eventType))
	err := invoke(ctx, h, payload)
	observability.EndSpan(span, err)

	if err != nil {
		log.Error("event handler failed", zap.Error(err))
		metrics.EventsDispatched.WithLabelValues(eventType, metrics.ResultFailure).Inc()
		return false
	}
	log.Debug("event handled")
	metrics.EventsDispatched.WithLabelValues(eventType, metrics.ResultSuccess).Inc()
	return true
}

func invoke(ctx context.Context, h HandlerFunc, payload map[string]interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeInternal, "event handler panicked: %v", r).
				WithDetail("stack", string(debug.Stack()))
		}
	}()
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return h(ctx, payload)
}

// StringField returns payload[key] when it is a string, trimmed.
func StringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}

// StringsField returns the string elements of payload[key], which may be a
// []string or a decoded JSON array.
func StringsField(payload map[string]interface{}, key string) []string {
	switch v := payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return nil
	}
}
