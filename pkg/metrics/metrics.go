// Package metrics provides the Prometheus collectors used by tenantsync.
//
// All collectors are registered with the default registry through promauto
// and are exposed by the HTTP server at /metrics.
//
// # Basic Usage
//
//	metrics.EventsDispatched.WithLabelValues("onedrive.init", metrics.ResultSuccess).Inc()
//
//	timer := metrics.NewTimer()
//	err := work(ctx)
//	metrics.TaskDuration.WithLabelValues("onedrive").Observe(timer.Stop().Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values shared by the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultUnknown = "unknown"
)

var (
	// EventsDispatched counts router dispatches.
	// Labels: event_type, result (success/failure/unknown)
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_events_dispatched_total",
			Help: "Total number of lifecycle events dispatched by the router",
		},
		[]string{"event_type", "result"},
	)

	// ConnectorBuilds counts connector factory builds.
	// Labels: source, result
	ConnectorBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_connector_builds_total",
			Help: "Total number of connector instances built",
		},
		[]string{"source", "result"},
	)

	// ConnectorsRegistered tracks the number of live connector instances.
	ConnectorsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantsync_connectors_registered",
			Help: "Number of connector instances currently registered",
		},
	)

	// TasksSpawned counts supervised units of work.
	TasksSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_tasks_spawned_total",
			Help: "Total number of supervised sync tasks spawned",
		},
		[]string{"source"},
	)

	// TasksActive tracks supervised units of work still running.
	TasksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantsync_tasks_active",
			Help: "Number of supervised sync tasks currently running",
		},
		[]string{"source"},
	)

	// TaskFailures counts units of work that returned an error or panicked.
	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_task_failures_total",
			Help: "Total number of supervised sync tasks that failed",
		},
		[]string{"source"},
	)

	// TaskDuration tracks how long supervised units of work run, in seconds.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantsync_task_duration_seconds",
			Help:    "Duration of supervised sync tasks in seconds",
			Buckets: []float64{0.1, 1, 10, 60, 300, 1800, 3600, 4 * 3600},
		},
		[]string{"source"},
	)

	// OrgsResumed counts per-org resume outcomes.
	// Labels: result (success/failure/skipped)
	OrgsResumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_orgs_resumed_total",
			Help: "Total number of organizations processed by the resumer",
		},
		[]string{"result"},
	)

	// ConsumersRunning tracks started bus consumers.
	ConsumersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantsync_consumers_running",
			Help: "Number of message bus consumers currently running",
		},
	)

	// MessagesProduced counts messages published through the shared producer.
	MessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_messages_produced_total",
			Help: "Total number of messages published to the bus",
		},
		[]string{"topic", "result"},
	)

	// MessagesConsumed counts messages handed to consumer handlers.
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_messages_consumed_total",
			Help: "Total number of messages consumed from the bus",
		},
		[]string{"consumer", "result"},
	)
)

// Result maps a handler outcome onto the result label.
func Result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// Timer measures elapsed time from its creation.
type Timer struct {
	start time.Time
}

// NewTimer creates a timer started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since creation. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
