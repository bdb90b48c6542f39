// Package metrics exposes Prometheus instrumentation for the sync and local
// recovery paths. Collectors are registered on an injected registry so tests
// and multiple instances never share global state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "learnsync"

// Sync outcomes.
const (
	OutcomeSynced  = "synced"
	OutcomePushed  = "pushed"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds all learnsync collectors.
type Metrics struct {
	registry *prometheus.Registry

	SyncRuns        *prometheus.CounterVec
	SyncDuration    prometheus.Histogram
	RemoteRetries   *prometheus.CounterVec
	LocalResets     *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	StudyEvents     *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	HandlerFailures *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total number of sync runs by outcome",
			},
			[]string{"outcome"},
		),

		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of sync runs",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
			},
		),

		RemoteRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_retries_total",
				Help:      "Retries of remote store calls",
			},
			[]string{"operation"},
		),

		LocalResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "local_record_resets_total",
				Help:      "Local records discarded and reset to their initial value",
			},
			[]string{"record", "reason"},
		),

		PersistFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_failures_total",
				Help:      "Failed writes of the local snapshot",
			},
			[]string{"operation"},
		),

		StudyEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "study_events_total",
				Help:      "Recorded study events by kind",
			},
			[]string{"kind"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		),

		HandlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_failures_total",
				Help:      "Failed in-process event handlers by event type",
			},
			[]string{"event_type"},
		),
	}

	m.registry.MustRegister(
		m.SyncRuns,
		m.SyncDuration,
		m.RemoteRetries,
		m.LocalResets,
		m.PersistFailures,
		m.StudyEvents,
		m.BreakerState,
		m.HandlerFailures,
	)

	return m
}

// ObserveSync records one finished sync run.
func (m *Metrics) ObserveSync(outcome string, d time.Duration) {
	m.SyncRuns.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(d.Seconds())
}

// IncRemoteRetry counts a retried remote call.
func (m *Metrics) IncRemoteRetry(operation string) {
	m.RemoteRetries.WithLabelValues(operation).Inc()
}

// IncLocalReset counts a discarded local record.
func (m *Metrics) IncLocalReset(record, reason string) {
	m.LocalResets.WithLabelValues(record, reason).Inc()
}

// IncPersistFailure counts a failed local write.
func (m *Metrics) IncPersistFailure(operation string) {
	m.PersistFailures.WithLabelValues(operation).Inc()
}

// IncStudyEvent counts a recorded study event.
func (m *Metrics) IncStudyEvent(kind string) {
	m.StudyEvents.WithLabelValues(kind).Inc()
}

// SetBreakerState publishes a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// IncHandlerFailure counts a failed event handler.
func (m *Metrics) IncHandlerFailure(eventType string) {
	m.HandlerFailures.WithLabelValues(eventType).Inc()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
