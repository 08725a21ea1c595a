package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)

// Metrics groups all Prometheus instruments used by the service. Every
// instance owns its registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	Turns           *prometheus.CounterVec
	TurnLatency     prometheus.Histogram
	VaultOperations *prometheus.CounterVec
	VaultErrors     *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live dialogue sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Dialogue turns by outcome.",
		}, []string{"outcome"}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Dialogue turn latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		VaultOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_operations_total",
			Help:      "Memory vault operations by name.",
		}, []string{"operation"}),
		VaultErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_errors_total",
			Help:      "Memory vault failures by operation.",
		}, []string{"operation"}),
	}
}

// ObserveTurn records one finished dialogue turn
func (m *Metrics) ObserveTurn(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if failed {
		outcome = OutcomeDegraded
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

// ObserveVault records one vault operation and whether it failed
func (m *Metrics) ObserveVault(operation string, err error) {
	if m == nil {
		return
	}
	m.VaultOperations.WithLabelValues(operation).Inc()
	if err != nil {
		m.VaultErrors.WithLabelValues(operation).Inc()
	}
}

// SessionEvent counts a session lifecycle event such as "start" or "evict"
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// SetActiveSessions updates the live session gauge
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
