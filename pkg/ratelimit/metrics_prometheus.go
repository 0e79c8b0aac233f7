package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetrics implements Metrics using Prometheus collectors.
//
// Metrics exposed:
//   - feedsync_ratelimit_decisions_total{scope,decision}: allowed / suppressed / deduplicated
//   - feedsync_ratelimit_in_flight{scope}: keys currently held in a Registry
type PrometheusMetrics struct {
	decisions *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_ratelimit_decisions_total",
			Help: "Rate limit and deduplication decisions by scope",
		},
		[]string{"scope", "decision"},
	)
	inFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedsync_ratelimit_in_flight",
			Help: "Number of keys with a request in flight by scope",
		},
		[]string{"scope"},
	)
	if reg != nil {
		reg.MustRegister(decisions, inFlight)
	}
	return &PrometheusMetrics{decisions: decisions, inFlight: inFlight}
}

// RecordDeduplicated increments the deduplicated counter.
func (m *PrometheusMetrics) RecordDeduplicated(scope string) {
	m.decisions.WithLabelValues(scope, "deduplicated").Inc()
}

// RecordSuppressed increments the suppressed counter.
func (m *PrometheusMetrics) RecordSuppressed(scope string) {
	m.decisions.WithLabelValues(scope, "suppressed").Inc()
}

// RecordAllowed increments the allowed counter.
func (m *PrometheusMetrics) RecordAllowed(scope string) {
	m.decisions.WithLabelValues(scope, "allowed").Inc()
}

// SetInFlight sets the in-flight gauge.
func (m *PrometheusMetrics) SetInFlight(scope string, count int) {
	m.inFlight.WithLabelValues(scope).Set(float64(count))
}
