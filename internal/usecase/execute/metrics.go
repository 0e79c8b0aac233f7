package execute

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// executeAttemptsTotal counts every invocation of an operation, retries included
	executeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execute_attempts_total",
			Help: "Total number of remote operation attempts",
		},
		[]string{"operation"},
	)

	// executeRetriesTotal counts scheduled retries by failure kind
	executeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execute_retries_total",
			Help: "Total number of retries scheduled by failure kind",
		},
		[]string{"operation", "kind"},
	)

	// executeResultsTotal counts final outcomes (success, offline, or the failure kind)
	executeResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execute_results_total",
			Help: "Total number of executed operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// executeDuration measures end-to-end duration including backoff
	executeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execute_duration_seconds",
			Help:    "End-to-end remote operation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
		},
		[]string{"operation"},
	)

	// executeAuthRefreshTotal counts session refreshes by result (success|failure)
	executeAuthRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execute_auth_refresh_total",
			Help: "Total number of session refreshes triggered by 401 responses",
		},
		[]string{"result"},
	)
)

func recordAttempt(op string) {
	executeAttemptsTotal.WithLabelValues(op).Inc()
}

func recordRetry(op string, kind Kind) {
	executeRetriesTotal.WithLabelValues(op, kind.String()).Inc()
}

func recordResult(op, outcome string, duration time.Duration) {
	executeResultsTotal.WithLabelValues(op, outcome).Inc()
	executeDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func recordAuthRefresh(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	executeAuthRefreshTotal.WithLabelValues(result).Inc()
}
