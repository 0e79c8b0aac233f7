package interaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// interactionTogglesTotal counts toggle outcomes
	// (success|rollback|deduplicated|unauthenticated)
	interactionTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interaction_toggles_total",
			Help: "Total number of interaction toggles by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// interactionReconcileFailuresTotal counts post-toggle authoritative fetches that failed
	interactionReconcileFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interaction_reconcile_failures_total",
			Help: "Total number of failed authoritative reconciles after a toggle",
		},
		[]string{"operation"},
	)

	// interactionCachedReadsTotal counts status/count reads served from cache
	interactionCachedReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interaction_cached_reads_total",
			Help: "Total number of status or count reads served from local cache",
		},
		[]string{"operation", "query", "reason"}, // reason: in_flight|rate_limited|unauthenticated
	)
)

func recordToggle(op, outcome string) {
	interactionTogglesTotal.WithLabelValues(op, outcome).Inc()
}

func recordReconcileFailure(op string) {
	interactionReconcileFailuresTotal.WithLabelValues(op).Inc()
}

func recordCachedRead(op, query, reason string) {
	interactionCachedReadsTotal.WithLabelValues(op, query, reason).Inc()
}
