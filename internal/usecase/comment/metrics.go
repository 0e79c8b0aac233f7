package comment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// commentMutationsTotal counts append/remove outcomes
	commentMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_mutations_total",
			Help: "Total number of comment mutations by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: success|failure|rejected
	)

	// commentListsTotal counts thread loads
	commentListsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_lists_total",
			Help: "Total number of comment thread loads by outcome",
		},
		[]string{"outcome"},
	)

	// commentOwnerNotificationsTotal counts best-effort notifications to thread owners
	commentOwnerNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_owner_notifications_total",
			Help: "Total number of thread owner notifications by outcome",
		},
		[]string{"outcome"}, // outcome: sent|failed|skipped
	)
)

func recordMutation(action, outcome string) {
	commentMutationsTotal.WithLabelValues(action, outcome).Inc()
}

func recordList(outcome string) {
	commentListsTotal.WithLabelValues(outcome).Inc()
}

func recordOwnerNotification(outcome string) {
	commentOwnerNotificationsTotal.WithLabelValues(outcome).Inc()
}
