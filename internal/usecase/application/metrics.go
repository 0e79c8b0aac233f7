package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// applicationSubmissionsTotal counts submissions by outcome
	applicationSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_submissions_total",
			Help: "Total number of application submissions by outcome",
		},
		[]string{"outcome"}, // outcome: success|failure|rejected|duplicate
	)

	// applicationStatusChangesTotal counts status transitions by target and outcome
	applicationStatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_status_changes_total",
			Help: "Total number of application status changes",
		},
		[]string{"status", "outcome"}, // outcome: success|rollback|rejected|deduplicated
	)
)

func recordSubmission(outcome string) {
	applicationSubmissionsTotal.WithLabelValues(outcome).Inc()
}

func recordStatusChange(status, outcome string) {
	applicationStatusChangesTotal.WithLabelValues(status, outcome).Inc()
}
