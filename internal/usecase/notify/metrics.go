package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for notification persistence and delivery
var (
	// notificationPersistedTotal tracks notification row writes
	notificationPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_persisted_total",
			Help: "Total number of notification records persisted",
		},
		[]string{"outcome"}, // outcome: success|failure|rejected
	)

	// notificationDispatchedTotal tracks delivery attempts per channel
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatched_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel"},
	)

	// notificationSentTotal tracks delivery results per channel
	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	// notificationDuration tracks delivery duration
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Notification delivery duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// circuitBreakerOpenTotal tracks circuit breaker open events
	circuitBreakerOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_circuit_breaker_open_total",
			Help: "Total number of circuit breaker open events",
		},
		[]string{"channel"},
	)

	// notificationDroppedTotal tracks channels skipped during delivery
	notificationDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dropped_total",
			Help: "Total number of skipped delivery channels",
		},
		[]string{"channel", "reason"}, // reason: circuit_open|no_recipient
	)

	// channelsEnabled tracks number of enabled channels
	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_channels_enabled",
			Help: "Number of enabled notification channels",
		},
	)

	// inboxActionsTotal tracks inbox mutations
	inboxActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_inbox_actions_total",
			Help: "Total number of inbox actions by outcome",
		},
		[]string{"action", "outcome"},
	)

	// inboxRealtimeTotal tracks notifications received through the realtime subscription
	inboxRealtimeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_inbox_realtime_total",
			Help: "Total number of notifications received in realtime",
		},
	)
)

// RecordPersisted records the outcome of a notification write.
func RecordPersisted(outcome string) {
	notificationPersistedTotal.WithLabelValues(outcome).Inc()
}

// RecordDispatch records a delivery attempt on a channel.
func RecordDispatch(channel string) {
	notificationDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordSuccess records a successful delivery and its duration.
func RecordSuccess(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "success").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed delivery and its duration.
func RecordFailure(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "failure").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped records a channel skipped during delivery.
//
// Parameters:
//   - channel: The name of the delivery channel
//   - reason: circuit_open or no_recipient
func RecordDropped(channel string, reason string) {
	notificationDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordCircuitBreakerOpen records a circuit breaker open event.
func RecordCircuitBreakerOpen(channel string) {
	circuitBreakerOpenTotal.WithLabelValues(channel).Inc()
}

// SetChannelsEnabled sets the number of enabled delivery channels.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}

func recordInboxAction(action, outcome string) {
	inboxActionsTotal.WithLabelValues(action, outcome).Inc()
}
