package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// feedbackAlertsTotal counts network alerts by outcome (shown|suppressed).
var feedbackAlertsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedback_network_alerts_total",
		Help: "Total number of network issue alerts by outcome",
	},
	[]string{"outcome"},
)

func recordShown() {
	feedbackAlertsTotal.WithLabelValues("shown").Inc()
}

func recordSuppressed() {
	feedbackAlertsTotal.WithLabelValues("suppressed").Inc()
}
