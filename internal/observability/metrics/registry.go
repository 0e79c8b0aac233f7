// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track ops server requests
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Remote store metrics track calls leaving the client
var (
	// StoreRequestsTotal counts remote store calls by backend, method, table and status
	StoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_store_requests_total",
			Help: "Total number of remote store requests",
		},
		[]string{"backend", "method", "table", "status"},
	)

	// StoreRequestDuration measures remote store call duration
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_store_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"backend", "method"},
	)

	// RealtimeEventsTotal counts realtime change events received
	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_realtime_events_total",
			Help: "Total number of realtime change events received",
		},
		[]string{"table", "type"},
	)

	// UploadsTotal counts blob uploads by result
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_uploads_total",
			Help: "Total number of blob uploads",
		},
		[]string{"result"},
	)

	// UploadBytes measures uploaded blob sizes
	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remote_upload_size_bytes",
			Help:    "Size of uploaded blobs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
)

// Database metrics track the direct postgres backend
var (
	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an ops server request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStoreRequest records one remote store call. status is the
// HTTP-equivalent status, or 0 for transport failures.
func RecordStoreRequest(backend, method, table string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	StoreRequestsTotal.WithLabelValues(backend, method, table, label).Inc()
	StoreRequestDuration.WithLabelValues(backend, method).Observe(duration.Seconds())
}

// RecordRealtimeEvent records one realtime change.
func RecordRealtimeEvent(table, changeType string) {
	RealtimeEventsTotal.WithLabelValues(table, changeType).Inc()
}

// RecordUpload records an upload attempt outcome and, on success, its size.
func RecordUpload(success bool, size int) {
	if !success {
		UploadsTotal.WithLabelValues("failure").Inc()
		return
	}
	UploadsTotal.WithLabelValues("success").Inc()
	UploadBytes.Observe(float64(size))
}

// UpdateDBConnectionStats updates database connection pool gauges.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
