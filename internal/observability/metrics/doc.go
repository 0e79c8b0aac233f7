// Package metrics provides Prometheus collectors shared across adapters:
// remote store requests, realtime events, uploads, database pool stats and
// the ops HTTP server. Use-case packages keep their own metrics.go.
package metrics
