// Package observability groups the logging, metrics and tracing helpers
// shared by the sync core and its binaries.
//
// Subpackages:
//   - logging: slog constructors and request id propagation
//   - metrics: Prometheus collectors for cross-cutting concerns
//   - tracing: OpenTelemetry tracer access, span helpers and HTTP middleware
package observability
