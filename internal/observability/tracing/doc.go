// Package tracing provides OpenTelemetry tracing integration.
//
// Every Request Executor call runs inside a span; the ops server wraps its
// handlers with Middleware. Binaries call InitTracer to install an SDK
// provider; without it the global no-op provider is used.
//
// Example usage:
//
//	shutdown, err := tracing.InitTracer("feedsync")
//	defer shutdown(context.Background())
//
//	ctx, span := tracing.StartSpan(ctx, "execute.toggle_like")
//	defer span.End()
package tracing
