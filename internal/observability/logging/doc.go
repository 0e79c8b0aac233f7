// Package logging provides structured logging utilities with context propagation.
//
// Key features:
//   - JSON (daemon) and text (CLI) output formats
//   - Request ID propagation through context
//   - LOG_LEVEL controlled verbosity
//
// Example usage:
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	ctx = logging.ContextWithRequestID(ctx, logging.NewRequestID())
//	logging.WithRequestID(ctx, logger).Info("toggling like")
package logging
