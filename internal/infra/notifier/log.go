package notifier

import (
	"context"
	"log/slog"
)

// LogAlerter surfaces alerts as structured log records. It is the local
// alert path for headless runs where no UI is attached.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a LogAlerter. A nil logger uses slog.Default().
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlerter{logger: logger}
}

// Alert logs the message at warn level.
func (a *LogAlerter) Alert(ctx context.Context, title, body string) error {
	a.logger.WarnContext(ctx, "user alert",
		slog.String("title", title),
		slog.String("body", body))
	return nil
}
