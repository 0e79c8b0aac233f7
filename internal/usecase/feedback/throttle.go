// Package feedback rate-limits user-facing "network issue" alerts so a burst
// of failing retries surfaces a single message instead of many.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/infra/notifier"
	"feedsync/pkg/ratelimit"

	"golang.org/x/time/rate"
)

// DefaultWindow is the minimum spacing between two surfaced alerts.
const DefaultWindow = 8 * time.Second

// DefaultTitle heads every throttled alert.
const DefaultTitle = "Connection problem"

// Notifier is the contract the Request Executor depends on.
type Notifier interface {
	MaybeNotify(ctx context.Context, message string) bool
}

// Throttle surfaces at most one alert per window. Messages arriving inside
// the window are dropped, not queued.
type Throttle struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	alerter notifier.Alerter
	clock   ratelimit.Clock
	title   string
	logger  *slog.Logger
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock sets the time source used for window accounting.
func WithClock(c ratelimit.Clock) Option {
	return func(t *Throttle) { t.clock = c }
}

// WithTitle overrides DefaultTitle.
func WithTitle(title string) Option {
	return func(t *Throttle) { t.title = title }
}

// WithLogger sets the logger used for alert delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Throttle) { t.logger = l }
}

// NewThrottle creates a throttle that forwards to alerter at most once per window.
func NewThrottle(alerter notifier.Alerter, window time.Duration, opts ...Option) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	if alerter == nil {
		alerter = notifier.NewNoOpAlerter()
	}
	t := &Throttle{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		alerter: alerter,
		clock:   &ratelimit.SystemClock{},
		title:   DefaultTitle,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaybeNotify surfaces message unless another alert was shown within the window.
// It reports whether the message was surfaced.
func (t *Throttle) MaybeNotify(ctx context.Context, message string) bool {
	t.mu.Lock()
	allowed := t.limiter.AllowN(t.clock.Now(), 1)
	t.mu.Unlock()

	if !allowed {
		recordSuppressed()
		t.logger.Debug("network alert suppressed", slog.String("message", message))
		return false
	}

	recordShown()
	if err := t.alerter.Alert(ctx, t.title, message); err != nil {
		t.logger.Warn("failed to surface network alert",
			slog.String("message", message),
			slog.Any("error", err))
	}
	return true
}
