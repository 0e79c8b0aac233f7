// Package retry provides retry policies with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying failed operations.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Policy holds the configuration for retry logic.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero means exactly one attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry; it doubles on each subsequent retry.
	BaseDelay time.Duration

	// Jitter is the upper bound of the uniformly random delay added to every backoff.
	Jitter time.Duration

	// MaxDelay caps the exponential part of the delay. Zero disables the cap.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used for remote store requests:
// two retries, 500ms base delay, up to 150ms jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		Jitter:     150 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// PushGatewayPolicy returns the policy for push delivery.
// Moderate retry since delivery is best-effort.
func PushGatewayPolicy() Policy {
	return Policy{
		MaxRetries: 1,
		BaseDelay:  2 * time.Second,
		Jitter:     500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// UploadPolicy returns the policy for blob uploads.
func UploadPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		Jitter:     250 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// Delay returns the backoff before retry n (1-based):
// BaseDelay * 2^(n-1) + random(0, Jitter).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay + jitter(p.Jitter)
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry aborted: %w", ctx.Err())
	}
}

// Do executes fn, retrying while retryable(err) reports true and retries remain.
// It returns nil on success, the error unchanged when it is not retryable,
// or the last error wrapped once retries are exhausted.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			slog.Warn("operation failed, retrying",
				slog.Int("retry", attempt),
				slog.Int("max_retries", p.MaxRetries),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr))
			if err := Wait(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				slog.Info("operation succeeded after retry", slog.Int("retry", attempt))
			}
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", p.MaxRetries, lastErr)
}

// jitter returns a uniformly random duration in [0, max].
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	// Cryptographic randomness is not required for retry backoff jitter.
	return time.Duration(rand.Int63n(int64(max) + 1))
}
