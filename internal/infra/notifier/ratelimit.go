package notifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter implements token bucket algorithm for rate limiting.
// It keeps the push gateway and webhooks from being flooded when many
// notifications are dispatched at once.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new RateLimiter with the specified rate and burst capacity.
//
// Example:
//
//	limiter := NewRateLimiter(6.0, 10)  // 6 req/s with burst of 10
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// NewIntervalLimiter allows one request per interval with the given burst.
func NewIntervalLimiter(interval time.Duration, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until a token is available or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// TryAcquire takes a token without blocking and reports whether one was available.
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}
