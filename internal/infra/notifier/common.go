package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"feedsync/internal/resilience/circuitbreaker"
	"feedsync/internal/resilience/retry"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// ErrDeviceNotRegistered is returned when the push gateway rejects a token as no longer valid.
var ErrDeviceNotRegistered = errors.New("push token is not registered")

// RateLimitError represents a 429 rate limit error from a delivery endpoint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx client error from a delivery endpoint.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx server error from a delivery endpoint.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// is429Error checks if the error is a rate limit error and extracts retry_after.
func is429Error(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryableError checks if the error is worth retrying (5xx server errors, network errors).
// Client errors (4xx), stale tokens and open breakers are not.
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}

	if errors.Is(err, ErrDeviceNotRegistered) || circuitbreaker.IsBreakerError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var rateLimitErr *RateLimitError
	return !errors.As(err, &rateLimitErr)
}

// statusError converts a non-2xx response into one of the typed errors above.
func statusError(service string, resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    service + " rate limit exceeded",
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s client error: %s", service, string(body)),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s server error: %s", service, string(body)),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// retryAfter reads the Retry-After header in seconds, defaulting to 5s.
func retryAfter(resp *http.Response) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

// readBody reads at most 64KB of the response body.
func readBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return body
}

// sendWithRetry runs send through the breaker, retrying per policy.
// 429 responses wait for the advertised Retry-After instead of the backoff delay.
func sendWithRetry(ctx context.Context, service string, policy retry.Policy, cb *circuitbreaker.CircuitBreaker, send func(ctx context.Context) error) error {
	requestID, _ := ctx.Value(requestIDKey).(string)
	maxAttempts := policy.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, send(ctx)
		})
		if err == nil {
			slog.Debug(service+" delivery successful",
				slog.String("request_id", requestID),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn(service+" rate limit hit, backing off",
				slog.String("request_id", requestID),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))
			if err := retry.Wait(ctx, rateLimitErr.RetryAfter); err != nil {
				return fmt.Errorf("context canceled during rate limit backoff: %w", err)
			}
			continue
		}

		if !isRetryableError(err) {
			slog.Warn(service+" delivery failed with non-retryable error",
				slog.String("request_id", requestID),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		delay := policy.Delay(attempt)
		slog.Warn(service+" request failed, retrying",
			slog.String("request_id", requestID),
			slog.Any("error", err),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))
		if err := retry.Wait(ctx, delay); err != nil {
			return fmt.Errorf("context canceled during retry backoff: %w", err)
		}
	}

	return fmt.Errorf("%s delivery failed after %d attempts: %w", service, maxAttempts, lastErr)
}

// truncate truncates text to maxLength bytes, appending suffix when cut.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	truncateAt := maxLength - len(suffix)
	if truncateAt < 0 {
		truncateAt = 0
	}
	return text[:truncateAt] + suffix
}
