// Package notifier delivers user-facing alerts outside the remote store:
// push notifications through a push gateway and local alerts through a
// webhook or the process log.
//
// Delivery is best-effort. Callers log failures and never roll back the
// persisted notification record because of them.
package notifier

import "context"

// PushSender delivers a push notification to a single device token.
type PushSender interface {
	// SendPush sends title and body to token with an optional data payload.
	//
	// Returns:
	//   - ErrDeviceNotRegistered when the gateway reports the token is stale
	//   - *ClientError / *ServerError / *RateLimitError for HTTP failures
	//   - nil once the gateway accepted the message
	SendPush(ctx context.Context, token, title, body string, data map[string]any) error
}

// Alerter surfaces a short message to the user immediately.
type Alerter interface {
	Alert(ctx context.Context, title, body string) error
}

// AlerterFunc adapts a function to the Alerter interface.
type AlerterFunc func(ctx context.Context, title, body string) error

// Alert calls f.
func (f AlerterFunc) Alert(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}
