package notifier

import "context"

// NoOpPushSender is used when push delivery is disabled.
// This follows the Null Object pattern.
type NoOpPushSender struct{}

// NewNoOpPushSender creates a new NoOpPushSender instance.
func NewNoOpPushSender() *NoOpPushSender {
	return &NoOpPushSender{}
}

// SendPush does nothing and returns nil immediately.
func (n *NoOpPushSender) SendPush(ctx context.Context, token, title, body string, data map[string]any) error {
	return nil
}

// NoOpAlerter discards alerts.
type NoOpAlerter struct{}

// NewNoOpAlerter creates a new NoOpAlerter instance.
func NewNoOpAlerter() *NoOpAlerter {
	return &NoOpAlerter{}
}

// Alert does nothing and returns nil immediately.
func (n *NoOpAlerter) Alert(ctx context.Context, title, body string) error {
	return nil
}
