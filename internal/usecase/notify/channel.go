// Package notify persists user notifications and delivers them best-effort.
//
// The Dispatcher writes the notification row first; that row is the durable
// record the recipient sees in their inbox. Delivery then walks the configured
// channels in order (push, then local alert) and never fails the caller.
// The Inbox lists, marks and deletes the current user's notifications and
// follows new rows in realtime.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedsync/internal/domain/entity"
	"feedsync/internal/infra/notifier"
	"feedsync/internal/remote"
)

const pushTokensTable = "push_tokens"

// Channel delivers an already persisted notification.
//
// Thread Safety:
//   - All methods must be safe for concurrent use by multiple goroutines
//
// Context Handling:
//   - Implementations must respect context cancellation and timeout
type Channel interface {
	// Name returns the channel identifier used in logs, metrics and health output.
	Name() string

	// IsEnabled reports whether the channel takes part in delivery.
	IsEnabled() bool

	// Deliver sends n to its recipient.
	//
	// Returns:
	//   - ErrNoPushToken: the recipient cannot be reached on this channel, try the next one
	//   - other error: delivery failed; the dispatcher logs it and stops
	Deliver(ctx context.Context, n *entity.Notification) error
}

// PushChannel delivers to every device token registered for the recipient.
type PushChannel struct {
	store   remote.Store
	sender  notifier.PushSender
	enabled bool
	logger  *slog.Logger
}

// NewPushChannel creates a push channel reading tokens from the push_tokens collection.
func NewPushChannel(store remote.Store, sender notifier.PushSender, enabled bool) *PushChannel {
	return &PushChannel{
		store:   store,
		sender:  sender,
		enabled: enabled,
		logger:  slog.Default(),
	}
}

// Name implements Channel.
func (c *PushChannel) Name() string { return "push" }

// IsEnabled implements Channel.
func (c *PushChannel) IsEnabled() bool { return c.enabled }

type pushTokenRow struct {
	Token string `json:"token"`
}

// Deliver implements Channel. Tokens the gateway reports as unregistered are
// removed; when none remain ErrNoPushToken is returned.
func (c *PushChannel) Deliver(ctx context.Context, n *entity.Notification) error {
	if !c.enabled {
		return ErrChannelDisabled
	}

	resp, err := c.store.Select(ctx, remote.Query{
		Table:   pushTokensTable,
		Columns: []string{"token"},
		Filters: []remote.Filter{remote.Eq("user_id", n.UserID)},
	})
	if err != nil {
		return fmt.Errorf("lookup push tokens: %w", err)
	}
	rows, err := remote.DecodeRows[pushTokenRow](resp)
	if err != nil {
		return err
	}

	data := map[string]any{"notification_id": n.ID, "type": string(n.Type)}
	for k, v := range n.Data {
		data[k] = v
	}

	var (
		delivered int
		errs      []error
	)
	for _, row := range rows {
		if row.Token == "" {
			continue
		}
		err := c.sender.SendPush(ctx, row.Token, n.Title, n.Body, data)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, notifier.ErrDeviceNotRegistered):
			c.forgetToken(ctx, n.UserID, row.Token)
		default:
			errs = append(errs, err)
		}
	}

	if delivered > 0 {
		return nil
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return ErrNoPushToken
}

func (c *PushChannel) forgetToken(ctx context.Context, userID, token string) {
	_, err := c.store.Delete(ctx, remote.Query{
		Table: pushTokensTable,
		Filters: []remote.Filter{
			remote.Eq("user_id", userID),
			remote.Eq("token", token),
		},
	})
	if err != nil {
		c.logger.Warn("failed to remove stale push token",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}
	c.logger.Info("removed stale push token", slog.String("user_id", userID))
}

// AlertChannel raises an immediate local alert.
type AlertChannel struct {
	alerter notifier.Alerter
}

// NewAlertChannel creates the local alert channel.
func NewAlertChannel(alerter notifier.Alerter) *AlertChannel {
	if alerter == nil {
		alerter = notifier.NewNoOpAlerter()
	}
	return &AlertChannel{alerter: alerter}
}

// Name implements Channel.
func (c *AlertChannel) Name() string { return "alert" }

// IsEnabled implements Channel.
func (c *AlertChannel) IsEnabled() bool { return true }

// Deliver implements Channel.
func (c *AlertChannel) Deliver(ctx context.Context, n *entity.Notification) error {
	return c.alerter.Alert(ctx, n.Title, n.Body)
}
