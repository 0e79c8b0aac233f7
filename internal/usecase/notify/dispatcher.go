package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"feedsync/internal/domain/entity"
	"feedsync/internal/observability/logging"
	"feedsync/internal/remote"
	"feedsync/internal/usecase/execute"
	"feedsync/pkg/ratelimit"

	"github.com/google/uuid"
)

const notificationsTable = "notifications"

// Channel health defaults
const (
	DefaultFailureThreshold = 5                // consecutive failures before a channel is skipped
	DefaultOpenTimeout      = 5 * time.Minute  // how long a failing channel is skipped
	DefaultDeliveryTimeout  = 10 * time.Second // bound on the whole delivery step
)

// Config holds Dispatcher settings.
type Config struct {
	DeliveryTimeout  time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
	Clock            ratelimit.Clock
	Logger           *slog.Logger
}

// ChannelHealthStatus represents the health status of a delivery channel.
type ChannelHealthStatus struct {
	Name               string     // Channel name (e.g., "push", "alert")
	Enabled            bool       // Whether the channel is enabled
	CircuitBreakerOpen bool       // Whether the circuit breaker is currently open
	DisabledUntil      *time.Time // Time until circuit breaker remains open (nil if closed)
}

// channelHealth tracks circuit breaker state for a channel
type channelHealth struct {
	consecutiveFailures int
	disabledUntil       time.Time
	mu                  sync.Mutex
}

// Dispatcher persists notifications and delivers them best-effort.
type Dispatcher struct {
	store    remote.Store
	exec     *execute.Executor
	channels []Channel
	health   map[string]*channelHealth
	cfg      Config
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. channels are tried in order until one
// delivers or fails with something other than ErrNoPushToken.
func NewDispatcher(store remote.Store, exec *execute.Executor, channels []Channel, cfg Config) *Dispatcher {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = &ratelimit.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		store:    store,
		exec:     exec,
		channels: channels,
		health:   make(map[string]*channelHealth, len(channels)),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
	enabled := 0
	for _, ch := range channels {
		d.health[ch.Name()] = &channelHealth{}
		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))
	return d
}

// Send persists a notification for in.RecipientID and then attempts delivery.
//
// A persistence failure is returned and nothing is delivered. Delivery
// failures are logged and counted, never returned: the persisted row is
// what the recipient sees in the inbox regardless of live delivery.
func (d *Dispatcher) Send(ctx context.Context, in entity.NotificationInput) (*entity.Notification, error) {
	if err := entity.Validate(in); err != nil {
		RecordPersisted("rejected")
		return nil, err
	}

	row := map[string]any{
		"id":      uuid.NewString(),
		"user_id": in.RecipientID,
		"title":   in.Title,
		"body":    in.Body,
		"type":    string(in.Type),
		"read":    false,
	}
	if len(in.Data) > 0 {
		row["data"] = in.Data
	}

	local := func() *entity.Notification {
		return &entity.Notification{
			ID:        row["id"].(string),
			UserID:    in.RecipientID,
			Title:     in.Title,
			Body:      in.Body,
			Type:      in.Type,
			Data:      in.Data,
			CreatedAt: d.cfg.Clock.Now().UTC(),
		}
	}

	attempts := 0
	n, err := execute.Do(ctx, d.exec, "notification.persist", func(ctx context.Context) (*entity.Notification, error) {
		attempts++
		resp, err := d.store.Insert(ctx, notificationsTable, row)
		if err != nil {
			// The id is ours, so a conflict after a failed attempt means
			// that attempt committed before its response was lost.
			if attempts > 1 && remote.StatusOf(err) == http.StatusConflict {
				d.logger.Debug("notification already persisted by an earlier attempt",
					slog.String("notification_id", row["id"].(string)))
				return local(), nil
			}
			return nil, err
		}
		stored, err := remote.DecodeOne[entity.Notification](resp)
		if errors.Is(err, remote.ErrNoRows) {
			// Backend did not return the representation.
			return local(), nil
		}
		if err != nil {
			return nil, err
		}
		return &stored, nil
	})
	if err != nil {
		RecordPersisted("failure")
		return nil, err
	}
	RecordPersisted("success")

	d.deliver(ctx, n)
	return n, nil
}

// deliver walks the channels under the delivery timeout. It never returns an error.
func (d *Dispatcher) deliver(ctx context.Context, n *entity.Notification) {
	logger := logging.WithRequestID(ctx, d.logger).With(
		slog.String("notification_id", n.ID),
		slog.String("recipient_id", n.UserID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in notification delivery",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	// Delivery outlives a caller that is done with the triggering action.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.DeliveryTimeout)
	defer cancel()

	for _, ch := range d.channels {
		if !ch.IsEnabled() {
			continue
		}
		if d.isOpen(ch.Name()) {
			logger.Warn("channel temporarily disabled due to circuit breaker", slog.String("channel", ch.Name()))
			RecordDropped(ch.Name(), "circuit_open")
			continue
		}

		start := d.cfg.Clock.Now()
		RecordDispatch(ch.Name())
		err := ch.Deliver(ctx, n)
		duration := d.cfg.Clock.Now().Sub(start)

		if errors.Is(err, ErrNoPushToken) {
			RecordDropped(ch.Name(), "no_recipient")
			logger.Debug("channel cannot reach recipient, falling back", slog.String("channel", ch.Name()))
			continue
		}

		d.recordResult(ch.Name(), err, logger)
		if err != nil {
			RecordFailure(ch.Name(), duration)
			logger.Warn("notification delivery failed",
				slog.String("channel", ch.Name()),
				slog.Duration("send_duration", duration),
				slog.Any("error", err))
			return
		}

		RecordSuccess(ch.Name(), duration)
		logger.Info("notification delivered",
			slog.String("channel", ch.Name()),
			slog.Duration("send_duration", duration))
		return
	}

	logger.Debug("notification persisted without live delivery")
}

func (d *Dispatcher) isOpen(name string) bool {
	h := d.health[name]
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return d.cfg.Clock.Now().Before(h.disabledUntil)
}

// recordResult updates the consecutive-failure circuit for a channel.
func (d *Dispatcher) recordResult(name string, err error, logger *slog.Logger) {
	h := d.health[name]
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.consecutiveFailures = 0
		return
	}
	h.consecutiveFailures++
	if h.consecutiveFailures >= d.cfg.FailureThreshold {
		h.disabledUntil = d.cfg.Clock.Now().Add(d.cfg.OpenTimeout)
		h.consecutiveFailures = 0
		logger.Error("circuit breaker opened for channel",
			slog.String("channel", name),
			slog.Time("disabled_until", h.disabledUntil))
		RecordCircuitBreakerOpen(name)
	}
}

// ChannelHealth returns the health status of all delivery channels.
func (d *Dispatcher) ChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(d.channels))
	now := d.cfg.Clock.Now()

	for _, ch := range d.channels {
		h := d.health[ch.Name()]

		h.mu.Lock()
		var disabledUntil *time.Time
		open := false
		if now.Before(h.disabledUntil) {
			open = true
			until := h.disabledUntil
			disabledUntil = &until
		}
		h.mu.Unlock()

		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: open,
			DisabledUntil:      disabledUntil,
		})
	}
	return statuses
}
