package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"feedsync/internal/domain/entity"
	"feedsync/internal/infra/notifier"
	"feedsync/internal/remote"
	"feedsync/internal/usecase/execute"
	"feedsync/pkg/ratelimit"

	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the number of notifications the inbox loads.
const DefaultPageSize = 50

// InboxConfig holds Inbox settings.
type InboxConfig struct {
	PageSize int
	Logger   *slog.Logger
}

// Inbox is the current user's notification list, newest first.
//
// Only explicit actions mutate records: MarkRead, MarkAllRead and Delete.
type Inbox struct {
	store      remote.Store
	exec       *execute.Executor
	identity   remote.Identity
	subscriber remote.Subscriber
	alerter    notifier.Alerter
	pageSize   int
	logger     *slog.Logger

	mu      sync.Mutex
	items   []entity.Notification
	pending *ratelimit.Registry[string]
}

// NewInbox creates an inbox. subscriber and alerter may be nil; Watch then fails
// and realtime rows raise no alert.
func NewInbox(store remote.Store, exec *execute.Executor, identity remote.Identity, subscriber remote.Subscriber, alerter notifier.Alerter, cfg InboxConfig) *Inbox {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if alerter == nil {
		alerter = notifier.NewNoOpAlerter()
	}
	return &Inbox{
		store:      store,
		exec:       exec,
		identity:   identity,
		subscriber: subscriber,
		alerter:    alerter,
		pageSize:   cfg.PageSize,
		logger:     cfg.Logger.With(slog.String("component", "inbox")),
		pending:    ratelimit.NewRegistry[string]("notification", nil),
	}
}

func (b *Inbox) userID() (string, error) {
	id, ok := b.identity.CurrentUserID()
	if !ok {
		return "", ErrAuthRequired
	}
	return id, nil
}

// Items returns a copy of the local list.
func (b *Inbox) Items() []entity.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Unread returns the number of unread notifications in the local list.
func (b *Inbox) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, item := range b.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// List loads the newest notifications of the current user and replaces the local list.
func (b *Inbox) List(ctx context.Context) ([]entity.Notification, error) {
	userID, err := b.userID()
	if err != nil {
		return nil, err
	}

	items, err := execute.Do(ctx, b.exec, "inbox.list", func(ctx context.Context) ([]entity.Notification, error) {
		resp, err := b.store.Select(ctx, remote.Query{
			Table:   notificationsTable,
			Filters: []remote.Filter{remote.Eq("user_id", userID)},
			Order:   &remote.Order{Column: "created_at", Ascending: false},
			Limit:   b.pageSize,
		})
		if err != nil {
			return nil, err
		}
		return remote.DecodeRows[entity.Notification](resp)
	})
	if err != nil {
		recordInboxAction("list", "failure")
		return nil, err
	}

	b.mu.Lock()
	b.items = items
	b.mu.Unlock()
	recordInboxAction("list", "success")
	return slices.Clone(items), nil
}

// UnreadCount asks the backend how many notifications are unread.
func (b *Inbox) UnreadCount(ctx context.Context) (int, error) {
	userID, err := b.userID()
	if err != nil {
		return 0, err
	}
	return execute.Do(ctx, b.exec, "inbox.unread", func(ctx context.Context) (int, error) {
		resp, err := b.store.Select(ctx, remote.Query{
			Table: notificationsTable,
			Filters: []remote.Filter{
				remote.Eq("user_id", userID),
				remote.Eq("read", false),
			},
			CountOnly: true,
		})
		if err != nil {
			return 0, err
		}
		return resp.Count, nil
	})
}

// Refresh reloads the list and the authoritative unread count concurrently.
func (b *Inbox) Refresh(ctx context.Context) ([]entity.Notification, int, error) {
	var (
		items  []entity.Notification
		unread int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = b.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		unread, err = b.UnreadCount(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

// MarkRead marks one notification read. The local flag flips immediately and
// is restored if the backend rejects the update.
func (b *Inbox) MarkRead(ctx context.Context, id string) error {
	userID, err := b.userID()
	if err != nil {
		return err
	}

	release, ok := b.pending.Acquire(id)
	if !ok {
		return ErrRequestInFlight
	}
	defer release()

	b.mu.Lock()
	i := b.indexLocked(id)
	if i < 0 {
		b.mu.Unlock()
		return ErrNotificationNotFound
	}
	if b.items[i].Read {
		b.mu.Unlock()
		return nil
	}
	b.items[i].Read = true
	b.mu.Unlock()

	_, err = execute.Do(ctx, b.exec, "inbox.mark_read", func(ctx context.Context) (*remote.Response, error) {
		return b.store.Update(ctx, remote.Query{
			Table: notificationsTable,
			Filters: []remote.Filter{
				remote.Eq("id", id),
				remote.Eq("user_id", userID),
			},
		}, map[string]any{"read": true})
	})
	if err != nil {
		b.mu.Lock()
		if i := b.indexLocked(id); i >= 0 {
			b.items[i].Read = false
		}
		b.mu.Unlock()
		recordInboxAction("mark_read", "rollback")
		return err
	}
	recordInboxAction("mark_read", "success")
	return nil
}

// MarkAllRead marks every unread notification read, restoring exactly the
// previously unread ones on failure.
func (b *Inbox) MarkAllRead(ctx context.Context) error {
	userID, err := b.userID()
	if err != nil {
		return err
	}

	b.mu.Lock()
	var flipped []string
	for i := range b.items {
		if !b.items[i].Read {
			b.items[i].Read = true
			flipped = append(flipped, b.items[i].ID)
		}
	}
	b.mu.Unlock()

	_, err = execute.Do(ctx, b.exec, "inbox.mark_all_read", func(ctx context.Context) (*remote.Response, error) {
		return b.store.Update(ctx, remote.Query{
			Table: notificationsTable,
			Filters: []remote.Filter{
				remote.Eq("user_id", userID),
				remote.Eq("read", false),
			},
		}, map[string]any{"read": true})
	})
	if err != nil {
		b.mu.Lock()
		for _, id := range flipped {
			if i := b.indexLocked(id); i >= 0 {
				b.items[i].Read = false
			}
		}
		b.mu.Unlock()
		recordInboxAction("mark_all_read", "rollback")
		return err
	}
	recordInboxAction("mark_all_read", "success")
	return nil
}

// Delete removes a notification owned by the current user. The local entry
// is dropped only after the backend confirms.
func (b *Inbox) Delete(ctx context.Context, id string) error {
	userID, err := b.userID()
	if err != nil {
		return err
	}

	release, ok := b.pending.Acquire(id)
	if !ok {
		return ErrRequestInFlight
	}
	defer release()

	_, err = execute.Do(ctx, b.exec, "inbox.delete", func(ctx context.Context) (*remote.Response, error) {
		return b.store.Delete(ctx, remote.Query{
			Table: notificationsTable,
			Filters: []remote.Filter{
				remote.Eq("id", id),
				remote.Eq("user_id", userID),
			},
		})
	})
	if err != nil {
		recordInboxAction("delete", "failure")
		return err
	}

	b.mu.Lock()
	if i := b.indexLocked(id); i >= 0 {
		b.items = slices.Delete(b.items, i, i+1)
	}
	b.mu.Unlock()
	recordInboxAction("delete", "success")
	return nil
}

// Watch follows notifications created for the current user. Each new row is
// prepended to the local list and raised as a local alert. It blocks until ctx
// is done or the subscription ends.
func (b *Inbox) Watch(ctx context.Context) error {
	userID, err := b.userID()
	if err != nil {
		return err
	}
	if b.subscriber == nil {
		return errors.New("inbox: no realtime subscriber configured")
	}

	changes, err := b.subscriber.Subscribe(ctx, notificationsTable, []remote.Filter{remote.Eq("user_id", userID)})
	if err != nil {
		return err
	}
	b.logger.Info("watching notifications", slog.String("user_id", userID))

	for change := range changes {
		if change.Type != remote.ChangeInsert {
			continue
		}
		var n entity.Notification
		if err := json.Unmarshal(change.Record, &n); err != nil {
			b.logger.Warn("malformed realtime notification", slog.Any("error", err))
			continue
		}
		if n.UserID != "" && n.UserID != userID {
			continue
		}
		if !b.prepend(n) {
			continue
		}
		inboxRealtimeTotal.Inc()
		if err := b.alerter.Alert(ctx, n.Title, n.Body); err != nil {
			b.logger.Warn("failed to raise notification alert",
				slog.String("notification_id", n.ID),
				slog.Any("error", err))
		}
	}
	return ctx.Err()
}

// prepend adds n at the head unless it is already present.
func (b *Inbox) prepend(n entity.Notification) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexLocked(n.ID) >= 0 {
		return false
	}
	b.items = append([]entity.Notification{n}, b.items...)
	if len(b.items) > b.pageSize {
		b.items = b.items[:b.pageSize]
	}
	return true
}

func (b *Inbox) indexLocked(id string) int {
	for i := range b.items {
		if b.items[i].ID == id {
			return i
		}
	}
	return -1
}
