package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"feedsync/internal/infra/db"
	"feedsync/internal/observability/metrics"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"

	"github.com/jackc/pgx/v5"
)

// changePayload is the JSON document the change trigger publishes.
type changePayload struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// Listener implements remote.Subscriber with LISTEN/NOTIFY on the change channel.
// Each subscription holds its own connection and reconnects with backoff.
type Listener struct {
	dsn     string
	channel string
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewListener creates a listener connecting with dsn.
func NewListener(dsn string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dsn:     dsn,
		channel: db.ChangeChannel,
		policy:  retry.DefaultPolicy(),
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe implements remote.Subscriber. The first connection is made
// synchronously so configuration errors surface to the caller.
func (l *Listener) Subscribe(ctx context.Context, table string, filters []remote.Filter) (<-chan remote.Change, error) {
	if _, err := ident(table); err != nil {
		return nil, err
	}
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan remote.Change, 16)
	go l.run(ctx, conn, table, filters, out)
	return out, nil
}

func (l *Listener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return nil, fmt.Errorf("listener connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", l.channel, err)
	}
	return conn, nil
}

func (l *Listener) run(ctx context.Context, conn *pgx.Conn, table string, filters []remote.Filter, out chan<- remote.Change) {
	defer close(out)
	attempt := 0

	for {
		if conn == nil {
			if err := retry.Wait(ctx, l.policy.Delay(attempt)); err != nil {
				return
			}
			attempt++
			var err error
			conn, err = l.connect(ctx)
			if err != nil {
				l.logger.Warn("listener reconnect failed",
					slog.String("table", table),
					slog.Int("attempt", attempt),
					slog.Any("error", err))
				continue
			}
			l.logger.Info("listener reconnected", slog.String("table", table))
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			_ = conn.Close(context.Background())
			conn = nil
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("listener connection lost",
				slog.String("table", table),
				slog.Any("error", err))
			continue
		}
		attempt = 0

		change, ok := l.decode(n.Payload, table, filters)
		if !ok {
			continue
		}
		metrics.RecordRealtimeEvent(table, string(change.Type))
		select {
		case out <- change:
		case <-ctx.Done():
			_ = conn.Close(context.Background())
			return
		}
	}
}

// decode parses a payload and reports whether it belongs to the subscription.
func (l *Listener) decode(payload, table string, filters []remote.Filter) (remote.Change, bool) {
	var p changePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		l.logger.Warn("discarding malformed change payload", slog.Any("error", err))
		return remote.Change{}, false
	}
	if p.Table != table {
		return remote.Change{}, false
	}
	if !matchFilters(p.Record, filters) {
		return remote.Change{}, false
	}
	return remote.Change{
		Table:      p.Table,
		Type:       remote.ChangeType(p.Type),
		Record:     p.Record,
		ReceivedAt: l.now(),
	}, true
}

// matchFilters evaluates filters against a JSON row. Values compare as text,
// except gt/lt which compare numerically when both sides are numbers.
func matchFilters(record json.RawMessage, filters []remote.Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var row map[string]any
	if err := json.Unmarshal(record, &row); err != nil {
		return false
	}
	for _, f := range filters {
		v, present := row[f.Column]
		if !present {
			return false
		}
		got := text(v)
		switch f.Op {
		case remote.OpEq:
			if got != text(f.Value) {
				return false
			}
		case remote.OpNeq:
			if got == text(f.Value) {
				return false
			}
		case remote.OpIn:
			values, _ := f.Value.([]string)
			found := false
			for _, want := range values {
				if got == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case remote.OpGt:
			if compare(got, text(f.Value)) <= 0 {
				return false
			}
		case remote.OpLt:
			if compare(got, text(f.Value)) >= 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
