package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// PollingSubscriber emulates realtime inserts by periodically selecting rows
// created after the newest row already seen. It serves backends without a push channel.
type PollingSubscriber struct {
	store        Store
	interval     time.Duration
	cursorColumn string
	now          func() time.Time
}

// NewPollingSubscriber creates a subscriber that polls store every interval,
// using the created_at column as cursor.
func NewPollingSubscriber(store Store, interval time.Duration) *PollingSubscriber {
	return &PollingSubscriber{
		store:        store,
		interval:     interval,
		cursorColumn: "created_at",
		now:          time.Now,
	}
}

// Subscribe implements Subscriber. Only inserts are reported.
func (p *PollingSubscriber) Subscribe(ctx context.Context, table string, filters []Filter) (<-chan Change, error) {
	out := make(chan Change, 16)
	since := p.now().UTC()

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			next, err := p.poll(ctx, table, filters, since, out)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("realtime poll failed",
					slog.String("table", table),
					slog.Any("error", err))
				continue
			}
			since = next
		}
	}()

	return out, nil
}

func (p *PollingSubscriber) poll(ctx context.Context, table string, filters []Filter, since time.Time, out chan<- Change) (time.Time, error) {
	q := Query{
		Table:   table,
		Filters: append(append([]Filter(nil), filters...), Gt(p.cursorColumn, since.Format(time.RFC3339Nano))),
		Order:   &Order{Column: p.cursorColumn, Ascending: true},
	}
	resp, err := p.store.Select(ctx, q)
	if err != nil {
		return since, err
	}

	rows, err := DecodeRows[json.RawMessage](resp)
	if err != nil {
		return since, err
	}

	for _, row := range rows {
		var cursor struct {
			CreatedAt time.Time `json:"created_at"`
		}
		if err := json.Unmarshal(row, &cursor); err == nil && cursor.CreatedAt.After(since) {
			since = cursor.CreatedAt
		}
		select {
		case out <- Change{Table: table, Type: ChangeInsert, Record: row, ReceivedAt: p.now()}:
		case <-ctx.Done():
			return since, ctx.Err()
		}
	}
	return since, nil
}
