package interaction

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"feedsync/internal/domain/entity"
	"feedsync/internal/remote"
)

// Strategy performs the remote side of one interaction kind. It is injected
// into the Manager at construction so the manager holds no hidden globals.
type Strategy interface {
	// IsActive reports whether userID has the interaction on entityID.
	IsActive(ctx context.Context, userID, entityID string) (bool, error)
	// Count returns how many actors have the interaction on entityID.
	Count(ctx context.Context, entityID string) (int, error)
	// Activate records the interaction. Activating twice must not fail.
	Activate(ctx context.Context, userID, entityID string) error
	// Deactivate removes the interaction.
	Deactivate(ctx context.Context, userID, entityID string) error
}

// RemoteStrategy stores interactions as (user, entity) rows in one collection.
type RemoteStrategy struct {
	store        remote.Store
	table        string
	userColumn   string
	entityColumn string
}

// NewRemoteStrategy creates a strategy over table with the given column names.
func NewRemoteStrategy(store remote.Store, table, userColumn, entityColumn string) *RemoteStrategy {
	return &RemoteStrategy{
		store:        store,
		table:        table,
		userColumn:   userColumn,
		entityColumn: entityColumn,
	}
}

// NewLikeStrategy returns the strategy for post likes.
func NewLikeStrategy(store remote.Store) *RemoteStrategy {
	return NewRemoteStrategy(store, "likes", "user_id", "post_id")
}

// NewBookmarkStrategy returns the strategy for post bookmarks.
func NewBookmarkStrategy(store remote.Store) *RemoteStrategy {
	return NewRemoteStrategy(store, "bookmarks", "user_id", "post_id")
}

// StrategyFor returns the remote strategy for a known operation.
func StrategyFor(op entity.Operation, store remote.Store) (*RemoteStrategy, error) {
	switch op {
	case entity.OperationLike:
		return NewLikeStrategy(store), nil
	case entity.OperationBookmark:
		return NewBookmarkStrategy(store), nil
	}
	return nil, fmt.Errorf("%w: unknown operation %q", entity.ErrInvalidInput, op)
}

func (s *RemoteStrategy) rowFilters(userID, entityID string) []remote.Filter {
	return []remote.Filter{
		remote.Eq(s.userColumn, userID),
		remote.Eq(s.entityColumn, entityID),
	}
}

// IsActive implements Strategy.
func (s *RemoteStrategy) IsActive(ctx context.Context, userID, entityID string) (bool, error) {
	resp, err := s.store.Select(ctx, remote.Query{
		Table:   s.table,
		Columns: []string{s.userColumn},
		Filters: s.rowFilters(userID, entityID),
		Limit:   1,
	})
	if err != nil {
		return false, err
	}
	rows, err := remote.DecodeRows[map[string]any](resp)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Count implements Strategy.
func (s *RemoteStrategy) Count(ctx context.Context, entityID string) (int, error) {
	resp, err := s.store.Select(ctx, remote.Query{
		Table:     s.table,
		Filters:   []remote.Filter{remote.Eq(s.entityColumn, entityID)},
		CountOnly: true,
	})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Activate implements Strategy. A unique-violation conflict means the row
// already exists, which is the desired end state.
func (s *RemoteStrategy) Activate(ctx context.Context, userID, entityID string) error {
	_, err := s.store.Insert(ctx, s.table, map[string]any{
		s.userColumn:   userID,
		s.entityColumn: entityID,
	})
	var rerr *remote.Error
	if errors.As(err, &rerr) && rerr.Status == http.StatusConflict {
		return nil
	}
	return err
}

// Deactivate implements Strategy.
func (s *RemoteStrategy) Deactivate(ctx context.Context, userID, entityID string) error {
	_, err := s.store.Delete(ctx, remote.Query{
		Table:   s.table,
		Filters: s.rowFilters(userID, entityID),
	})
	return err
}
