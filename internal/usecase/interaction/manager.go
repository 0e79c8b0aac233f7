// Package interaction manages per-entity toggle state (likes, bookmarks) with
// request deduplication, a minimum-interval query ledger, optimistic local
// mutation with exact rollback, and authoritative reconcile after success.
package interaction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/domain/entity"
	"feedsync/internal/remote"
	"feedsync/internal/usecase/execute"
	"feedsync/pkg/ratelimit"

	"golang.org/x/sync/errgroup"
)

// DefaultRateLimit is the minimum spacing between two network queries for the same key.
const DefaultRateLimit = time.Second

// Config holds Manager settings.
type Config struct {
	// RateLimit is the status/count query window per key. Default: 1s
	RateLimit time.Duration

	// Clock drives the ledgers. Default: system clock
	Clock ratelimit.Clock

	// Metrics records dedup and suppression decisions. Default: no-op
	Metrics ratelimit.Metrics

	Logger *slog.Logger
}

// ToggleResult is the outcome of Toggle. State is the local state after the call.
type ToggleResult struct {
	Success      bool
	Deduplicated bool
	Err          error
	State        entity.InteractionState
}

// Manager owns the interaction state for one operation kind.
//
// The mutex guards the state map only and is never held across a remote
// call; the pending registry keeps a single request per key in flight.
type Manager struct {
	op       entity.Operation
	strategy Strategy
	exec     *execute.Executor
	identity remote.Identity
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*entity.InteractionState

	// pending is shared by CheckStatus and Toggle; Count has its own namespace.
	pending      *ratelimit.Registry[entity.InteractionKey]
	countPending *ratelimit.Registry[entity.InteractionKey]
	statusLedger *ratelimit.Ledger[entity.InteractionKey]
	countLedger  *ratelimit.Ledger[entity.InteractionKey]
}

// NewManager creates a manager for op backed by strategy.
func NewManager(op entity.Operation, strategy Strategy, exec *execute.Executor, identity remote.Identity, cfg Config) *Manager {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	scope := string(op)
	ledger := func(query string) *ratelimit.Ledger[entity.InteractionKey] {
		return ratelimit.NewLedger[entity.InteractionKey](ratelimit.LedgerConfig{
			Scope:    scope + "." + query,
			Interval: cfg.RateLimit,
			Clock:    cfg.Clock,
			Metrics:  cfg.Metrics,
		})
	}
	return &Manager{
		op:           op,
		strategy:     strategy,
		exec:         exec,
		identity:     identity,
		logger:       cfg.Logger.With(slog.String("interaction", scope)),
		states:       make(map[string]*entity.InteractionState),
		pending:      ratelimit.NewRegistry[entity.InteractionKey](scope+".status", cfg.Metrics),
		countPending: ratelimit.NewRegistry[entity.InteractionKey](scope+".count", cfg.Metrics),
		statusLedger: ledger("status"),
		countLedger:  ledger("count"),
	}
}

// Operation returns the interaction kind this manager handles.
func (m *Manager) Operation() entity.Operation {
	return m.op
}

func (m *Manager) key(entityID string) entity.InteractionKey {
	return entity.InteractionKey{EntityID: entityID, Operation: m.op}
}

// update mutates the state for entityID under the lock, creating it lazily,
// and returns a copy of the result.
func (m *Manager) update(entityID string, fn func(st *entity.InteractionState)) entity.InteractionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[entityID]
	if !ok {
		st = &entity.InteractionState{}
		m.states[entityID] = st
	}
	fn(st)
	return *st
}

// State returns a copy of the cached state for entityID.
func (m *Manager) State(entityID string) entity.InteractionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[entityID]; ok {
		return *st
	}
	return entity.InteractionState{}
}

// States returns a copy of every cached state.
func (m *Manager) States() map[string]entity.InteractionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]entity.InteractionState, len(m.states))
	for id, st := range m.states {
		out[id] = *st
	}
	return out
}

// Reset discards cached state for the given entities, or for all entities when none are given.
// Ledger entries go with it so the next query reaches the network.
func (m *Manager) Reset(entityIDs ...string) {
	m.mu.Lock()
	if len(entityIDs) == 0 {
		for id := range m.states {
			entityIDs = append(entityIDs, id)
		}
	}
	for _, id := range entityIDs {
		delete(m.states, id)
	}
	m.mu.Unlock()

	for _, id := range entityIDs {
		m.statusLedger.Forget(m.key(id))
		m.countLedger.Forget(m.key(id))
	}
}

// PruneLedgers drops expired ledger entries and returns how many were removed.
func (m *Manager) PruneLedgers() int {
	return m.statusLedger.Prune() + m.countLedger.Prune()
}

// CheckStatus returns whether the current user has the interaction on entityID.
// The cached value is returned without a network call when the key is in
// flight, was queried within the rate-limit window, or nobody is signed in.
func (m *Manager) CheckStatus(ctx context.Context, entityID string) (bool, error) {
	key := m.key(entityID)

	userID, ok := m.identity.CurrentUserID()
	if !ok {
		recordCachedRead(string(m.op), "status", "unauthenticated")
		return m.State(entityID).IsActive, nil
	}

	release, ok := m.pending.Acquire(key)
	if !ok {
		recordCachedRead(string(m.op), "status", "in_flight")
		return m.State(entityID).IsActive, nil
	}
	defer release()

	// The stamp stays on failure too: a failed query still reached the network.
	if !m.statusLedger.Allow(key) {
		recordCachedRead(string(m.op), "status", "rate_limited")
		return m.State(entityID).IsActive, nil
	}

	m.update(entityID, func(st *entity.InteractionState) { st.Loading = true })

	active, err := execute.Do(ctx, m.exec, string(m.op)+".status", func(ctx context.Context) (bool, error) {
		return m.strategy.IsActive(ctx, userID, entityID)
	})

	st := m.update(entityID, func(st *entity.InteractionState) {
		st.Loading = false
		if err != nil {
			st.Error = execute.UserMessage(err)
			return
		}
		st.IsActive = active
		st.Error = ""
	})
	if err != nil {
		return st.IsActive, err
	}
	return active, nil
}

// Count returns the number of actors with the interaction on entityID, under
// the same dedup and rate-limit discipline as CheckStatus in its own namespace.
func (m *Manager) Count(ctx context.Context, entityID string) (int, error) {
	key := m.key(entityID)

	release, ok := m.countPending.Acquire(key)
	if !ok {
		recordCachedRead(string(m.op), "count", "in_flight")
		return m.State(entityID).Count, nil
	}
	defer release()

	if !m.countLedger.Allow(key) {
		recordCachedRead(string(m.op), "count", "rate_limited")
		return m.State(entityID).Count, nil
	}

	n, err := execute.Do(ctx, m.exec, string(m.op)+".count", func(ctx context.Context) (int, error) {
		return m.strategy.Count(ctx, entityID)
	})
	if err != nil {
		m.logger.Debug("count query failed", slog.String("entity_id", entityID), slog.Any("error", err))
		return m.State(entityID).Count, err
	}

	m.update(entityID, func(st *entity.InteractionState) { st.Count = n })
	return n, nil
}

// Toggle flips the interaction for the current user on entityID.
//
// The local state flips immediately; the remote mutation follows. On failure
// IsActive and Count are restored to their pre-toggle values. On success both
// are re-fetched from the backend to absorb concurrent changes by others.
func (m *Manager) Toggle(ctx context.Context, entityID string) ToggleResult {
	key := m.key(entityID)

	userID, ok := m.identity.CurrentUserID()
	if !ok {
		recordToggle(string(m.op), "unauthenticated")
		return ToggleResult{Err: ErrAuthRequired, State: m.State(entityID)}
	}

	release, ok := m.pending.Acquire(key)
	if !ok {
		recordToggle(string(m.op), "deduplicated")
		return ToggleResult{Deduplicated: true, Err: ErrRequestInFlight, State: m.State(entityID)}
	}
	defer release()

	var before entity.InteractionState
	m.update(entityID, func(st *entity.InteractionState) {
		before = *st
		st.IsActive = !before.IsActive
		if st.IsActive {
			st.Count = before.Count + 1
		} else if before.Count > 0 {
			st.Count = before.Count - 1
		}
		st.Loading = true
		st.Error = ""
	})

	name := string(m.op) + ".activate"
	mutate := m.strategy.Activate
	if before.IsActive {
		name = string(m.op) + ".deactivate"
		mutate = m.strategy.Deactivate
	}
	_, err := execute.Do(ctx, m.exec, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, mutate(ctx, userID, entityID)
	})
	if err != nil {
		st := m.update(entityID, func(st *entity.InteractionState) {
			st.IsActive = before.IsActive
			st.Count = before.Count
			st.Loading = false
			st.Error = execute.UserMessage(err)
		})
		recordToggle(string(m.op), "rollback")
		m.logger.Warn("toggle failed, rolled back",
			slog.String("entity_id", entityID),
			slog.Bool("active", before.IsActive),
			slog.Any("error", err))
		return ToggleResult{Err: err, State: st}
	}

	st := m.reconcile(ctx, userID, entityID)
	recordToggle(string(m.op), "success")
	return ToggleResult{Success: true, State: st}
}

// reconcile fetches authoritative status and count concurrently. When either
// fetch fails the optimistic values stay in place.
func (m *Manager) reconcile(ctx context.Context, userID, entityID string) entity.InteractionState {
	key := m.key(entityID)

	var (
		active bool
		count  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		active, err = execute.Do(gctx, m.exec, string(m.op)+".status", func(ctx context.Context) (bool, error) {
			return m.strategy.IsActive(ctx, userID, entityID)
		}, execute.Silent())
		return err
	})
	g.Go(func() error {
		var err error
		count, err = execute.Do(gctx, m.exec, string(m.op)+".count", func(ctx context.Context) (int, error) {
			return m.strategy.Count(ctx, entityID)
		}, execute.Silent())
		return err
	})

	if err := g.Wait(); err != nil {
		recordReconcileFailure(string(m.op))
		m.logger.Warn("reconcile after toggle failed, keeping optimistic state",
			slog.String("entity_id", entityID),
			slog.Any("error", err))
		return m.update(entityID, func(st *entity.InteractionState) { st.Loading = false })
	}

	m.statusLedger.Touch(key)
	m.countLedger.Touch(key)
	return m.update(entityID, func(st *entity.InteractionState) {
		st.IsActive = active
		st.Count = count
		st.Loading = false
		st.Error = ""
	})
}
