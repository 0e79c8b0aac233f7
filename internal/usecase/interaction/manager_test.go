package interaction

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/domain/entity"
	"feedsync/internal/infra/netprobe"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"
	"feedsync/internal/usecase/execute"
	"feedsync/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStrategy is an in-memory backend. gate, when set, blocks mutations until closed.
type fakeStrategy struct {
	mu      sync.Mutex
	active  map[string]bool // userID|entityID
	extra   map[string]int  // interactions by other users per entity
	failErr error
	gate    chan struct{}
	started chan struct{}

	statusCalls   atomic.Int32
	countCalls    atomic.Int32
	mutationCalls atomic.Int32
	failReconcile atomic.Bool
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{active: map[string]bool{}, extra: map[string]int{}}
}

func (f *fakeStrategy) IsActive(ctx context.Context, userID, entityID string) (bool, error) {
	f.statusCalls.Add(1)
	if f.failReconcile.Load() {
		return false, &remote.Error{Status: http.StatusServiceUnavailable}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID+"|"+entityID], nil
}

func (f *fakeStrategy) Count(ctx context.Context, entityID string) (int, error) {
	f.countCalls.Add(1)
	if f.failReconcile.Load() {
		return 0, &remote.Error{Status: http.StatusServiceUnavailable}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.extra[entityID]
	for k, v := range f.active {
		if v && len(k) > len(entityID) && k[len(k)-len(entityID):] == entityID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStrategy) mutate(ctx context.Context, userID, entityID string, value bool) error {
	f.mutationCalls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failErr != nil {
		return f.failErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[userID+"|"+entityID] = value
	return nil
}

func (f *fakeStrategy) Activate(ctx context.Context, userID, entityID string) error {
	return f.mutate(ctx, userID, entityID, true)
}

func (f *fakeStrategy) Deactivate(ctx context.Context, userID, entityID string) error {
	return f.mutate(ctx, userID, entityID, false)
}

func newTestExecutor() *execute.Executor {
	return execute.New(execute.Config{
		AttemptTimeout: 5 * time.Second,
		Policy:         retry.Policy{MaxRetries: 0},
	}, execute.Deps{Prober: netprobe.Online})
}

func newTestManager(strategy Strategy, identity remote.Identity, clock ratelimit.Clock) *Manager {
	return NewManager(entity.OperationLike, strategy, newTestExecutor(), identity, Config{
		RateLimit: time.Second,
		Clock:     clock,
	})
}

func TestToggle_LikeScenario(t *testing.T) {
	fake := newFakeStrategy()
	fake.extra["P1"] = 4
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))
	ctx := context.Background()

	n, err := m.Count(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, 4, n)
	active, err := m.CheckStatus(ctx, "P1")
	require.NoError(t, err)
	require.False(t, active)

	res := m.Toggle(ctx, "P1")

	require.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, entity.InteractionState{IsActive: true, Count: 5}, res.State)
	assert.Equal(t, res.State, m.State("P1"))
	assert.Equal(t, int32(1), fake.mutationCalls.Load())
}

func TestToggle_ReconcileCorrectsConcurrentWriters(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))

	// Local cache believes 0, but others liked it meanwhile.
	fake.extra["P1"] = 9
	res := m.Toggle(context.Background(), "P1")

	require.True(t, res.Success)
	assert.Equal(t, 10, res.State.Count, "count comes from the authoritative fetch, not the +1 guess")
	assert.True(t, res.State.IsActive)
}

func TestToggle_RollbackRestoresExactState(t *testing.T) {
	tests := []struct {
		name   string
		before entity.InteractionState
	}{
		{"inactive stays inactive", entity.InteractionState{IsActive: false, Count: 3}},
		{"active stays active", entity.InteractionState{IsActive: true, Count: 7}},
		{"zero count inactive", entity.InteractionState{IsActive: false, Count: 0}},
		{"zero count active", entity.InteractionState{IsActive: true, Count: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeStrategy()
			fake.failErr = &remote.Error{Status: http.StatusInternalServerError, Message: "boom"}
			m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))
			m.update("P1", func(st *entity.InteractionState) { *st = tt.before })

			res := m.Toggle(context.Background(), "P1")

			assert.False(t, res.Success)
			require.Error(t, res.Err)
			assert.Equal(t, execute.KindServerTransient, execute.KindOf(res.Err))
			got := m.State("P1")
			assert.Equal(t, tt.before.IsActive, got.IsActive)
			assert.Equal(t, tt.before.Count, got.Count)
			assert.False(t, got.Loading)
			assert.Equal(t, execute.MessageNetwork, got.Error)
		})
	}
}

func TestToggle_OptimisticStateVisibleWhileInFlight(t *testing.T) {
	fake := newFakeStrategy()
	fake.gate = make(chan struct{})
	fake.started = make(chan struct{}, 1)
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))
	m.update("P1", func(st *entity.InteractionState) { st.Count = 2 })

	done := make(chan ToggleResult)
	go func() { done <- m.Toggle(context.Background(), "P1") }()
	<-fake.started

	mid := m.State("P1")
	assert.True(t, mid.IsActive)
	assert.Equal(t, 3, mid.Count)
	assert.True(t, mid.Loading)

	close(fake.gate)
	res := <-done
	assert.True(t, res.Success)
	assert.False(t, res.State.Loading)
}

func TestToggle_ConcurrentCallsProduceOneMutation(t *testing.T) {
	fake := newFakeStrategy()
	fake.gate = make(chan struct{})
	fake.started = make(chan struct{}, 1)
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))

	first := make(chan ToggleResult)
	go func() { first <- m.Toggle(context.Background(), "P1") }()
	<-fake.started

	const n = 10
	var wg sync.WaitGroup
	var deduplicated atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := m.Toggle(context.Background(), "P1")
			if res.Deduplicated && errors.Is(res.Err, ErrRequestInFlight) {
				deduplicated.Add(1)
			}
			assert.True(t, res.State.IsActive, "duplicates observe the optimistic state")
		}()
	}
	wg.Wait()
	close(fake.gate)

	res := <-first
	assert.True(t, res.Success)
	assert.Equal(t, int32(n), deduplicated.Load())
	assert.Equal(t, int32(1), fake.mutationCalls.Load())
	assert.Equal(t, 1, m.State("P1").Count)
}

func TestToggle_DifferentKeysRunConcurrently(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))

	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.True(t, m.Toggle(context.Background(), id).Success)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(3), fake.mutationCalls.Load())
}

func TestToggle_RequiresAuthentication(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity(""), ratelimit.NewManualClock(time.Now()))
	m.update("P1", func(st *entity.InteractionState) { st.Count = 4 })

	res := m.Toggle(context.Background(), "P1")

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrAuthRequired)
	assert.Equal(t, "Authentication required", res.Err.Error())
	assert.Equal(t, entity.InteractionState{Count: 4}, m.State("P1"))
	assert.Zero(t, fake.mutationCalls.Load())
}

func TestToggle_ReconcileFailureKeepsOptimisticState(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))
	m.update("P1", func(st *entity.InteractionState) { st.Count = 2 })
	fake.failReconcile.Store(true)

	res := m.Toggle(context.Background(), "P1")

	assert.True(t, res.Success)
	assert.Equal(t, entity.InteractionState{IsActive: true, Count: 3}, res.State)
}

func TestToggle_DeduplicatedAgainstStatusCheck(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))

	release, ok := m.pending.Acquire(m.key("P1"))
	require.True(t, ok)
	defer release()

	res := m.Toggle(context.Background(), "P1")
	assert.True(t, res.Deduplicated)
	assert.Zero(t, fake.mutationCalls.Load())
}

func TestCheckStatus_RateLimitSuppression(t *testing.T) {
	fake := newFakeStrategy()
	clock := ratelimit.NewManualClock(time.Now())
	m := newTestManager(fake, remote.StaticIdentity("u1"), clock)
	ctx := context.Background()

	fake.active["u1|P1"] = true
	first, err := m.CheckStatus(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, first)

	fake.active["u1|P1"] = false
	second, err := m.CheckStatus(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, second, "second call inside the window returns the cached result")
	assert.Equal(t, int32(1), fake.statusCalls.Load())

	clock.Advance(time.Second)
	third, err := m.CheckStatus(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, third)
	assert.Equal(t, int32(2), fake.statusCalls.Load())
}

func TestCheckStatus_InFlightReturnsCached(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))
	m.update("P1", func(st *entity.InteractionState) { st.IsActive = true })

	release, ok := m.pending.Acquire(m.key("P1"))
	require.True(t, ok)
	got, err := m.CheckStatus(context.Background(), "P1")
	release()

	require.NoError(t, err)
	assert.True(t, got)
	assert.Zero(t, fake.statusCalls.Load())
}

func TestCheckStatus_Unauthenticated(t *testing.T) {
	fake := newFakeStrategy()
	m := newTestManager(fake, remote.StaticIdentity(""), ratelimit.NewManualClock(time.Now()))

	got, err := m.CheckStatus(context.Background(), "P1")

	require.NoError(t, err)
	assert.False(t, got)
	assert.Zero(t, fake.statusCalls.Load())
}

func TestCheckStatus_FailureRecordsError(t *testing.T) {
	fake := newFakeStrategy()
	fake.failReconcile.Store(true)
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))

	_, err := m.CheckStatus(context.Background(), "P1")

	require.Error(t, err)
	st := m.State("P1")
	assert.False(t, st.Loading)
	assert.Equal(t, execute.MessageNetwork, st.Error)
}

func TestCheckStatus_FailedQueryStillRateLimited(t *testing.T) {
	fake := newFakeStrategy()
	fake.failReconcile.Store(true)
	clock := ratelimit.NewManualClock(time.Now())
	m := newTestManager(fake, remote.StaticIdentity("u1"), clock)

	_, err := m.CheckStatus(context.Background(), "P1")
	require.Error(t, err)

	fake.failReconcile.Store(false)
	active, err := m.CheckStatus(context.Background(), "P1")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, int32(1), fake.statusCalls.Load())

	clock.Advance(time.Second)
	_, err = m.CheckStatus(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.statusCalls.Load())
	assert.Empty(t, m.State("P1").Error)
}

func TestCount_IndependentNamespace(t *testing.T) {
	fake := newFakeStrategy()
	fake.extra["P1"] = 2
	m := newTestManager(fake, remote.StaticIdentity("u1"), ratelimit.NewManualClock(time.Now()))
	ctx := context.Background()

	_, err := m.CheckStatus(ctx, "P1")
	require.NoError(t, err)
	n, err := m.Count(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, _ = m.Count(ctx, "P1")
	assert.Equal(t, int32(1), fake.statusCalls.Load())
	assert.Equal(t, int32(1), fake.countCalls.Load(), "second count inside the window is cached")
}

func TestReset(t *testing.T) {
	fake := newFakeStrategy()
	clock := ratelimit.NewManualClock(time.Now())
	m := newTestManager(fake, remote.StaticIdentity("u1"), clock)
	ctx := context.Background()

	_, _ = m.CheckStatus(ctx, "P1")
	_, _ = m.CheckStatus(ctx, "P2")
	require.Len(t, m.States(), 2)

	m.Reset("P1")
	assert.Len(t, m.States(), 1)
	_, _ = m.CheckStatus(ctx, "P1")
	assert.Equal(t, int32(3), fake.statusCalls.Load(), "reset also clears the ledger entry")

	m.Reset()
	assert.Empty(t, m.States())

	clock.Advance(2 * time.Second)
	assert.Zero(t, m.PruneLedgers())
}
