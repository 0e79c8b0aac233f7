package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedsync/internal/infra/notifier"
	"feedsync/pkg/ratelimit"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (r *recordingAlerter) Alert(ctx context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	return r.err
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

var _ notifier.Alerter = (*recordingAlerter)(nil)

func TestThrottle_MaybeNotify(t *testing.T) {
	clock := ratelimit.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	alerter := &recordingAlerter{}
	th := NewThrottle(alerter, 8*time.Second, WithClock(clock))

	assert.True(t, th.MaybeNotify(context.Background(), "first"))
	assert.False(t, th.MaybeNotify(context.Background(), "second"))

	clock.Advance(7 * time.Second)
	assert.False(t, th.MaybeNotify(context.Background(), "third"))

	clock.Advance(time.Second)
	assert.True(t, th.MaybeNotify(context.Background(), "fourth"))

	require.Equal(t, 2, alerter.count())
	assert.Equal(t, []string{"first", "fourth"}, alerter.bodies)
}

func TestThrottle_ConcurrentBurstSurfacesOnce(t *testing.T) {
	clock := ratelimit.NewManualClock(time.Now())
	alerter := &recordingAlerter{}
	th := NewThrottle(alerter, DefaultWindow, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th.MaybeNotify(context.Background(), "offline")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, alerter.count())
}

func TestThrottle_AlerterErrorStillCounts(t *testing.T) {
	clock := ratelimit.NewManualClock(time.Now())
	alerter := &recordingAlerter{err: errors.New("webhook down")}
	th := NewThrottle(alerter, time.Second, WithClock(clock), WithTitle("Offline"))

	assert.True(t, th.MaybeNotify(context.Background(), "m"))
	assert.False(t, th.MaybeNotify(context.Background(), "m"))
}

func TestThrottle_Metrics(t *testing.T) {
	clock := ratelimit.NewManualClock(time.Now())
	th := NewThrottle(nil, time.Second, WithClock(clock))

	shown := testutil.ToFloat64(feedbackAlertsTotal.WithLabelValues("shown"))
	suppressed := testutil.ToFloat64(feedbackAlertsTotal.WithLabelValues("suppressed"))

	th.MaybeNotify(context.Background(), "a")
	th.MaybeNotify(context.Background(), "b")

	assert.Equal(t, shown+1, testutil.ToFloat64(feedbackAlertsTotal.WithLabelValues("shown")))
	assert.Equal(t, suppressed+1, testutil.ToFloat64(feedbackAlertsTotal.WithLabelValues("suppressed")))
}
