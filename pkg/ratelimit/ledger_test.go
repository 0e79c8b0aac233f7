package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestLedger(clock Clock, interval time.Duration, maxKeys int) *Ledger[string] {
	return NewLedger[string](LedgerConfig{
		Scope:    "test",
		Interval: interval,
		MaxKeys:  maxKeys,
		Clock:    clock,
	})
}

func TestLedger_AllowWithinInterval(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLedger(clock, time.Second, 0)

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"), "second call inside the interval is suppressed")

	clock.Advance(999 * time.Millisecond)
	assert.False(t, l.Allow("k"))

	clock.Advance(time.Millisecond)
	assert.True(t, l.Allow("k"), "allowed once the full interval elapsed")
}

func TestLedger_KeysIndependent(t *testing.T) {
	clock := NewManualClock(time.Now())
	l := newTestLedger(clock, time.Second, 0)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.False(t, l.Allow("a"))
}

func TestLedger_TouchAndForget(t *testing.T) {
	clock := NewManualClock(time.Now())
	l := newTestLedger(clock, time.Second, 0)

	l.Touch("k")
	assert.False(t, l.Allow("k"), "touch starts a new window")

	l.Forget("k")
	assert.True(t, l.Allow("k"))
}

func TestLedger_Prune(t *testing.T) {
	clock := NewManualClock(time.Now())
	l := newTestLedger(clock, time.Second, 0)

	l.Touch("a")
	clock.Advance(500 * time.Millisecond)
	l.Touch("b")
	clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Len())
}

func TestLedger_MaxKeysEvictsOldest(t *testing.T) {
	clock := NewManualClock(time.Now())
	l := newTestLedger(clock, time.Hour, 2)

	l.Touch("a")
	clock.Advance(time.Second)
	l.Touch("b")
	clock.Advance(time.Second)
	l.Touch("c")

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Allow("a"), "oldest key was evicted")
}

func TestLedger_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)
	l := NewLedger[string](LedgerConfig{Scope: "like.status", Interval: time.Second, Clock: NewManualClock(time.Now()), Metrics: m})

	l.Allow("k")
	l.Allow("k")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("like.status", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("like.status", "suppressed")))
}
