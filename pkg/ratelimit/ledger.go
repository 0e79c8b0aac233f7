package ratelimit

import (
	"sync"
	"time"
)

// DefaultMaxKeys bounds the number of timestamps a Ledger retains.
const DefaultMaxKeys = 10000

// LedgerConfig holds configuration for a Ledger.
type LedgerConfig struct {
	// Scope labels metrics, e.g. "like.status".
	Scope string

	// Interval is the minimum spacing between two allowed calls for one key.
	Interval time.Duration

	// MaxKeys is the maximum number of keys to remember.
	// When this limit is reached, expired keys are dropped first, then the oldest.
	// Default: 10000
	MaxKeys int

	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock Clock

	// Metrics records allow/suppress decisions. Default: NoOpMetrics
	Metrics Metrics
}

// Ledger remembers when each key was last allowed through and refuses
// a second call for the same key inside Interval.
type Ledger[K comparable] struct {
	mu       sync.Mutex
	last     map[K]time.Time
	interval time.Duration
	maxKeys  int
	scope    string
	clock    Clock
	metrics  Metrics
}

// NewLedger creates a ledger with the given configuration.
func NewLedger[K comparable](cfg LedgerConfig) *Ledger[K] {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if cfg.Clock == nil {
		cfg.Clock = &SystemClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewNoOpMetrics()
	}
	return &Ledger[K]{
		last:     make(map[K]time.Time),
		interval: cfg.Interval,
		maxKeys:  cfg.MaxKeys,
		scope:    cfg.Scope,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
	}
}

// Allow atomically checks whether key may reach the backend and, if so,
// records the current time for it. Two calls inside Interval never both return true.
func (l *Ledger[K]) Allow(key K) bool {
	now := l.clock.Now()

	l.mu.Lock()
	if t, ok := l.last[key]; ok && now.Sub(t) < l.interval {
		l.mu.Unlock()
		l.metrics.RecordSuppressed(l.scope)
		return false
	}
	l.store(key, now)
	l.mu.Unlock()

	l.metrics.RecordAllowed(l.scope)
	return true
}

// Touch records key as invoked now without checking the interval.
// Used when a call bypassed the ledger but still produced fresh data.
func (l *Ledger[K]) Touch(key K) {
	now := l.clock.Now()
	l.mu.Lock()
	l.store(key, now)
	l.mu.Unlock()
}

// Forget drops the timestamp for key so the next Allow succeeds.
func (l *Ledger[K]) Forget(key K) {
	l.mu.Lock()
	delete(l.last, key)
	l.mu.Unlock()
}

// Prune removes keys whose window has elapsed and returns how many were removed.
func (l *Ledger[K]) Prune() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(now)
}

// Len returns the number of remembered keys.
func (l *Ledger[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}

// Interval returns the configured minimum spacing.
func (l *Ledger[K]) Interval() time.Duration {
	return l.interval
}

func (l *Ledger[K]) store(key K, now time.Time) {
	if _, ok := l.last[key]; !ok && len(l.last) >= l.maxKeys {
		if l.pruneLocked(now) == 0 {
			l.evictOldestLocked()
		}
	}
	l.last[key] = now
}

func (l *Ledger[K]) pruneLocked(now time.Time) int {
	removed := 0
	for k, t := range l.last {
		if now.Sub(t) >= l.interval {
			delete(l.last, k)
			removed++
		}
	}
	return removed
}

func (l *Ledger[K]) evictOldestLocked() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, t := range l.last {
		if !found || t.Before(oldest) {
			oldestKey, oldest, found = k, t, true
		}
	}
	if found {
		delete(l.last, oldestKey)
	}
}
