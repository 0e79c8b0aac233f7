// Package ratelimit provides framework-agnostic primitives for suppressing
// duplicate and overly frequent calls against a remote backend.
//
// Two building blocks are provided:
//   - Registry: the set of keys that currently have a request in flight.
//     A key can be acquired by at most one caller at a time.
//   - Ledger: the last time each key was allowed through. A key is allowed
//     again only after a minimum interval has elapsed.
//
// Both are safe for concurrent use and take an injectable Clock so that
// time-dependent behavior can be tested deterministically.
package ratelimit

import (
	"sync"
	"time"
)

// Clock provides an abstraction for time operations to enable testing.
//
// This interface allows for dependency injection of time functions,
// making it easy to test time-dependent behavior with fake clocks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock that only moves when told to.
// It is intended for tests in this and dependent packages.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock positioned at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Metrics defines the interface for recording suppression decisions.
//
// Implementations can use Prometheus or any other backend.
// All methods must be thread-safe and non-blocking.
type Metrics interface {
	// RecordDeduplicated records a call that found its key already in flight.
	//
	// Parameters:
	//   - scope: Logical namespace of the key (e.g., "like.status", "bookmark.count")
	RecordDeduplicated(scope string)

	// RecordSuppressed records a call that was refused by a Ledger because
	// the key was invoked within the minimum interval.
	RecordSuppressed(scope string)

	// RecordAllowed records a call that was let through to the backend.
	RecordAllowed(scope string)

	// SetInFlight records the number of keys currently held in a Registry.
	SetInFlight(scope string, count int)
}
