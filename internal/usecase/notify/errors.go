package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrNoPushToken indicates the recipient has no registered device.
	// The dispatcher falls back to the next channel when a channel returns it.
	ErrNoPushToken = errors.New("recipient has no push token")

	// ErrChannelDisabled indicates that Deliver was called on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrCircuitBreakerOpen indicates that the channel failed repeatedly and is
	// skipped until its open period ends.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open for this channel")

	// ErrAuthRequired is returned by inbox operations with nobody signed in.
	ErrAuthRequired = errors.New("Authentication required") //nolint:staticcheck // user-facing text

	// ErrNotificationNotFound is returned for an id that is not in the local inbox.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrRequestInFlight is returned when the same notification already has a mutation in flight.
	ErrRequestInFlight = errors.New("request already in flight")
)
