package execute

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"feedsync/internal/remote"
	"feedsync/internal/resilience/circuitbreaker"
)

// Kind tags a failure with its retry eligibility.
type Kind int

const (
	KindNetwork Kind = iota
	KindTimeout
	KindAuthExpired
	KindRateLimited
	KindServerTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuthExpired:
		return "auth_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindServerTransient:
		return "server_transient"
	default:
		return "fatal"
	}
}

// Retryable reports whether the executor retries failures of this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindServerTransient:
		return true
	}
	return false
}

// User-facing messages. Callers show Error.Message verbatim.
const (
	MessageNetwork    = "Network connection issue. Please check your internet connection and try again."
	MessageSession    = "Your session has expired. Please sign in again."
	MessagePermission = "You don't have permission to perform this action."
	MessageGeneric    = "Something went wrong. Please try again."
)

// ErrOffline is the cause of failures produced by the offline short-circuit.
var ErrOffline = errors.New("device is offline")

// pgInsufficientPrivilege is the Postgres code surfaced by row-level security denials.
const pgInsufficientPrivilege = "42501"

// Error is a classified failure returned by Do.
type Error struct {
	Kind    Kind
	Status  int
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindFatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// UserMessage returns a message fit for display for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MessageGeneric
}

// Classify tags err for the named operation. A structured *remote.Error is
// classified by status; anything else is a transport failure (Network, or
// Timeout when a deadline fired).
func Classify(op string, err error) *Error {
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	var rerr *remote.Error
	if errors.As(err, &rerr) {
		kind := kindForStatus(rerr.Status)
		return &Error{Kind: kind, Status: rerr.Status, Op: op, Message: messageFor(kind, rerr), Err: err}
	}

	if circuitbreaker.IsBreakerError(err) {
		return &Error{Kind: KindServerTransient, Status: http.StatusServiceUnavailable, Op: op, Message: MessageNetwork, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Message: MessageNetwork, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Message: MessageNetwork, Err: err}
	}

	return &Error{Kind: KindNetwork, Op: op, Message: MessageNetwork, Err: err}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly, status >= 500:
		return KindServerTransient
	default:
		return KindFatal
	}
}

func messageFor(kind Kind, rerr *remote.Error) string {
	switch {
	case kind.Retryable():
		return MessageNetwork
	case kind == KindAuthExpired:
		return MessageSession
	case rerr.Status == http.StatusForbidden || rerr.Code == pgInsufficientPrivilege:
		return MessagePermission
	default:
		return MessageGeneric
	}
}
