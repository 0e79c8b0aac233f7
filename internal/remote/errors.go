package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRows is returned by DecodeOne when a response carries no rows.
	ErrNoRows = errors.New("no rows in response")

	// ErrNoSession indicates that no authenticated session is available to refresh.
	ErrNoSession = errors.New("no active session")

	// ErrInvalidIdentifier is returned by adapters for unsafe table or column names.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Error is a structured failure reported by the backend together with its HTTP-equivalent status.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote %d: %s", e.Status, e.Message)
}

// StatusOf returns the status carried by a *Error in err's chain, or 0.
func StatusOf(err error) int {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a backend 401.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
