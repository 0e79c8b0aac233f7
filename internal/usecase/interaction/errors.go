package interaction

import "errors"

var (
	// ErrAuthRequired is returned by Toggle when nobody is signed in.
	// The text is shown to the user as is.
	ErrAuthRequired = errors.New("Authentication required") //nolint:staticcheck // user-facing text

	// ErrRequestInFlight is returned by Toggle when the same key already has a request in flight.
	ErrRequestInFlight = errors.New("request already in flight")
)
