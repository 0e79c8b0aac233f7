package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a post, comment, notification or application is not known.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput marks arguments rejected before any remote call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidTransition is returned for an application status change outside the workflow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError names the first input field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
