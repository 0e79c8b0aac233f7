package comment

import "errors"

var (
	// ErrThreadNotReady is returned by Append and Remove when the thread has not been listed successfully.
	ErrThreadNotReady = errors.New("comment thread not ready")

	// ErrAuthRequired is returned when a mutation is attempted with nobody signed in.
	ErrAuthRequired = errors.New("Authentication required") //nolint:staticcheck // user-facing text

	// ErrCommentNotFound is returned by Remove for an id absent from every loaded thread.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrNotDeleted is returned when the backend accepted a delete but removed no row,
	// which happens when the caller does not own the comment.
	ErrNotDeleted = errors.New("comment was not deleted")
)
