package postgres

import (
	"errors"
	"net/http"
	"strings"

	"feedsync/internal/remote"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	insufficientPrivilege   = "42501"
	undefinedTableCode      = "42P01"
	serializationFailure    = "40001"
	deadlockDetected        = "40P01"
	tooManyConnections      = "53300"
	queryCanceled           = "57014"
)

// statusForCode maps a SQLSTATE to the HTTP-equivalent status the core classifies on.
func statusForCode(code string) int {
	switch code {
	case uniqueViolationCode, foreignKeyViolationCode:
		return http.StatusConflict
	case insufficientPrivilege:
		return http.StatusForbidden
	case undefinedTableCode:
		return http.StatusNotFound
	case serializationFailure, deadlockDetected, tooManyConnections:
		return http.StatusServiceUnavailable
	case queryCanceled:
		return http.StatusRequestTimeout
	}
	switch {
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "23"), strings.HasPrefix(code, "42"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57"):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// MapError converts a *pgconn.PgError into a *remote.Error. Other errors,
// including connection failures, pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &remote.Error{
			Status:  statusForCode(pgErr.Code),
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
		}
	}
	return err
}

// isAnswer reports whether err is a definite answer from a healthy server,
// which must not trip the circuit breaker.
func isAnswer(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return statusForCode(pgErr.Code) < http.StatusInternalServerError &&
		statusForCode(pgErr.Code) != http.StatusRequestTimeout
}
