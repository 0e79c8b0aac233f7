package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// DBCircuitBreaker wraps a database connection with circuit breaker protection.
// Constraint violations and missing rows are answers, not outages, so they do not trip it.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// DBConfig returns configuration optimized for database circuit breakers.
// Opens after 5 consecutive failures, 30 second timeout.
func DBConfig() Config {
	return Config{
		Name:             "database",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
}

// NewDBCircuitBreaker creates a new database circuit breaker.
// isAnswer marks errors that must not count as failures (nil treats only
// sql.ErrNoRows and context cancellation as answers).
func NewDBCircuitBreaker(db *sql.DB, isAnswer func(error) bool) *DBCircuitBreaker {
	cfg := DBConfig()
	cfg.IsSuccessful = func(err error) bool {
		if err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) {
			return true
		}
		return isAnswer != nil && isAnswer(err)
	}
	return &DBCircuitBreaker{
		cb: New(cfg),
		db: db,
	}
}

// QueryJSON runs a query that yields a single JSON value and returns its bytes.
// Unlike a bare QueryRowContext, the scan happens inside the breaker so row errors count.
func (dcb *DBCircuitBreaker) QueryJSON(ctx context.Context, query string, args ...any) ([]byte, error) {
	return Call(dcb.cb, func() ([]byte, error) {
		var data []byte
		if err := dcb.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
			return nil, err
		}
		return data, nil
	})
}

// QueryInt runs a query that yields a single integer, such as a count.
func (dcb *DBCircuitBreaker) QueryInt(ctx context.Context, query string, args ...any) (int, error) {
	return Call(dcb.cb, func() (int, error) {
		var n int
		if err := dcb.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	})
}

// ExecContext executes a statement with circuit breaker protection.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return Call(dcb.cb, func() (sql.Result, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
}

// State returns the current state of the circuit breaker.
func (dcb *DBCircuitBreaker) State() gobreaker.State {
	return dcb.cb.State()
}

// IsOpen returns true if the circuit breaker is in the open state.
func (dcb *DBCircuitBreaker) IsOpen() bool {
	return dcb.cb.IsOpen()
}

// DB returns the underlying database connection.
func (dcb *DBCircuitBreaker) DB() *sql.DB {
	return dcb.db
}
