// Package postgres implements the remote store contract directly on
// PostgreSQL, for deployments that talk to the database instead of a REST
// gateway. Queries are compiled to parameterized SQL that returns JSON rows,
// calls run behind the database circuit breaker, and realtime changes are
// read from LISTEN/NOTIFY.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"feedsync/internal/observability/metrics"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/circuitbreaker"
)

const backendName = "postgres"

// Store implements remote.Store over a *sql.DB.
type Store struct {
	db *circuitbreaker.DBCircuitBreaker
}

// NewStore creates a store on db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: circuitbreaker.NewDBCircuitBreaker(db, isAnswer)}
}

// Breaker exposes the circuit breaker for health reporting.
func (s *Store) Breaker() *circuitbreaker.DBCircuitBreaker {
	return s.db
}

func (s *Store) rows(ctx context.Context, method, table, stmt string, args []any, okStatus int) (*remote.Response, error) {
	start := time.Now()
	data, err := s.db.QueryJSON(ctx, stmt, args...)
	err = MapError(err)
	metrics.RecordStoreRequest(backendName, method, table, statusOf(err, okStatus), time.Since(start))
	if err != nil {
		return nil, err
	}
	var n []json.RawMessage
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &remote.Response{Data: data, Count: len(n), Status: okStatus}, nil
}

func statusOf(err error, okStatus int) int {
	if err == nil {
		return okStatus
	}
	return remote.StatusOf(err)
}

// Select implements remote.Store.
func (s *Store) Select(ctx context.Context, q remote.Query) (*remote.Response, error) {
	stmt, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	if !q.CountOnly {
		return s.rows(ctx, http.MethodGet, q.Table, stmt, args, http.StatusOK)
	}

	start := time.Now()
	n, err := s.db.QueryInt(ctx, stmt, args...)
	err = MapError(err)
	metrics.RecordStoreRequest(backendName, http.MethodHead, q.Table, statusOf(err, http.StatusOK), time.Since(start))
	if err != nil {
		return nil, err
	}
	return &remote.Response{Count: n, Status: http.StatusOK}, nil
}

// Insert implements remote.Store.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) (*remote.Response, error) {
	stmt, args, err := buildInsert(table, row)
	if err != nil {
		return nil, err
	}
	return s.rows(ctx, http.MethodPost, table, stmt, args, http.StatusCreated)
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, q remote.Query, values map[string]any) (*remote.Response, error) {
	stmt, args, err := buildUpdate(q, values)
	if err != nil {
		return nil, err
	}
	return s.rows(ctx, http.MethodPatch, q.Table, stmt, args, http.StatusOK)
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, q remote.Query) (*remote.Response, error) {
	stmt, args, err := buildDelete(q)
	if err != nil {
		return nil, err
	}
	return s.rows(ctx, http.MethodDelete, q.Table, stmt, args, http.StatusOK)
}
