package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sony/gobreaker"
)

func TestDBCircuitBreaker_QueryJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT json_agg").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`[{"id":"1"}]`)))

	dcb := NewDBCircuitBreaker(db, nil)
	got, err := dcb.QueryJSON(context.Background(), "SELECT json_agg(t) FROM t")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(got) != `[{"id":"1"}]` {
		t.Errorf("unexpected data %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDBCircuitBreaker_QueryInt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	dcb := NewDBCircuitBreaker(db, nil)
	n, err := dcb.QueryInt(context.Background(), "SELECT count(*) FROM likes")
	if err != nil || n != 7 {
		t.Fatalf("QueryInt() = %d, %v", n, err)
	}
}

func TestDBCircuitBreaker_OpensOnFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	dbErr := errors.New("connection refused")
	for i := 0; i < 5; i++ {
		mock.ExpectExec("DELETE FROM likes").WillReturnError(dbErr)
	}

	dcb := NewDBCircuitBreaker(db, nil)
	for i := 0; i < 5; i++ {
		_, _ = dcb.ExecContext(context.Background(), "DELETE FROM likes")
	}

	if dcb.State() != gobreaker.StateOpen {
		t.Fatalf("expected Open after 5 failures, got %s", dcb.State())
	}
	if _, err := dcb.ExecContext(context.Background(), "DELETE FROM likes"); err != gobreaker.ErrOpenState {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}

func TestDBCircuitBreaker_AnswersDoNotTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	for i := 0; i < 6; i++ {
		mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
	}

	dcb := NewDBCircuitBreaker(db, nil)
	for i := 0; i < 6; i++ {
		_, _ = dcb.QueryJSON(context.Background(), "SELECT 1")
	}
	if dcb.IsOpen() {
		t.Error("sql.ErrNoRows must not open the breaker")
	}
	if dcb.DB() != db {
		t.Error("DB() must return the wrapped connection")
	}
}
