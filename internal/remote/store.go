// Package remote defines the narrow contract the client core uses to talk to the
// backend data platform: collection queries, a session-refresh primitive, the
// authenticated identity, realtime change subscriptions and file uploads.
//
// Adapters live under internal/infra/remote. The core never depends on them directly.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// FilterOp is a predicate operator understood by every Store adapter.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpIn  FilterOp = "in"
	OpGt  FilterOp = "gt"
	OpLt  FilterOp = "lt"
)

// Filter restricts a query to rows where Column satisfies Op against Value.
// For OpIn, Value must be a []string.
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// Neq builds an inequality filter.
func Neq(column string, value any) Filter {
	return Filter{Column: column, Op: OpNeq, Value: value}
}

// In builds a set-membership filter.
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// Gt builds a greater-than filter.
func Gt(column string, value any) Filter {
	return Filter{Column: column, Op: OpGt, Value: value}
}

// Lt builds a less-than filter.
func Lt(column string, value any) Filter {
	return Filter{Column: column, Op: OpLt, Value: value}
}

// Order sorts query results by one column.
type Order struct {
	Column    string
	Ascending bool
}

// Query addresses rows of one collection.
type Query struct {
	Table   string
	Columns []string // empty selects all columns
	Filters []Filter
	Order   *Order
	Limit   int // zero means no limit

	// CountOnly asks for the number of matching rows in Response.Count instead of data.
	CountOnly bool
}

// Response is what every Store call yields on success.
type Response struct {
	Data   json.RawMessage // JSON array of rows, or nil for CountOnly queries
	Count  int
	Status int
}

// Store is the uniform query interface of the remote data platform.
//
// Implementations return a *Error for structured backend failures and any other
// error for transport-level failures. All methods must be safe for concurrent use.
type Store interface {
	Select(ctx context.Context, q Query) (*Response, error)
	// Insert writes one row and returns the stored representation.
	Insert(ctx context.Context, table string, row map[string]any) (*Response, error)
	// Update sets values on every row matching q.Filters and returns the updated rows.
	Update(ctx context.Context, q Query, values map[string]any) (*Response, error)
	// Delete removes every row matching q.Filters and returns the removed rows.
	Delete(ctx context.Context, q Query) (*Response, error)
}

// DecodeRows unmarshals the response rows into a slice of T.
func DecodeRows[T any](resp *Response) ([]T, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// DecodeOne unmarshals the first response row into T.
// It returns ErrNoRows when the response holds no rows.
func DecodeOne[T any](resp *Response) (T, error) {
	var zero T
	rows, err := DecodeRows[T](resp)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNoRows
	}
	return rows[0], nil
}
