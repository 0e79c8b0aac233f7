package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"feedsync/internal/remote"

	"github.com/jackc/pgx/v5"
)

// ErrUnfiltered is returned for an update or delete without filters.
var ErrUnfiltered = errors.New("refusing to modify rows without a filter")

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func ident(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", remote.ErrInvalidIdentifier, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// builder accumulates positional arguments while a statement is compiled.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, normalize(v))
	return "$" + strconv.Itoa(len(b.args))
}

// normalize turns composite values into JSON text for jsonb columns.
func normalize(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(data)
	}
	return v
}

func (b *builder) where(filters []remote.Filter) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		col, err := ident(f.Column)
		if err != nil {
			return "", err
		}
		switch f.Op {
		case remote.OpEq:
			parts = append(parts, col+" = "+b.arg(f.Value))
		case remote.OpNeq:
			parts = append(parts, col+" <> "+b.arg(f.Value))
		case remote.OpGt:
			parts = append(parts, col+" > "+b.arg(f.Value))
		case remote.OpLt:
			parts = append(parts, col+" < "+b.arg(f.Value))
		case remote.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return "", fmt.Errorf("filter %s: in requires []string, got %T", f.Column, f.Value)
			}
			parts = append(parts, col+" = ANY("+b.arg(values)+")")
		default:
			return "", fmt.Errorf("filter %s: unsupported operator %q", f.Column, f.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func columnList(cols []string) (string, error) {
	if len(cols) == 0 {
		return "*", nil
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		s, err := ident(c)
		if err != nil {
			return "", err
		}
		out = append(out, s)
	}
	return strings.Join(out, ", "), nil
}

// aggregate wraps a row source so the statement yields one JSON array.
func aggregate(source string) string {
	return "SELECT coalesce(json_agg(row_to_json(r)), '[]'::json) FROM (" + source + ") r"
}

// buildSelect compiles q into a statement returning a JSON array, or a count for CountOnly.
func buildSelect(q remote.Query) (string, []any, error) {
	table, err := ident(q.Table)
	if err != nil {
		return "", nil, err
	}
	b := &builder{}
	where, err := b.where(q.Filters)
	if err != nil {
		return "", nil, err
	}

	if q.CountOnly {
		return "SELECT count(*) FROM " + table + where, b.args, nil
	}

	cols, err := columnList(q.Columns)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT " + cols + " FROM " + table + where)
	if q.Order != nil {
		col, err := ident(q.Order.Column)
		if err != nil {
			return "", nil, err
		}
		dir := "DESC"
		if q.Order.Ascending {
			dir = "ASC"
		}
		sb.WriteString(" ORDER BY " + col + " " + dir)
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return aggregate(sb.String()), b.args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildInsert compiles a single-row insert returning the stored row.
func buildInsert(table string, row map[string]any) (string, []any, error) {
	t, err := ident(table)
	if err != nil {
		return "", nil, err
	}
	if len(row) == 0 {
		return "", nil, fmt.Errorf("insert into %s: empty row", table)
	}
	b := &builder{}
	cols := make([]string, 0, len(row))
	vals := make([]string, 0, len(row))
	for _, k := range sortedKeys(row) {
		c, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, c)
		vals = append(vals, b.arg(row[k]))
	}
	stmt := "INSERT INTO " + t + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ") RETURNING *"
	return "WITH w AS (" + stmt + ") " + aggregate("SELECT * FROM w"), b.args, nil
}

// buildUpdate compiles an update of every row matching q.Filters returning the updated rows.
func buildUpdate(q remote.Query, values map[string]any) (string, []any, error) {
	t, err := ident(q.Table)
	if err != nil {
		return "", nil, err
	}
	if len(q.Filters) == 0 {
		return "", nil, ErrUnfiltered
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("update %s: no values", q.Table)
	}
	b := &builder{}
	sets := make([]string, 0, len(values))
	for _, k := range sortedKeys(values) {
		c, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, c+" = "+b.arg(values[k]))
	}
	where, err := b.where(q.Filters)
	if err != nil {
		return "", nil, err
	}
	stmt := "UPDATE " + t + " SET " + strings.Join(sets, ", ") + where + " RETURNING *"
	return "WITH w AS (" + stmt + ") " + aggregate("SELECT * FROM w"), b.args, nil
}

// buildDelete compiles a delete of every row matching q.Filters returning the removed rows.
func buildDelete(q remote.Query) (string, []any, error) {
	t, err := ident(q.Table)
	if err != nil {
		return "", nil, err
	}
	if len(q.Filters) == 0 {
		return "", nil, ErrUnfiltered
	}
	b := &builder{}
	where, err := b.where(q.Filters)
	if err != nil {
		return "", nil, err
	}
	stmt := "DELETE FROM " + t + where + " RETURNING *"
	return "WITH w AS (" + stmt + ") " + aggregate("SELECT * FROM w"), b.args, nil
}
