package rest

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"feedsync/internal/remote"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", remote.ErrInvalidIdentifier, name)
	}
	return nil
}

// formatValue renders a filter operand the way the gateway parses it.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// quoteListItem quotes an in-list element containing reserved characters.
func quoteListItem(s string) string {
	if strings.ContainsAny(s, `,()"\ `) {
		return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
	}
	return s
}

func encodeFilters(values url.Values, filters []remote.Filter) error {
	for _, f := range filters {
		if err := checkIdent(f.Column); err != nil {
			return err
		}
		switch f.Op {
		case remote.OpEq, remote.OpNeq, remote.OpGt, remote.OpLt:
			values.Add(f.Column, string(f.Op)+"."+formatValue(f.Value))
		case remote.OpIn:
			items, ok := f.Value.([]string)
			if !ok {
				return fmt.Errorf("filter %s: in requires []string, got %T", f.Column, f.Value)
			}
			quoted := make([]string, len(items))
			for i, it := range items {
				quoted[i] = quoteListItem(it)
			}
			values.Add(f.Column, "in.("+strings.Join(quoted, ",")+")")
		default:
			return fmt.Errorf("filter %s: unsupported operator %q", f.Column, f.Op)
		}
	}
	return nil
}

// encodeQuery builds the query string for q.
func encodeQuery(q remote.Query) (url.Values, error) {
	if err := checkIdent(q.Table); err != nil {
		return nil, err
	}
	values := url.Values{}
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if err := checkIdent(c); err != nil {
				return nil, err
			}
		}
		values.Set("select", strings.Join(q.Columns, ","))
	}
	if err := encodeFilters(values, q.Filters); err != nil {
		return nil, err
	}
	if q.Order != nil {
		if err := checkIdent(q.Order.Column); err != nil {
			return nil, err
		}
		dir := "desc"
		if q.Order.Ascending {
			dir = "asc"
		}
		values.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values, nil
}

// parseContentRange extracts the total from a header like "0-24/3573" or "*/0".
func parseContentRange(header string) (int, bool) {
	i := strings.LastIndexByte(header, '/')
	if i < 0 {
		return 0, false
	}
	total := header[i+1:]
	if total == "*" {
		return 0, false
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, false
	}
	return n, true
}
