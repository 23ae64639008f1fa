package storage

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"flowbridge/internal/errors"
	"flowbridge/pkg/records"
)

// SQLRows adapts *sql.Rows to records.Iterator.
type SQLRows struct {
	rows *sql.Rows
	n    int
	done bool
}

// NewSQLRows wraps rows of n columns.
func NewSQLRows(rows *sql.Rows, n int) *SQLRows { return &SQLRows{rows: rows, n: n} }

func (r *SQLRows) Next(ctx context.Context) (records.Record, error) {
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.rows.Next() {
		r.done = true
		if err := r.rows.Err(); err != nil {
			return nil, errors.Wrap(err, "scan rows")
		}
		return nil, io.EOF
	}
	vals := make([]any, r.n)
	ptrs := make([]any, r.n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, errors.Wrap(err, "scan row")
	}
	for i, v := range vals {
		// Drivers hand back text columns as []byte.
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return records.Record(vals), nil
}

func (r *SQLRows) Close() error { return r.rows.Close() }

// SelectSQL renders SELECT <columns> FROM <table> with the dialect quoting.
func SelectSQL(quote func(string) string, table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quote(c)
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + strings.Join(parts, ".")
}

// ScanSQL runs query on db and streams n columns per row.
func ScanSQL(ctx context.Context, db *sql.DB, query string, n int) (records.Iterator, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	return NewSQLRows(rows, n), nil
}

// QuoteDouble quotes an identifier with double quotes, doubling embedded ones.
func QuoteDouble(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
