// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. It performs batched INSERTs inside a transaction; SQLite has
// no bulk-load API like Postgres COPY, but transactions keep performance
// acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"flowbridge/internal/ddl"
	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/internal/storage"
	"flowbridge/pkg/records"
)

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

// Open opens a SQLite connection. The DSN is passed directly to the driver,
// for example "file:flow.db?cache=shared" or ":memory:".
func Open(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite: ping")
	}
	// An in-memory database lives as long as its connection.
	if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return New(db, cfg.Table), nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string) *Repository { return &Repository{db: db, table: table} }

// CopyFrom inserts rows into the table in one transaction with a prepared
// INSERT. Every row must have len(columns) values.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errors.New("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: begin tx")
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(r.table, columns))
	if err != nil {
		_ = tx.Rollback()
		return 0, errors.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, errors.Newf("sqlite: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, errors.Wrap(err, "sqlite: insert")
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "sqlite: commit")
	}
	return inserted, nil
}

func insertSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = storage.QuoteDouble(c)
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Dialect.QuoteFQN(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

// Exec executes a statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return errors.Wrap(err, "sqlite: exec")
	}
	return nil
}

// Scan streams columns of the table.
func (r *Repository) Scan(ctx context.Context, columns []string) (records.Iterator, error) {
	it, err := storage.ScanSQL(ctx, r.db, storage.SelectSQL(storage.QuoteDouble, r.table, columns), len(columns))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite")
	}
	return it, nil
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

func (r *Repository) Close() error { return r.db.Close() }

// Dialect renders SQLite DDL: double-quoted identifiers and
// CREATE TABLE IF NOT EXISTS.
var Dialect = ddl.Dialect{
	Name:        "sqlite ddl",
	Quote:       storage.QuoteDouble,
	IfNotExists: true,
	MapType:     MapType,
}

// MapType maps a field class into a SQLite column type. SQLite is
// dynamically typed, so the mapping prefers canonical affinities; dates are
// stored as ISO-8601 TEXT.
func MapType(class string) string {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "date", "time", "time.time", "timestamp", "datetime":
		return "TEXT"
	case "blob", "bytes", "[]byte":
		return "BLOB"
	case "numeric", "decimal":
		return "NUMERIC"
	}
	switch schema.KindOf(class) {
	case schema.KindByte, schema.KindShort, schema.KindInt, schema.KindLong, schema.KindBool:
		return "INTEGER"
	case schema.KindFloat, schema.KindDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg)
	})
}
