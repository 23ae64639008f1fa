// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"flowbridge/internal/ddl"
	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/internal/storage"
	"flowbridge/pkg/records"
)

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

// Open validates the DSN, connects and pings the server.
func Open(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, errors.Wrap(err, "mssql dsn")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "mssql: open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "mssql: ping")
	}
	return New(db, cfg.Table), nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string) *Repository { return &Repository{db: db, table: table} }

// CopyFrom bulk-inserts rows into the table inside one transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "mssql: begin tx")
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "mssql: prepare bulk")
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, errors.Wrapf(err, "mssql: bulk row %d", i)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "mssql: bulk finalize")
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "mssql: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "mssql: commit")
	}
	return n, nil
}

// Exec executes a statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return errors.Wrap(err, "mssql: exec")
	}
	return nil
}

// Scan streams columns of the table.
func (r *Repository) Scan(ctx context.Context, columns []string) (records.Iterator, error) {
	it, err := storage.ScanSQL(ctx, r.db, storage.SelectSQL(msIdent, r.table, columns), len(columns))
	if err != nil {
		return nil, errors.Wrap(err, "mssql")
	}
	return it, nil
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

func (r *Repository) Close() error { return r.db.Close() }

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// Dialect renders T-SQL DDL. T-SQL has no CREATE TABLE IF NOT EXISTS, so the
// statement is wrapped in an IF OBJECT_ID(...) IS NULL guard:
//
//	IF OBJECT_ID(N'[dbo].[t]', N'U') IS NULL
//	BEGIN
//	CREATE TABLE [dbo].[t] (...);
//	END
var Dialect = ddl.Dialect{
	Name:    "mssql ddl",
	Quote:   msIdent,
	Guard:   guard,
	MapType: MapType,
}

func guard(fqn, stmt string) string {
	lit := strings.ReplaceAll(fqn, "'", "''")
	return "IF OBJECT_ID(N'" + lit + "', N'U') IS NULL\nBEGIN\n" + stmt + "\nEND"
}

// MapType maps a field class into a SQL Server column type. Unknown classes
// fall back to NVARCHAR(MAX).
func MapType(class string) string {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "date":
		return "DATE"
	case "time", "time.time", "timestamp", "datetime", "timestamptz":
		return "DATETIME2"
	case "numeric", "decimal":
		return "DECIMAL(38, 10)"
	case "uuid":
		return "UNIQUEIDENTIFIER"
	}
	switch schema.KindOf(class) {
	case schema.KindByte:
		return "SMALLINT"
	case schema.KindShort:
		return "SMALLINT"
	case schema.KindInt:
		return "INT"
	case schema.KindLong:
		return "BIGINT"
	case schema.KindFloat:
		return "REAL"
	case schema.KindDouble:
		return "FLOAT"
	case schema.KindBool:
		return "BIT"
	case schema.KindChar:
		return "NCHAR(1)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func init() {
	storage.Register("sqlserver", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg)
	})
}
