// Package mysql implements a MySQL-backed storage.Repository. Rows are
// written with multi-row INSERT statements, one statement per chunk of rows,
// inside a single transaction per batch.
package mysql

import (
	"context"
	"database/sql"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"flowbridge/internal/ddl"
	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/internal/storage"
	"flowbridge/pkg/records"
)

// maxPlaceholders stays below the server's 65535 prepared-statement limit.
const maxPlaceholders = 60000

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

var _ storage.Repository = (*Repository)(nil)

// Open validates the DSN, connects and pings the server.
func Open(ctx context.Context, cfg storage.Config) (*Repository, error) {
	mc, err := driver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "mysql dsn")
	}
	mc.ParseTime = true
	conn, err := driver.NewConnector(mc)
	if err != nil {
		return nil, errors.Wrap(err, "mysql connector")
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "mysql: ping")
	}
	return New(db, cfg.Table), nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string) *Repository { return &Repository{db: db, table: table} }

// CopyFrom inserts rows with multi-row INSERTs in one transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errors.New("mysql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	per := maxPlaceholders / len(columns)
	if per < 1 {
		per = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "mysql: begin tx")
	}
	var total int64
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				_ = tx.Rollback()
				return 0, errors.Newf("mysql: row %d: length %d != columns length %d", start+i, len(row), len(columns))
			}
			args = append(args, row...)
		}
		res, err := tx.ExecContext(ctx, insertSQL(r.table, columns, len(chunk)), args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.Wrap(err, "mysql: insert")
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.Wrap(err, "mysql: rows affected")
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "mysql: commit")
	}
	return total, nil
}

// insertSQL renders INSERT INTO t (a, b) VALUES (?, ?), (?, ?) for n rows.
func insertSQL(table string, columns []string, n int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(Dialect.QuoteFQN(table))
	sb.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(c))
	}
	sb.WriteString(") VALUES ")
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
	}
	return sb.String()
}

// Exec executes a statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return errors.Wrap(err, "mysql: exec")
	}
	return nil
}

// Scan streams columns of the table.
func (r *Repository) Scan(ctx context.Context, columns []string) (records.Iterator, error) {
	it, err := storage.ScanSQL(ctx, r.db, storage.SelectSQL(quoteIdent, r.table, columns), len(columns))
	if err != nil {
		return nil, errors.Wrap(err, "mysql")
	}
	return it, nil
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

func (r *Repository) Close() error { return r.db.Close() }

// quoteIdent quotes a MySQL identifier with backticks, doubling embedded ones.
func quoteIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// Dialect renders MySQL DDL.
var Dialect = ddl.Dialect{
	Name:        "mysql ddl",
	Quote:       quoteIdent,
	IfNotExists: true,
	MapType:     MapType,
}

// MapType maps a field class into a MySQL column type.
func MapType(class string) string {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "date":
		return "DATE"
	case "time", "time.time", "timestamp", "datetime":
		return "DATETIME(6)"
	case "numeric", "decimal":
		return "DECIMAL(38, 10)"
	}
	switch schema.KindOf(class) {
	case schema.KindByte:
		return "TINYINT"
	case schema.KindShort:
		return "SMALLINT"
	case schema.KindInt:
		return "INT"
	case schema.KindLong:
		return "BIGINT"
	case schema.KindFloat:
		return "FLOAT"
	case schema.KindDouble:
		return "DOUBLE"
	case schema.KindBool:
		return "BOOLEAN"
	case schema.KindChar:
		return "CHAR(1)"
	default:
		return "TEXT"
	}
}

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg)
	})
}
