// Package postgres implements a Postgres repository using pgx v5. Batches
// are written with COPY FROM; reads stream a SELECT through the pool.
package postgres

import (
	"context"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowbridge/internal/ddl"
	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/internal/storage"
	"flowbridge/pkg/records"
)

// pool is the subset of *pgxpool.Pool the repository uses.
type pool interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool  pool
	table string
}

var _ storage.Repository = (*Repository)(nil)

// newPool is a test hook that points to pgxpool.New by default.
var newPool = func(ctx context.Context, dsn string) (pool, error) { return pgxpool.New(ctx, dsn) }

// Open connects a pool to cfg.DSN.
func Open(ctx context.Context, cfg storage.Config) (*Repository, error) {
	p, err := newPool(ctx, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool")
	}
	return &Repository{pool: p, table: cfg.Table}, nil
}

// CopyFrom streams rows into the table with COPY. A Postgres error detail,
// when present, is surfaced in the message.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, splitFQN(r.table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, errors.Wrapf(err, "postgres: copy into %s: %s (%s)", r.table, pgErr.Detail, pgErr.SQLState())
		}
		return n, errors.Wrapf(err, "postgres: copy into %s", r.table)
	}
	return n, nil
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// Exec executes a statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return errors.Wrap(err, "postgres: exec")
	}
	return nil
}

// Scan streams columns of the table.
func (r *Repository) Scan(ctx context.Context, columns []string) (records.Iterator, error) {
	rows, err := r.pool.Query(ctx, storage.SelectSQL(pgIdent, r.table, columns))
	if err != nil {
		return nil, errors.Wrap(err, "postgres: query")
	}
	return &rowIter{rows: rows}, nil
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// rowIter adapts pgx.Rows to records.Iterator.
type rowIter struct {
	rows pgx.Rows
	done bool
}

func (it *rowIter) Next(ctx context.Context) (records.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !it.rows.Next() {
		it.done = true
		it.rows.Close()
		if err := it.rows.Err(); err != nil {
			return nil, errors.Wrap(err, "postgres: rows")
		}
		return nil, io.EOF
	}
	vals, err := it.rows.Values()
	if err != nil {
		return nil, errors.Wrap(err, "postgres: row values")
	}
	return records.Record(vals), nil
}

func (it *rowIter) Close() error {
	it.rows.Close()
	return nil
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return storage.QuoteDouble(id) }

// Dialect renders Postgres DDL.
var Dialect = ddl.Dialect{
	Name:        "postgres ddl",
	Quote:       pgIdent,
	IfNotExists: true,
	MapType:     MapType,
}

// MapType maps a field class into a Postgres column type.
//
//	int/short/byte  -> INTEGER / SMALLINT
//	long            -> BIGINT
//	bool            -> BOOLEAN
//	date            -> DATE
//	time/timestamp  -> TIMESTAMPTZ
//	everything else -> TEXT
func MapType(class string) string {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "date":
		return "DATE"
	case "time", "time.time", "timestamp", "timestamptz", "datetime":
		return "TIMESTAMPTZ"
	case "numeric", "decimal":
		return "NUMERIC"
	case "uuid":
		return "UUID"
	case "json", "jsonb":
		return "JSONB"
	}
	switch schema.KindOf(class) {
	case schema.KindByte, schema.KindShort:
		return "SMALLINT"
	case schema.KindInt:
		return "INTEGER"
	case schema.KindLong:
		return "BIGINT"
	case schema.KindFloat:
		return "REAL"
	case schema.KindDouble:
		return "DOUBLE PRECISION"
	case schema.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg)
	})
}
