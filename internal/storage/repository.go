// Package storage contains the storage-agnostic contracts of the database
// taps: the Repository a backend implements, the factory registry backends
// join at init time, and the batching collector that turns a record stream
// into bulk writes.
package storage

import (
	"context"
	"sort"
	"sync"

	"flowbridge/internal/ddl"
	"flowbridge/internal/errors"
	"flowbridge/pkg/records"
)

// Repository is one open connection to a table of a backend.
type Repository interface {
	// CopyFrom bulk-inserts rows aligned to columns and reports the number of
	// rows written.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)

	// Exec runs a statement, typically DDL.
	Exec(ctx context.Context, sql string) error

	// Scan streams the given columns of the configured table.
	Scan(ctx context.Context, columns []string) (records.Iterator, error)

	// Dialect describes how the backend renders DDL.
	Dialect() ddl.Dialect

	Close() error
}

// Config addresses a table of a backend.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is called from backend
// init functions; a later registration replaces an earlier one.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Repository with the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, errors.WithHintf(
			errors.Newf("storage: unknown kind %q", cfg.Kind),
			"registered kinds: %v; import flowbridge/internal/storage/all", Kinds())
	}
	if cfg.Table == "" {
		return nil, errors.Newf("storage %s: table is required", cfg.Kind)
	}
	return f(ctx, cfg)
}

// EnsureTable creates the table of td if it does not exist, rendering the
// statement in the repository's dialect.
func EnsureTable(ctx context.Context, repo Repository, td ddl.TableDef) error {
	stmt, err := ddl.BuildCreateTableSQL(repo.Dialect(), td)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "create table %s", td.FQN)
	}
	return nil
}
