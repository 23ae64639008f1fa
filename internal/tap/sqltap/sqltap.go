// Package sqltap exposes database tables as taps through the storage
// backends. Reads stream a SELECT of the mapped columns on worker 0; writes
// go through a batching collector per worker.
//
// Options:
//
//	create_table  create the table from the record schema when missing (false)
//	batch_size    rows per bulk write (1000)
package sqltap

import (
	"context"

	"go.uber.org/zap"

	"flowbridge/internal/config"
	"flowbridge/internal/ddl"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/schema"
	"flowbridge/internal/storage"
	"flowbridge/internal/tap"
	"flowbridge/pkg/records"
)

// DefaultBatchSize is used when batch_size is not set.
const DefaultBatchSize = 1000

// Tap is one table of a backend.
type Tap struct {
	cfg         storage.Config
	desc        *schema.Descriptor
	createTable bool
	batchSize   int
}

var _ flow.Tap = (*Tap)(nil)

// New builds a tap from cfg for records of desc.
func New(cfg config.Tap, desc *schema.Descriptor) (*Tap, error) {
	cols, err := tap.Columns(cfg, desc)
	if err != nil {
		return nil, err
	}
	if cfg.Table == "" {
		return nil, errors.New("table is required")
	}
	size := cfg.Options.Int("batch_size", DefaultBatchSize)
	if size <= 0 {
		return nil, errors.Newf("batch_size must be > 0, got %d", size)
	}
	return &Tap{
		cfg:         storage.Config{Kind: cfg.Kind, DSN: cfg.DSN, Table: cfg.Table, Columns: cols},
		desc:        desc,
		createTable: cfg.Options.Bool("create_table", false),
		batchSize:   size,
	}, nil
}

func (t *Tap) Identifier() string { return t.cfg.Kind + ":" + t.cfg.Table }

// OpenForRead streams the table on worker 0. Other workers read nothing;
// a table scan is not split.
func (t *Tap) OpenForRead(ctx context.Context, p *flow.Process) (records.Iterator, error) {
	if p.WorkerIndex() != 0 {
		return records.FromSlice(nil), nil
	}
	repo, err := storage.New(ctx, t.cfg)
	if err != nil {
		return nil, err
	}
	it, err := repo.Scan(ctx, t.cfg.Columns)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return tap.WithRelease(&typed{Iterator: it, desc: t.desc}, repo.Close), nil
}

// OpenForWrite opens a batching collector for p's worker.
func (t *Tap) OpenForWrite(ctx context.Context, p *flow.Process) (records.Collector, error) {
	repo, err := storage.New(ctx, t.cfg)
	if err != nil {
		return nil, err
	}
	if t.createTable {
		td, err := ddl.FromSchema(repo.Dialect(), t.cfg.Table, t.desc, t.cfg.Columns)
		if err == nil {
			err = storage.EnsureTable(ctx, repo, td)
		}
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
	}
	log := p.Logger().With(zap.String("tap", t.Identifier()), zap.Int("worker", p.WorkerIndex()))
	w, err := storage.NewBatchWriter(ctx, t.cfg.Columns, t.batchSize, repo.CopyFrom, log, repo.Close)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return &outbound{BatchWriter: w, kinds: kindsOf(t.desc)}, nil
}

func kindsOf(d *schema.Descriptor) []schema.Kind {
	k := make([]schema.Kind, d.Arity())
	for i := range k {
		k[i] = d.KindAt(i)
	}
	return k
}

// typed converts driver values to the canonical values of the schema.
type typed struct {
	records.Iterator
	desc *schema.Descriptor
}

func (t *typed) Next(ctx context.Context) (records.Record, error) {
	rec, err := t.Iterator.Next(ctx)
	if err != nil {
		return nil, err
	}
	if len(rec) != t.desc.Arity() {
		return nil, &errors.ArityMismatchError{What: "table row", Want: t.desc.Arity(), Got: len(rec)}
	}
	for i, v := range rec {
		if v == nil {
			continue
		}
		if rec[i], err = fromDriver(t.desc.KindAt(i), v); err != nil {
			return nil, errors.Wrapf(err, "column %s", t.desc.FieldName(i))
		}
	}
	return rec, nil
}

// fromDriver maps a scanned value onto kind k. Backends without a boolean
// type return integers for booleans.
func fromDriver(k schema.Kind, v any) (any, error) {
	if k == schema.KindBool {
		switch n := v.(type) {
		case int64:
			return n != 0, nil
		case bool:
			return n, nil
		}
	}
	if k == schema.KindString {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	if !k.Primitive() {
		return v, nil
	}
	return k.Canonical(v)
}

// outbound writes chars as one-character strings; drivers would otherwise
// see their int32 code point.
type outbound struct {
	*storage.BatchWriter
	kinds []schema.Kind
}

func (o *outbound) Add(rec records.Record) error {
	for i, k := range o.kinds {
		if k != schema.KindChar || i >= len(rec) {
			continue
		}
		if r, ok := rec[i].(rune); ok {
			rec = rec.Copy()
			rec[i] = string(r)
		}
	}
	return o.BatchWriter.Add(rec)
}

func init() {
	for _, kind := range []string{"sqlite", "mysql", "sqlserver", "postgres"} {
		tap.Register(kind, func(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error) {
			return New(cfg, desc)
		})
	}
}
