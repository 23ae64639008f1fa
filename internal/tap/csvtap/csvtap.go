// Package csvtap reads and writes delimited text files.
//
// Reading accepts a file, a directory, a glob or an @list file (see
// file.Expand) and splits the inputs between workers round-robin. An http(s)
// path is fetched whole by worker 0. Cells are converted to the declared
// field kinds; malformed rows are skipped and counted unless strict is set.
//
// Writing produces one file per worker: the path itself for a single
// worker, part-NNNNN.csv files inside the path when it is a directory or
// more than one worker writes.
//
// Options:
//
//	has_header       first row holds column names (true)
//	comma            field delimiter (",")
//	trim_space       trim cells before conversion (true)
//	lazy_quotes      tolerate stray quotes (false)
//	null_empty       empty cells become nil (true)
//	strict           fail on the first malformed row (false)
//	header_map       source header name -> column name
//	encoding         input/output charset, e.g. windows-1250 (utf-8)
//	write_header     write a header row on output (true)
package csvtap

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"flowbridge/internal/config"
	"flowbridge/internal/datasource"
	"flowbridge/internal/datasource/file"
	"flowbridge/internal/datasource/httpds"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/schema"
	"flowbridge/internal/tap"
	"flowbridge/pkg/records"
)

// Counters is the counter group of the CSV reader.
const Counters = "flowbridge.csv"

// RowsRejected counts skipped malformed rows.
const RowsRejected = "Rows_Rejected"

type options struct {
	hasHeader   bool
	comma       rune
	trimSpace   bool
	lazyQuotes  bool
	nullEmpty   bool
	strict      bool
	writeHeader bool
	headerMap   map[string]string
	enc         encoding.Encoding
}

// Tap is a CSV file set.
type Tap struct {
	path    string
	desc    *schema.Descriptor
	columns []string
	opts    options
	client  *httpds.Client
}

var _ flow.Tap = (*Tap)(nil)

// New builds a tap from cfg for records of desc.
func New(cfg config.Tap, desc *schema.Descriptor) (*Tap, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("path is required")
	}
	cols, err := tap.Columns(cfg, desc)
	if err != nil {
		return nil, err
	}
	o := cfg.Options
	opts := options{
		hasHeader:   o.Bool("has_header", true),
		comma:       o.Rune("comma", ','),
		trimSpace:   o.Bool("trim_space", true),
		lazyQuotes:  o.Bool("lazy_quotes", false),
		nullEmpty:   o.Bool("null_empty", true),
		strict:      o.Bool("strict", false),
		writeHeader: o.Bool("write_header", true),
		headerMap:   o.StringMap("header_map"),
	}
	if name := o.String("encoding", ""); name != "" {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %q", name)
		}
		if enc != unicode.UTF8 {
			opts.enc = enc
		}
	}
	return &Tap{
		path:    cfg.Path,
		desc:    desc,
		columns: cols,
		opts:    opts,
		client:  httpds.NewClient(httpds.Config{MaxRetries: o.Int("http_retries", 3)}),
	}, nil
}

func (t *Tap) Identifier() string { return "csv:" + t.path }

// OpenForRead returns the records of the inputs owned by p's worker.
func (t *Tap) OpenForRead(ctx context.Context, p *flow.Process) (records.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var inputs []string
	if datasource.IsRemote(t.path) {
		if p.WorkerIndex() == 0 {
			inputs = []string{t.path}
		}
	} else {
		all, err := file.Expand(t.path)
		if err != nil {
			return nil, err
		}
		inputs = file.Partition(all, p.WorkerIndex(), p.WorkerCount())
	}
	return &reader{tap: t, proc: p, inputs: inputs}, nil
}

// OpenForWrite creates the output file of p's worker.
func (t *Tap) OpenForWrite(ctx context.Context, p *flow.Process) (records.Collector, error) {
	if datasource.IsRemote(t.path) {
		return nil, errors.Newf("cannot write to %s", t.path)
	}
	target := t.path
	if p.WorkerCount() > 1 || file.IsDir(t.path) {
		target = file.PartName(t.path, p.WorkerIndex(), "csv")
	}
	f, err := file.Create(ctx, target)
	if err != nil {
		return nil, err
	}
	w := &writer{file: f, target: target, kinds: kinds(t.desc), row: make([]string, t.desc.Arity())}
	var out io.Writer = f
	if t.opts.enc != nil {
		enc := t.opts.enc.NewEncoder().Writer(f)
		w.flush, _ = enc.(io.Closer)
		out = enc
	}
	w.csv = csv.NewWriter(out)
	w.csv.Comma = t.opts.comma
	if t.opts.writeHeader {
		if err := w.csv.Write(t.columns); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "write header %s", target)
		}
	}
	p.Logger().Debug("csv output opened", zap.String("path", target))
	return w, nil
}

func kinds(d *schema.Descriptor) []schema.Kind {
	k := make([]schema.Kind, d.Arity())
	for i := range k {
		k[i] = d.KindAt(i)
	}
	return k
}

// reader walks the inputs one file at a time.
type reader struct {
	tap    *Tap
	proc   *flow.Process
	inputs []string

	next  int
	rc    io.ReadCloser
	cr    *csv.Reader
	name  string
	line  int
	width int
	pos   []int
	kinds []schema.Kind
}

func (r *reader) Next(ctx context.Context) (records.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.cr == nil {
			if r.next >= len(r.inputs) {
				return nil, io.EOF
			}
			if err := r.open(ctx, r.inputs[r.next]); err != nil {
				return nil, err
			}
			r.next++
		}

		row, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			if err := r.closeCurrent(); err != nil {
				return nil, err
			}
			continue
		}
		r.line++
		if err != nil {
			if rerr := r.reject(errors.Wrap(err, "parse")); rerr != nil {
				return nil, rerr
			}
			continue
		}
		rec, err := r.convert(row)
		if err != nil {
			if rerr := r.reject(err); rerr != nil {
				return nil, rerr
			}
			continue
		}
		return rec, nil
	}
}

func (r *reader) open(ctx context.Context, name string) error {
	rc, err := datasource.Resolve(name, r.tap.client).Open(ctx)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	var in io.Reader = rc
	if r.tap.opts.enc != nil {
		in = r.tap.opts.enc.NewDecoder().Reader(rc)
	}
	cr := csv.NewReader(in)
	cr.Comma = r.tap.opts.comma
	cr.LazyQuotes = r.tap.opts.lazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	r.rc, r.cr, r.name, r.line = rc, cr, name, 0
	r.kinds = kinds(r.tap.desc)
	arity := r.tap.desc.Arity()

	if !r.tap.opts.hasHeader {
		r.width = arity
		r.pos = make([]int, arity)
		for i := range r.pos {
			r.pos[i] = i
		}
		return nil
	}

	h, err := cr.Read()
	if err != nil {
		_ = r.closeCurrent()
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrapf(err, "read csv header of %s", name)
	}
	r.line = 1
	headers := normalizeHeaders(h, r.tap.opts.headerMap)
	pos, missing := positions(headers, r.tap.columns)
	if len(missing) > 0 {
		_ = r.closeCurrent()
		return errors.Wrapf(&errors.UnknownFieldError{Field: missing[0], Fields: headers}, "csv header of %s", name)
	}
	r.width, r.pos = len(headers), pos
	return nil
}

func (r *reader) convert(row []string) (records.Record, error) {
	if len(row) != r.width {
		return nil, errors.Newf("incorrect number of fields: expected %d, got %d", r.width, len(row))
	}
	rec := make(records.Record, len(r.pos))
	for i, p := range r.pos {
		v := row[p]
		if r.tap.opts.trimSpace {
			v = strings.TrimSpace(v)
		}
		if v == "" && r.tap.opts.nullEmpty {
			continue
		}
		val, err := parse(r.kinds[i], v)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", r.tap.desc.FieldName(i))
		}
		rec[i] = val
	}
	return rec, nil
}

// reject records a malformed row. In strict mode it becomes the read error.
func (r *reader) reject(err error) error {
	err = errors.Wrapf(err, "%s:%d", r.name, r.line)
	if r.tap.opts.strict {
		return err
	}
	if r.proc.CountersInitialized() {
		_ = r.proc.Increment(Counters, RowsRejected, 1)
	}
	r.proc.Logger().Warn("csv row rejected", zap.Error(err))
	return nil
}

func (r *reader) closeCurrent() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc, r.cr = nil, nil
	return err
}

func (r *reader) Close() error {
	r.next = len(r.inputs)
	return r.closeCurrent()
}

// writer is one worker's CSV output.
type writer struct {
	file   io.WriteCloser
	flush  io.Closer
	csv    *csv.Writer
	target string
	kinds  []schema.Kind
	row    []string
	closed bool
}

func (w *writer) Add(rec records.Record) error {
	if w.closed {
		return errors.Wrapf(errors.ErrStageClosed, "csv %s", w.target)
	}
	if len(rec) != len(w.row) {
		return &errors.ArityMismatchError{What: "csv record", Want: len(w.row), Got: len(rec)}
	}
	for i, v := range rec {
		w.row[i] = format(w.kinds[i], v)
	}
	if err := w.csv.Write(w.row); err != nil {
		return errors.Wrapf(err, "write %s", w.target)
	}
	return nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	err := w.csv.Error()
	if w.flush != nil {
		if ferr := w.flush.Close(); err == nil {
			err = ferr
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "close %s", w.target)
	}
	return nil
}

func init() {
	tap.Register("csv", func(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error) {
		return New(cfg, desc)
	})
}
