// Package jsontap reads and writes newline-delimited JSON objects. Each
// field maps to the object key of the same name, or to the matching entry of
// the tap's columns. Missing keys become nil; extra keys are ignored.
//
// Options:
//
//	strict        fail on a value that does not fit its field (false)
//	http_retries  retries of remote sources (3)
package jsontap

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

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

// Counters is the counter group of this tap.
const Counters = "flowbridge.jsonl"

// RecordsRejected counts skipped objects.
const RecordsRejected = "Records_Rejected"

type Tap struct {
	path    string
	desc    *schema.Descriptor
	keys    []string
	strict  bool
	retries int
}

var _ flow.Tap = (*Tap)(nil)

func New(cfg config.Tap, desc *schema.Descriptor) (*Tap, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("path is required")
	}
	keys, err := tap.Columns(cfg, desc)
	if err != nil {
		return nil, err
	}
	return &Tap{
		path:    cfg.Path,
		desc:    desc,
		keys:    keys,
		strict:  cfg.Options.Bool("strict", false),
		retries: cfg.Options.Int("http_retries", 3),
	}, nil
}

func (t *Tap) Identifier() string { return "jsonl:" + t.path }

// OpenForRead returns the objects of the files owned by p's worker. A
// remote source is read by worker 0 only.
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
	return &reader{
		tap:    t,
		proc:   p,
		inputs: inputs,
		client: httpds.NewClient(httpds.Config{MaxRetries: t.retries, Logger: p.Logger()}),
	}, nil
}

// OpenForWrite creates the output file of p's worker.
func (t *Tap) OpenForWrite(ctx context.Context, p *flow.Process) (records.Collector, error) {
	if datasource.IsRemote(t.path) {
		return nil, errors.Newf("cannot write to %s", t.path)
	}
	target := t.path
	if p.WorkerCount() > 1 || file.IsDir(t.path) {
		target = file.PartName(t.path, p.WorkerIndex(), "jsonl")
	}
	f, err := file.Create(ctx, target)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &writer{
		tap:    t,
		file:   f,
		buf:    buf,
		enc:    sonic.ConfigStd.NewEncoder(buf),
		target: target,
		obj:    make(map[string]any, len(t.keys)),
	}, nil
}

type reader struct {
	tap    *Tap
	proc   *flow.Process
	inputs []string
	client *httpds.Client

	next int
	rc   io.ReadCloser
	dec  sonic.Decoder
	name string
	n    int
}

func (r *reader) Next(ctx context.Context) (records.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.dec == nil {
			if r.next >= len(r.inputs) {
				return nil, io.EOF
			}
			name := r.inputs[r.next]
			r.next++
			if err := r.open(ctx, name); err != nil {
				return nil, errors.Wrapf(err, "jsonl %s", name)
			}
		}
		var raw any
		if err := r.dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				if err := r.closeCurrent(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, errors.Wrapf(err, "jsonl %s: object %d", r.name, r.n+1)
		}
		r.n++
		obj, ok := raw.(map[string]any)
		if !ok {
			if err := r.reject(errors.Newf("top-level %T is not an object", raw)); err != nil {
				return nil, err
			}
			continue
		}
		rec, err := r.convert(obj)
		if err != nil {
			if rerr := r.reject(err); rerr != nil {
				return nil, rerr
			}
			continue
		}
		return rec, nil
	}
}

func (r *reader) convert(obj map[string]any) (records.Record, error) {
	rec := make(records.Record, len(r.tap.keys))
	for i, key := range r.tap.keys {
		v, err := fromJSON(r.tap.desc.KindAt(i), obj[key])
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", r.tap.desc.FieldName(i))
		}
		rec[i] = v
	}
	return rec, nil
}

// reject records a skipped object. In strict mode it becomes the read error.
func (r *reader) reject(err error) error {
	err = errors.Wrapf(err, "%s: object %d", r.name, r.n)
	if r.tap.strict {
		return err
	}
	if r.proc.CountersInitialized() {
		_ = r.proc.Increment(Counters, RecordsRejected, 1)
	}
	r.proc.Logger().Warn("jsonl object rejected", zap.Error(err))
	return nil
}

func (r *reader) open(ctx context.Context, name string) error {
	rc, err := datasource.Resolve(name, r.client).Open(ctx)
	if err != nil {
		return err
	}
	dec := sonic.ConfigStd.NewDecoder(rc)
	dec.UseNumber()
	r.rc, r.dec, r.name, r.n = rc, dec, name, 0
	return nil
}

func (r *reader) closeCurrent() error {
	r.dec = nil
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	return err
}

func (r *reader) Close() error {
	r.next = len(r.inputs)
	return r.closeCurrent()
}

// fromJSON converts a decoded JSON value into the canonical value of k.
// Numbers arrive as json.Number; strings holding numbers or booleans are
// accepted for typed fields. Non-primitive kinds take the value as decoded.
func fromJSON(k schema.Kind, v any) (any, error) {
	if v == nil || !k.Primitive() {
		return v, nil
	}
	switch x := v.(type) {
	case json.Number:
		switch k {
		case schema.KindByte, schema.KindShort, schema.KindInt, schema.KindLong:
			n, err := x.Int64()
			if err != nil {
				return nil, errors.Newf("invalid %s %s", k, x)
			}
			return k.Canonical(n)
		case schema.KindFloat, schema.KindDouble:
			f, err := x.Float64()
			if err != nil {
				return nil, errors.Newf("invalid %s %s", k, x)
			}
			return k.Canonical(f)
		case schema.KindString:
			return x.String(), nil
		}
	case string:
		switch k {
		case schema.KindString, schema.KindChar:
			return k.Canonical(x)
		case schema.KindBool:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, errors.Newf("invalid bool %q", x)
			}
			return b, nil
		default:
			return fromJSON(k, json.Number(strings.TrimSpace(x)))
		}
	case bool:
		if k == schema.KindBool {
			return x, nil
		}
	}
	return nil, errors.Newf("cannot use %T as %s", v, k)
}

type writer struct {
	tap    *Tap
	file   io.WriteCloser
	buf    *bufio.Writer
	enc    sonic.Encoder
	target string
	obj    map[string]any
	closed bool
}

func (w *writer) Add(rec records.Record) error {
	if w.closed {
		return errors.Wrapf(errors.ErrStageClosed, "jsonl %s", w.target)
	}
	if len(rec) != len(w.tap.keys) {
		return &errors.ArityMismatchError{What: "jsonl " + w.target, Want: len(w.tap.keys), Got: len(rec)}
	}
	for i, key := range w.tap.keys {
		v := rec[i]
		if c, ok := v.(int32); ok && w.tap.desc.KindAt(i) == schema.KindChar {
			v = string(c)
		}
		w.obj[key] = v
	}
	if err := w.enc.Encode(w.obj); err != nil {
		return errors.Wrapf(err, "jsonl %s", w.target)
	}
	return nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "close %s", w.target)
	}
	return nil
}

func init() {
	tap.Register("jsonl", func(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error) {
		return New(cfg, desc)
	})
}
