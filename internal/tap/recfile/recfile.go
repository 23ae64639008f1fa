// Package recfile stores records in a compact binary file: a short header
// carrying the record width, then one length-prefixed frame per record
// encoded with the schema's record serializer. Files may be zstd
// compressed; the reader detects compression from the leading bytes.
//
// Options:
//
//	compression  "zstd" or "none" (none)
//	level        zstd level: fastest, default, better, best (default)
package recfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
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

// magic opens every uncompressed record stream.
var magic = []byte("FBREC\x01")

// zstdMagic is the zstd frame magic number, little endian.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Tap is a record file set.
type Tap struct {
	path  string
	desc  *schema.Descriptor
	ser   *schema.RecordSerializer
	zstd  bool
	level zstd.EncoderLevel
}

var _ flow.Tap = (*Tap)(nil)

// New builds a tap from cfg for records of desc.
func New(cfg config.Tap, desc *schema.Descriptor) (*Tap, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("path is required")
	}
	t := &Tap{path: cfg.Path, desc: desc, ser: desc.RecordSerializer(), level: zstd.SpeedDefault}
	switch c := cfg.Options.String("compression", "none"); c {
	case "none", "":
	case "zstd":
		t.zstd = true
	default:
		return nil, errors.Newf("unknown compression %q", c)
	}
	if l := cfg.Options.String("level", ""); l != "" {
		ok, lvl := zstd.EncoderLevelFromString(l)
		if !ok {
			return nil, errors.Newf("unknown zstd level %q", l)
		}
		t.level = lvl
	}
	return t, nil
}

func (t *Tap) Identifier() string { return "recfile:" + t.path }

// OpenForRead returns the records of the files owned by p's worker.
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
	return &reader{tap: t, inputs: inputs, client: httpds.NewClient(httpds.Config{MaxRetries: 3})}, nil
}

// OpenForWrite creates the output file of p's worker.
func (t *Tap) OpenForWrite(ctx context.Context, p *flow.Process) (records.Collector, error) {
	if datasource.IsRemote(t.path) {
		return nil, errors.Newf("cannot write to %s", t.path)
	}
	target := t.path
	if p.WorkerCount() > 1 || file.IsDir(t.path) {
		ext := "rec"
		if t.zstd {
			ext = "rec.zst"
		}
		target = file.PartName(t.path, p.WorkerIndex(), ext)
	}
	f, err := file.Create(ctx, target)
	if err != nil {
		return nil, err
	}
	w := &writer{file: f, target: target, ser: t.ser}
	var out io.Writer = f
	if t.zstd {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(t.level))
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "zstd writer")
		}
		w.enc, out = enc, enc
	}
	w.buf = bufio.NewWriter(out)
	if err := writeHeader(w.buf, t.desc.Arity()); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "write header %s", target)
	}
	p.Logger().Debug("record file opened", zap.String("path", target), zap.Bool("zstd", t.zstd))
	return w, nil
}

func writeHeader(w io.Writer, arity int) error {
	hdr := binary.AppendUvarint(append([]byte(nil), magic...), uint64(arity))
	_, err := w.Write(hdr)
	return err
}

func readHeader(r *bufio.Reader) (int, error) {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(r, got); err != nil {
		return 0, errors.Wrap(err, "read header")
	}
	if !bytes.Equal(got, magic) {
		return 0, errors.New("not a record file")
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, errors.Wrap(err, "read header arity")
	}
	return int(n), nil
}

type reader struct {
	tap    *Tap
	inputs []string
	client *httpds.Client

	next int
	rc   io.ReadCloser
	dec  *zstd.Decoder
	br   *bufio.Reader
	name string
}

func (r *reader) Next(ctx context.Context) (records.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.br == nil {
			if r.next >= len(r.inputs) {
				return nil, io.EOF
			}
			name := r.inputs[r.next]
			r.next++
			if err := r.open(ctx, name); err != nil {
				return nil, errors.Wrapf(err, "record file %s", name)
			}
		}
		rec, err := r.tap.ser.ReadFrame(r.br)
		if errors.Is(err, io.EOF) {
			if err := r.closeCurrent(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "record file %s", r.name)
		}
		return rec, nil
	}
}

func (r *reader) open(ctx context.Context, name string) error {
	rc, err := datasource.Resolve(name, r.client).Open(ctx)
	if err != nil {
		return err
	}
	r.rc, r.name = rc, name
	br := bufio.NewReader(rc)
	if lead, _ := br.Peek(len(zstdMagic)); bytes.Equal(lead, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			_ = r.closeCurrent()
			return errors.Wrap(err, "zstd reader")
		}
		r.dec = dec
		br = bufio.NewReader(dec)
	}
	arity, err := readHeader(br)
	if err != nil {
		_ = r.closeCurrent()
		return err
	}
	if arity != r.tap.desc.Arity() {
		_ = r.closeCurrent()
		return &errors.ArityMismatchError{What: "record file", Want: r.tap.desc.Arity(), Got: arity}
	}
	r.br = br
	return nil
}

func (r *reader) closeCurrent() error {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	r.br = nil
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

type writer struct {
	file   io.WriteCloser
	enc    *zstd.Encoder
	buf    *bufio.Writer
	ser    *schema.RecordSerializer
	target string
	closed bool
}

func (w *writer) Add(rec records.Record) error {
	if w.closed {
		return errors.Wrapf(errors.ErrStageClosed, "record file %s", w.target)
	}
	if err := w.ser.WriteFrame(w.buf, rec); err != nil {
		return errors.Wrapf(err, "record file %s", w.target)
	}
	return nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.buf.Flush()
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
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
	tap.Register("recfile", func(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error) {
		return New(cfg, desc)
	})
}
