// Package records defines the positional record that flows between stages and
// the iterator/collector contracts used at the slice boundaries.
//
// A Record is an ordered, fixed-arity sequence of values. It carries no field
// names; names live in the schema descriptor that describes it. Records are
// treated as immutable once handed downstream: projections and merges build
// new records instead of mutating shared ones.
package records

import (
	"context"
	"io"
	"reflect"
)

// Record is an ordered, fixed-arity sequence of values.
type Record []any

// Of builds a Record from the given values.
func Of(values ...any) Record { return Record(values) }

// Len returns the arity of the record.
func (r Record) Len() int { return len(r) }

// Copy returns a shallow copy of r. Use it when a record built in a reusable
// buffer must outlive the call that produced it.
func (r Record) Copy() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	copy(out, r)
	return out
}

// Equal reports whether r and o have the same arity and deeply equal values
// position by position.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !reflect.DeepEqual(r[i], o[i]) {
			return false
		}
	}
	return true
}

// Sink accepts records one at a time, in emission order. Add may block on the
// host's own I/O; there is no acknowledgement beyond returning.
type Sink interface {
	Add(rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Record) error

func (f SinkFunc) Add(rec Record) error { return f(rec) }

// Collector is a Sink backed by an external resource that must be closed.
type Collector interface {
	Sink
	Close() error
}

// Iterator is a finite, one-pass, non-restartable record stream. Next returns
// io.EOF once the stream is exhausted.
type Iterator interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// --- in-memory helpers --------------------------------------------------------

// SliceIterator iterates over an in-memory slice of records.
type SliceIterator struct {
	recs []Record
	pos  int
}

// FromSlice returns an Iterator over recs.
func FromSlice(recs []Record) *SliceIterator { return &SliceIterator{recs: recs} }

func (it *SliceIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.recs) {
		return nil, io.EOF
	}
	r := it.recs[it.pos]
	it.pos++
	return r, nil
}

func (it *SliceIterator) Close() error { return nil }

// ChanIterator adapts a receive channel to Iterator. Closing the channel ends
// the stream.
type ChanIterator struct {
	ch <-chan Record
}

// FromChan returns an Iterator draining ch.
func FromChan(ch <-chan Record) *ChanIterator { return &ChanIterator{ch: ch} }

func (it *ChanIterator) Next(ctx context.Context) (Record, error) {
	select {
	case r, ok := <-it.ch:
		if !ok {
			return nil, io.EOF
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (it *ChanIterator) Close() error { return nil }

// Buffer is a Collector that keeps everything it receives. It is not safe
// for concurrent use.
type Buffer struct {
	Records []Record
	Closed  bool
}

func (b *Buffer) Add(rec Record) error {
	b.Records = append(b.Records, rec)
	return nil
}

func (b *Buffer) Close() error {
	b.Closed = true
	return nil
}

// Count is a Sink that counts records and forwards them to Next (if set).
type Count struct {
	Next Sink
	N    int64
}

func (c *Count) Add(rec Record) error {
	c.N++
	if c.Next == nil {
		return nil
	}
	return c.Next.Add(rec)
}

// Tee fans every record out to all sinks in order, stopping at the first error.
type Tee []Sink

func (t Tee) Add(rec Record) error {
	for _, s := range t {
		if err := s.Add(rec); err != nil {
			return err
		}
	}
	return nil
}
