// Package mapper is the task function the host invokes once per parallel
// slice: it builds the stream graph of a fragment for one worker, drives the
// slice's records through it and tears it down.
package mapper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/graph"
	"flowbridge/internal/metrics"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// SliceCounters is the counter group of per-slice bookkeeping.
const SliceCounters = "flowbridge.SliceCounters"

// Slice counter names.
const (
	ProcessBeginTime = "Process_Begin_Time"
	ProcessEndTime   = "Process_End_Time"
	ProcessDuration  = "Process_Duration"
	TuplesRead       = "Tuples_Read"
	TuplesWritten    = "Tuples_Written"
)

// Mapper runs one fragment on one worker. Open, MapPartition and Close are
// called once each, in that order.
type Mapper struct {
	fragment graph.Fragment
	now      func() time.Time

	proc   *flow.Process
	graph  *graph.Graph
	outlet *outlet
	log    *zap.Logger
}

// outlet is the graph's collector, bound to the host output per partition.
type outlet struct{ sink records.Sink }

func (o *outlet) Add(rec records.Record) error {
	if o.sink == nil {
		return errors.New("mapper: no output bound")
	}
	return o.sink.Add(rec)
}

// New returns a mapper for f.
func New(f graph.Fragment) *Mapper {
	return &Mapper{fragment: f, now: time.Now}
}

// Open builds the stream graph for the worker described by proc. Failures
// that are not part of the error taxonomy are wrapped as configuration
// errors.
func (m *Mapper) Open(proc *flow.Process) error {
	start := m.now()
	err := m.open(proc)
	metrics.RecordStep(m.fragment.Name, "open", err, m.now().Sub(start))
	if err != nil {
		if errors.IsAdapterError(err) || errors.IsResourceExhausted(err) {
			return err
		}
		return errors.Wrap(err, "internal error during mapper configuration")
	}
	return nil
}

func (m *Mapper) open(proc *flow.Process) error {
	if proc == nil {
		return errors.New("mapper: nil worker context")
	}
	m.proc = proc
	m.log = proc.Logger().With(zap.String("fragment", m.fragment.Name))
	m.outlet = &outlet{}

	g, err := graph.Build(proc, m.fragment, m.outlet)
	if err != nil {
		return err
	}
	m.graph = g

	for _, s := range m.fragment.Sources {
		m.log.Info("sourcing from", zap.String("boundary", s.Name), zap.Stringer("fields", g.Source()))
	}
	for _, s := range m.fragment.Sinks {
		m.log.Info("sinking to", zap.String("boundary", s.Name), zap.Stringer("fields", g.Schema()))
	}
	return nil
}

// Schema describes the records MapPartition emits. It is nil before Open.
func (m *Mapper) Schema() *schema.Descriptor {
	if m.graph == nil {
		return nil
	}
	return m.graph.Schema()
}

// MapPartition runs every record of input through the graph into output.
// The graph is always cleaned up; the first error wins. Resource exhaustion
// and context cancellation are returned as-is, taxonomy errors pass
// through, and anything else is wrapped as an execution error.
func (m *Mapper) MapPartition(ctx context.Context, input records.Iterator, output records.Sink) (err error) {
	if m.graph == nil {
		return errors.Wrap(errors.ErrStageNotOpen, "mapper: MapPartition before Open")
	}
	m.outlet.sink = output

	begin := m.now()
	if m.proc.CountersInitialized() {
		_ = m.proc.Increment(SliceCounters, ProcessBeginTime, begin.UnixMilli())
	}

	defer func() {
		start := m.now()
		cerr := m.graph.Cleanup()
		end := m.now()
		metrics.RecordStep(m.fragment.Name, "cleanup", cerr, end.Sub(start))
		if err == nil && cerr != nil {
			err = m.classify(cerr)
		}
		m.finish(begin, end, err)
	}()

	start := m.now()
	err = m.graph.Prepare()
	if err == nil {
		err = m.graph.Run(ctx, input)
	}
	metrics.RecordStep(m.fragment.Name, "run", err, m.now().Sub(start))
	if err != nil {
		return m.classify(err)
	}
	return nil
}

func (m *Mapper) classify(err error) error {
	switch {
	case errors.IsResourceExhausted(err), errors.IsAdapterError(err):
		return err
	case errors.IsAny(err, context.Canceled, context.DeadlineExceeded):
		return err
	}
	return errors.Wrap(err, "internal error during mapper execution")
}

func (m *Mapper) finish(begin, end time.Time, err error) {
	read, written := m.graph.Read(), m.graph.Written()
	if m.proc.CountersInitialized() {
		_ = m.proc.Increment(SliceCounters, ProcessEndTime, end.UnixMilli())
		_ = m.proc.Increment(SliceCounters, ProcessDuration, end.Sub(begin).Milliseconds())
		_ = m.proc.Increment(SliceCounters, TuplesRead, read)
		_ = m.proc.Increment(SliceCounters, TuplesWritten, written)
	}
	metrics.RecordRecords(m.fragment.Name, "read", read)
	metrics.RecordRecords(m.fragment.Name, "written", written)

	fields := []zap.Field{
		zap.Int64("read", read),
		zap.Int64("written", written),
		zap.Duration("elapsed", end.Sub(begin)),
	}
	if err != nil {
		m.log.Error("slice failed", append(fields, zap.Error(err))...)
		return
	}
	m.log.Info("slice done", fields...)
}

// Close releases the mapper. It is safe to call more than once.
func (m *Mapper) Close() error {
	m.graph, m.outlet = nil, nil
	return nil
}
