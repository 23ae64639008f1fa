// Package engine runs a job on the local host. It plays the role of the
// dataflow runtime: the source tap is read once, records are dealt
// round-robin over bounded channels to Parallelism slices, and every slice
// runs its own mapper with its own worker context, counter map and sink
// collectors.
//
//	source tap → reader → ch[0..n) → mapper[i] → sinks[i]
//
// The first slice error cancels the others. Counters are merged after every
// slice has finished.
package engine

import (
	"context"
	"io"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/graph"
	"flowbridge/internal/mapper"
	"flowbridge/internal/metrics"
	"flowbridge/internal/schema"
	"flowbridge/internal/tap"
	"flowbridge/pkg/records"
)

const defaultChannelBuffer = 1024

// Options are host settings that the job file does not carry.
type Options struct {
	// Parallelism applies when the job's runtime.parallelism is 0. 0 here
	// means one slice per CPU.
	Parallelism int

	Logger *zap.Logger

	// Classes resolves operator classes; flow.Default when nil.
	Classes *flow.Registry

	// RunID names the run in logs; a random UUID when empty.
	RunID string
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Slices   int
	Read     int64
	Written  int64
	Counters flow.CounterMap
	Elapsed  time.Duration
}

// newTapFn is a test seam.
var newTapFn = tap.New

// Fragment converts the operator chain of j into the fragment every slice
// runs.
func Fragment(j config.Job) graph.Fragment {
	f := graph.Fragment{
		Name:    jobName(j),
		Sources: []graph.Boundary{{Name: j.Source.Name, Fields: j.Source.Fields}},
	}
	for _, s := range j.Sinks {
		f.Sinks = append(f.Sinks, graph.Boundary{Name: s.Name, Fields: s.Fields})
	}
	for _, op := range j.Operators {
		f.Nodes = append(f.Nodes, graph.Node{
			Name:      op.Name,
			Arguments: op.Arguments,
			Outputs:   op.Outputs,
			Policy:    op.Merge,
			Class:     op.Class,
			Options:   op.Options,
		})
	}
	return f
}

func jobName(j config.Job) string {
	if j.Job == "" {
		return "flowbridge_job"
	}
	return j.Job
}

// OutputSchema builds the fragment of j once and returns the schema its
// sinks receive.
func OutputSchema(j config.Job, classes *flow.Registry) (*schema.Descriptor, error) {
	opts := []flow.Option{}
	if classes != nil {
		opts = append(opts, flow.WithClasses(classes))
	}
	p, err := flow.New(0, 1, j.Properties, opts...)
	if err != nil {
		return nil, err
	}
	m := mapper.New(Fragment(j))
	if err := m.Open(p); err != nil {
		return nil, err
	}
	defer m.Close()
	return m.Schema(), nil
}

// runtimeConfig is the resolved execution shape of one run.
type runtimeConfig struct {
	parallelism int
	buffer      int
	batchSize   int
}

func newRuntimeConfig(j config.Job, o Options) runtimeConfig {
	return runtimeConfig{
		parallelism: pickInt(j.Runtime.Parallelism, pickInt(o.Parallelism, runtime.NumCPU())),
		buffer:      pickInt(j.Runtime.ChannelBuffer, defaultChannelBuffer),
		batchSize:   j.Runtime.BatchSize,
	}
}

func pickInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// slice is one parallel instance of the fragment.
type slice struct {
	id       string
	proc     *flow.Process
	counters flow.CounterMap
	mapper   *mapper.Mapper
	sinks    []records.Collector
	input    chan records.Record
}

func (s *slice) output() records.Sink {
	if len(s.sinks) == 1 {
		return s.sinks[0]
	}
	tee := make(records.Tee, len(s.sinks))
	for i, c := range s.sinks {
		tee[i] = c
	}
	return tee
}

// close releases the slice's collectors and mapper. The first error wins.
func (s *slice) close() error {
	var first error
	for _, c := range s.sinks {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.sinks = nil
	if s.mapper != nil {
		if err := s.mapper.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run executes j to completion.
func Run(ctx context.Context, j config.Job, o Options) (Result, error) {
	if issues := config.ValidateJob(j); config.HasErrors(issues) {
		return Result{}, invalid(issues)
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	res := Result{RunID: o.RunID, Counters: flow.CounterMap{}}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	name := jobName(j)
	rt := newRuntimeConfig(j, o)
	res.Slices = rt.parallelism
	log = log.With(zap.String("job", name), zap.String("run", res.RunID))
	start := time.Now()

	log.Info("run started",
		zap.Int("parallelism", rt.parallelism),
		zap.Int("buffer", rt.buffer),
		zap.String("source", j.Source.Tap.Kind),
		zap.Int("sinks", len(j.Sinks)))

	sourceDesc, err := schema.New(j.Source.Fields...)
	if err != nil {
		return res, errors.Wrapf(err, "source %s", j.Source.Name)
	}
	source, err := newTapFn(j.Source.Tap, sourceDesc)
	if err != nil {
		return res, errors.Wrapf(err, "source %s", j.Source.Name)
	}

	slices, err := openSlices(ctx, j, o, rt, log)
	if err != nil {
		return res, err
	}

	readCounters := flow.CounterMap{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := distribute(gctx, j.Properties, source, slices, readCounters, log)
		res.Read = n
		return err
	})
	for _, s := range slices {
		s := s
		g.Go(func() error {
			err := s.mapper.MapPartition(gctx, records.FromChan(s.input), s.output())
			if cerr := s.close(); err == nil && cerr != nil {
				err = errors.Wrapf(cerr, "slice %d: close sinks", s.proc.WorkerIndex())
			}
			return err
		})
	}
	err = g.Wait()

	res.Counters.Merge(readCounters)
	for _, s := range slices {
		res.Counters.Merge(s.counters)
	}
	res.Written = res.Counters.Get(mapper.SliceCounters, mapper.TuplesWritten)
	res.Elapsed = time.Since(start)
	for _, k := range res.Counters.Keys() {
		if k.Group == mapper.SliceCounters {
			continue
		}
		metrics.RecordCounter(name, k.Group, k.Name, res.Counters[k])
	}
	metrics.RecordSlices(name, int64(len(slices)))
	metrics.RecordStep(name, "job", err, res.Elapsed)

	fields := []zap.Field{
		zap.Int64("read", res.Read),
		zap.Int64("written", res.Written),
		zap.Int("slices", res.Slices),
		zap.Duration("elapsed", res.Elapsed.Truncate(time.Millisecond)),
	}
	if err != nil {
		log.Error("run failed", append(fields, zap.Error(err))...)
		return res, err
	}
	log.Info("run summary", fields...)
	return res, nil
}

// openSlices builds every slice and opens its sink collectors. Opening is
// sequential so table creation is not raced. On failure everything opened so
// far is released.
func openSlices(ctx context.Context, j config.Job, o Options, rt runtimeConfig, log *zap.Logger) ([]*slice, error) {
	frag := Fragment(j)
	slices := make([]*slice, 0, rt.parallelism)
	fail := func(err error) ([]*slice, error) {
		for _, s := range slices {
			_ = s.close()
		}
		return nil, err
	}

	var sinkTaps []flow.Tap
	for i := 0; i < rt.parallelism; i++ {
		s := &slice{id: uuid.NewString(), counters: flow.CounterMap{}}
		opts := []flow.Option{
			flow.WithCounters(s.counters),
			flow.WithLogger(log.With(zap.Int("worker", i), zap.String("slice", s.id))),
		}
		if o.Classes != nil {
			opts = append(opts, flow.WithClasses(o.Classes))
		}
		p, err := flow.New(i, rt.parallelism, j.Properties, opts...)
		if err != nil {
			return fail(err)
		}
		s.proc = p
		s.mapper = mapper.New(frag)
		slices = append(slices, s)
		if err := s.mapper.Open(p); err != nil {
			return fail(err)
		}

		if sinkTaps == nil {
			if sinkTaps, err = buildSinks(j, rt, s.mapper.Schema()); err != nil {
				return fail(err)
			}
		}
		for k, t := range sinkTaps {
			c, err := p.OpenForWrite(ctx, t)
			if err != nil {
				return fail(errors.Wrapf(err, "sink %s", j.Sinks[k].Name))
			}
			s.sinks = append(s.sinks, c)
		}
		s.input = make(chan records.Record, rt.buffer)
	}
	return slices, nil
}

func buildSinks(j config.Job, rt runtimeConfig, desc *schema.Descriptor) ([]flow.Tap, error) {
	taps := make([]flow.Tap, 0, len(j.Sinks))
	for _, b := range j.Sinks {
		cfg := b.Tap
		if rt.batchSize > 0 && !cfg.Options.Has("batch_size") {
			opts := make(config.Options, len(cfg.Options)+1)
			for k, v := range cfg.Options {
				opts[k] = v
			}
			opts["batch_size"] = rt.batchSize
			cfg.Options = opts
		}
		t, err := newTapFn(cfg, desc)
		if err != nil {
			return nil, errors.Wrapf(err, "sink %s", b.Name)
		}
		taps = append(taps, t)
	}
	return taps, nil
}

// distribute reads the source once and deals records round-robin to the
// slices. Source tap counters, such as rejected rows, land in counters.
// Every slice channel is closed when it returns.
func distribute(ctx context.Context, props map[string]string, source flow.Tap, slices []*slice, counters flow.CounterMap, log *zap.Logger) (int64, error) {
	defer func() {
		for _, s := range slices {
			close(s.input)
		}
	}()
	reader, err := flow.New(0, 1, props,
		flow.WithCounters(counters),
		flow.WithLogger(log.With(zap.String("role", "reader"))))
	if err != nil {
		return 0, err
	}
	it, err := reader.OpenForRead(ctx, source)
	if err != nil {
		return 0, errors.Wrapf(err, "open source %s", source.Identifier())
	}
	defer it.Close()

	var n int64
	for {
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(err, "read source %s", source.Identifier())
		}
		select {
		case slices[n%int64(len(slices))].input <- rec:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

func invalid(issues []config.Issue) error {
	var msgs []string
	for _, i := range issues {
		if i.Severity == config.SeverityError {
			msgs = append(msgs, i.Error())
		}
	}
	return errors.WithDetail(
		errors.Newf("invalid job: %s", strings.Join(msgs, "; ")),
		strconv.Itoa(len(msgs))+" error(s)")
}
