// Package stage runs one operator of a pipeline fragment: it projects each
// incoming record into the operator's argument view, invokes the operator,
// and merges every emitted record with the original input before forwarding
// it downstream.
//
// A Runner moves UNOPENED -> OPEN -> CLOSED exactly once. Projection and
// merge plans are compiled by New, so selector and schema problems surface
// before any record flows.
package stage

import (
	"fmt"

	"go.uber.org/zap"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/fields"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// State of a Runner.
type State int

const (
	Unopened State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "UNOPENED"
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config describes one stage.
type Config struct {
	Name string

	// Input describes the records the stage receives.
	Input *schema.Descriptor

	Arguments fields.Selector

	// Outputs are the operator's declared result fields. Empty means the
	// operator emits records shaped like its arguments.
	Outputs []schema.Field

	Policy fields.Policy

	// Operator is a bound instance. When nil, Class is instantiated through
	// the worker context at Open.
	Operator operator.Operator
	Class    string

	// Options are handed to operators implementing operator.Configurable.
	Options config.Options
}

// Runner is one stage of a stream graph. It is not safe for concurrent use.
type Runner struct {
	name    string
	class   string
	options config.Options
	arity   int

	proj   *fields.Projector
	merger *fields.Merger
	outs   *schema.Descriptor

	op    operator.Operator
	entry *operator.Entry
	call  *operator.Call
	next  records.Sink
	proc  *flow.Process
	state State

	// current is the input the operator is working on; after the last
	// record it stays as the base for trailing output emitted at cleanup.
	current records.Record
}

// New compiles the stage described by cfg, forwarding merged output to next.
func New(cfg Config, next records.Sink) (*Runner, error) {
	if cfg.Input == nil {
		return nil, errors.Newf("stage %s: no input schema", cfg.Name)
	}
	if next == nil {
		return nil, errors.Newf("stage %s: no downstream sink", cfg.Name)
	}
	proj, err := fields.NewProjector(cfg.Input, cfg.Arguments)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s: arguments", cfg.Name)
	}
	outs := proj.Schema()
	if len(cfg.Outputs) > 0 {
		if outs, err = schema.New(cfg.Outputs...); err != nil {
			return nil, errors.Wrapf(err, "stage %s: outputs", cfg.Name)
		}
	}
	merger, err := fields.NewMerger(cfg.Input, proj.Positions(), outs, cfg.Policy)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s: merge", cfg.Name)
	}
	return &Runner{
		name:    cfg.Name,
		class:   cfg.Class,
		options: cfg.Options,
		arity:   cfg.Input.Arity(),
		proj:    proj,
		merger:  merger,
		outs:    outs,
		op:      cfg.Operator,
		next:    next,
	}, nil
}

// Name identifies the stage in errors and logs.
func (r *Runner) Name() string { return r.name }

// State reports the lifecycle state.
func (r *Runner) State() State { return r.state }

// Schema describes the records the stage forwards downstream.
func (r *Runner) Schema() *schema.Descriptor { return r.merger.Schema() }

// Arguments describes the operator's argument view.
func (r *Runner) Arguments() *schema.Descriptor { return r.proj.Schema() }

// Open resolves and prepares the operator. A failed Open leaves the stage
// unopened.
func (r *Runner) Open(p *flow.Process) (err error) {
	switch r.state {
	case Open:
		return errors.Wrapf(errors.ErrStageAlreadyOpen, "stage %s", r.name)
	case Closed:
		return errors.Wrapf(errors.ErrStageClosed, "stage %s", r.name)
	}

	op := r.op
	if op == nil {
		if op, err = r.instantiate(p); err != nil {
			return err
		}
	}
	if c, ok := op.(operator.Configurable); ok {
		if err := c.Configure(r.options); err != nil {
			return errors.Wrapf(err, "stage %s: configure %s", r.name, r.class)
		}
	}

	entry := operator.NewEntry(r.proj.Schema())
	call := operator.NewCall(r.name, entry, r.outs, r.forward)

	defer r.recoverInto(&err)
	if err := op.Prepare(p, call); err != nil {
		return r.fail(err)
	}
	r.op, r.entry, r.call, r.proc = op, entry, call, p
	r.state = Open
	p.Logger().Debug("stage open",
		zap.String("stage", r.name),
		zap.String("class", r.class),
		zap.Stringer("arguments", r.proj.Schema()),
		zap.Stringer("outgoing", r.Schema()),
		zap.String("merge", r.merger.Policy().String()),
	)
	return nil
}

func (r *Runner) instantiate(p *flow.Process) (operator.Operator, error) {
	if r.class == "" {
		return nil, &errors.ClassLoadError{Class: r.class, Cause: errors.Newf("stage %s has neither an operator nor a class", r.name)}
	}
	inst, err := p.Instantiate(r.class)
	if err != nil {
		return nil, err
	}
	op, ok := inst.(operator.Operator)
	if !ok {
		return nil, &errors.ClassLoadError{Class: r.class, Cause: errors.Newf("%T is not an operator", inst)}
	}
	return op, nil
}

// Process runs one record through the operator.
func (r *Runner) Process(rec records.Record) (err error) {
	switch r.state {
	case Unopened:
		return errors.Wrapf(errors.ErrStageNotOpen, "stage %s", r.name)
	case Closed:
		return errors.Wrapf(errors.ErrStageClosed, "stage %s", r.name)
	}
	if len(rec) != r.arity {
		return &errors.ArityMismatchError{What: "input of stage " + r.name, Want: r.arity, Got: len(rec)}
	}

	r.proj.ApplyInto(r.entry.Values(), rec)
	r.entry.Bind()
	r.current = rec
	defer r.entry.Release()
	defer r.recoverInto(&err)

	if err := r.op.Operate(r.proc, r.call); err != nil {
		return r.fail(err)
	}
	return nil
}

// Add makes the stage the sink of its upstream.
func (r *Runner) Add(rec records.Record) error { return r.Process(rec) }

// Close runs the operator's cleanup. Output emitted during cleanup is
// merged with the last processed input. Close is idempotent; closing an
// unopened stage only marks it closed.
func (r *Runner) Close() (err error) {
	if r.state != Open {
		r.state = Closed
		return nil
	}
	r.state = Closed
	defer func() { r.current = nil }()
	defer r.recoverInto(&err)

	if err := r.op.Cleanup(r.proc, r.call); err != nil {
		return r.fail(err)
	}
	return nil
}

// forward is the operator's emitter.
func (r *Runner) forward(out records.Record) error {
	merged, err := r.merger.Apply(r.current, out)
	if err != nil {
		return errors.Wrapf(err, "stage %s", r.name)
	}
	return r.next.Add(merged)
}

// fail wraps operator failures. Resource exhaustion and failures already
// attributed to a downstream stage pass through unchanged.
func (r *Runner) fail(err error) error {
	if errors.IsResourceExhausted(err) {
		return err
	}
	var oe *errors.OperatorExecutionError
	if errors.As(err, &oe) {
		return err
	}
	return &errors.OperatorExecutionError{Stage: r.name, Cause: err}
}

// recoverInto turns an operator panic into a stage failure. Resource
// exhaustion panics are re-raised.
func (r *Runner) recoverInto(err *error) {
	v := recover()
	if v == nil {
		return
	}
	if e, ok := v.(error); ok {
		if errors.IsResourceExhausted(e) {
			panic(v)
		}
		*err = r.fail(errors.Wrap(e, "panic"))
		return
	}
	*err = r.fail(errors.Newf("panic: %v", v))
}
