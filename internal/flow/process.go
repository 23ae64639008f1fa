// Package flow is the worker execution context: the per-task facade the host
// engine binds before a slice runs. It exposes the worker's position in the
// parallel job, read-only properties, monotonic counters, a class factory and
// the entry points for opening storage taps.
//
// A Process belongs to exactly one worker slice and is not safe for
// concurrent use.
package flow

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"flowbridge/internal/errors"
	"flowbridge/pkg/records"
)

// Config is a flat set of string properties.
type Config map[string]string

// Process is one worker's execution context.
type Process struct {
	worker    int
	workers   int
	props     Config
	counters  Counters
	classes   *Registry
	status    func(string)
	keepAlive func()
	log       *zap.Logger
}

// Option configures a Process.
type Option func(*Process)

// WithCounters binds a counter backend. Without one, Increment fails with
// CounterUnavailableError.
func WithCounters(c Counters) Option { return func(p *Process) { p.counters = c } }

// WithClasses sets the registry Instantiate resolves class names against.
// The default is the package-level registry.
func WithClasses(r *Registry) Option { return func(p *Process) { p.classes = r } }

// WithLogger sets the logger handed to stages and taps.
func WithLogger(l *zap.Logger) Option { return func(p *Process) { p.log = l } }

// WithStatus installs the host's status reporter.
func WithStatus(f func(string)) Option { return func(p *Process) { p.status = f } }

// WithKeepAlive installs the host's liveness callback.
func WithKeepAlive(f func()) Option { return func(p *Process) { p.keepAlive = f } }

// New builds the context of worker index of count. Properties are copied.
func New(index, count int, props Config, opts ...Option) (*Process, error) {
	if count <= 0 || index < 0 || index >= count {
		return nil, errors.Newf("invalid worker position %d of %d", index, count)
	}
	p := &Process{
		worker:  index,
		workers: count,
		props:   make(Config, len(props)),
		classes: Default,
		log:     zap.NewNop(),
	}
	for k, v := range props {
		p.props[k] = v
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p, nil
}

// Null returns the context of a single standalone worker with no properties
// and no counter backend.
func Null() *Process {
	p, _ := New(0, 1, nil)
	return p
}

// WorkerIndex is this worker's 0-based position among WorkerCount workers.
func (p *Process) WorkerIndex() int { return p.worker }

// WorkerCount is the parallelism of the running job.
func (p *Process) WorkerCount() int { return p.workers }

// Property looks up a configuration value.
func (p *Process) Property(key string) (string, bool) {
	v, ok := p.props[key]
	return v, ok
}

// PropertyOr returns the value of key, or def when it is absent.
func (p *Process) PropertyOr(key, def string) string {
	if v, ok := p.props[key]; ok {
		return v
	}
	return def
}

// PropertyKeys returns the property names, sorted. The slice is a copy.
func (p *Process) PropertyKeys() []string {
	keys := make([]string, 0, len(p.props))
	for k := range p.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Increment adds delta to the counter group/name. Counters only grow, so a
// negative delta is rejected.
func (p *Process) Increment(group, name string, delta int64) error {
	if p.counters == nil {
		return &errors.CounterUnavailableError{Group: group, Name: name}
	}
	if delta < 0 {
		return errors.Newf("counter %s.%s: negative increment %d", group, name, delta)
	}
	p.counters.Increment(group, name, delta)
	return nil
}

// CountersInitialized reports whether a counter backend is bound.
func (p *Process) CountersInitialized() bool { return p.counters != nil }

// KeepAlive signals liveness to the host. It is a no-op without a callback.
func (p *Process) KeepAlive() {
	if p.keepAlive != nil {
		p.keepAlive()
	}
}

// SetStatus reports a free-form status line to the host.
func (p *Process) SetStatus(status string) {
	if p.status != nil {
		p.status(status)
	}
}

// Logger returns the worker's logger, annotated with its position.
func (p *Process) Logger() *zap.Logger {
	return p.log.With(zap.Int("worker", p.worker), zap.Int("workers", p.workers))
}

// Instantiate builds a new instance of the named class. The empty name yields
// nil without error.
func (p *Process) Instantiate(class string) (any, error) {
	if class == "" {
		return nil, nil
	}
	return p.classes.New(class)
}

// OpenForRead opens tap as a record source for this worker.
func (p *Process) OpenForRead(ctx context.Context, tap Tap) (records.Iterator, error) {
	it, err := tap.OpenForRead(ctx, p)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for read", tap.Identifier())
	}
	return it, nil
}

// OpenForWrite opens tap as a record sink for this worker.
func (p *Process) OpenForWrite(ctx context.Context, tap Tap) (records.Collector, error) {
	c, err := tap.OpenForWrite(ctx, p)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for write", tap.Identifier())
	}
	return c, nil
}

// CopyWith returns a context for the same worker whose properties are cfg.
// Counters, classes and host callbacks are shared with p.
func (p *Process) CopyWith(cfg Config) *Process {
	cp := *p
	cp.props = make(Config, len(cfg))
	for k, v := range cfg {
		cp.props[k] = v
	}
	return &cp
}
