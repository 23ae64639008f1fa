// Package graph builds the runnable chain of stages of one pipeline fragment
// and drives records through it.
//
// A fragment has exactly one source boundary, at least one sink boundary and
// an ordered list of operator nodes. Each stage forwards into the next; the
// last one forwards into the external collector. Records are pushed through
// synchronously, one at a time, without buffering between stages.
package graph

import (
	"context"
	"io"
	"strconv"

	"go.uber.org/zap"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/fields"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
	"flowbridge/internal/schema"
	"flowbridge/internal/stage"
	"flowbridge/pkg/records"
)

// Boundary is a named edge of the fragment. Source boundaries declare the
// fields of the incoming records; sink fields are informational.
type Boundary struct {
	Name   string
	Fields []schema.Field
}

// Node is one operator of the fragment.
type Node struct {
	Name      string
	Arguments fields.Selector
	Outputs   []schema.Field
	Policy    fields.Policy
	Operator  operator.Operator
	Class     string
	Options   config.Options
}

// Fragment is the compact description of the work one slice runs.
type Fragment struct {
	Name    string
	Sources []Boundary
	Sinks   []Boundary
	Nodes   []Node
}

// Graph is the built chain of one slice. It is single-use.
type Graph struct {
	name   string
	proc   *flow.Process
	source *schema.Descriptor
	stages []*stage.Runner
	head   records.Sink
	out    *records.Count
	read   int64
}

// link lets a stage be built before the stage it forwards into.
type link struct{ next records.Sink }

func (l *link) Add(rec records.Record) error { return l.next.Add(rec) }

// Build validates the topology of f and compiles one stage per node. All
// schema and selector errors surface here.
func Build(proc *flow.Process, f Fragment, collector records.Sink) (*Graph, error) {
	if len(f.Sources) != 1 {
		return nil, &errors.TopologyError{Fragment: f.Name, Reason: "exactly one source is required"}
	}
	if len(f.Sinks) == 0 {
		return nil, &errors.TopologyError{Fragment: f.Name, Reason: "at least one sink is required"}
	}
	if collector == nil {
		return nil, errors.Newf("graph %s: no collector", f.Name)
	}
	source, err := schema.New(f.Sources[0].Fields...)
	if err != nil {
		return nil, errors.Wrapf(err, "graph %s: source %s", f.Name, f.Sources[0].Name)
	}

	g := &Graph{
		name:   f.Name,
		proc:   proc,
		source: source,
		out:    &records.Count{Next: collector},
	}

	in := source
	var prev *link
	for i, n := range f.Nodes {
		name := n.Name
		if name == "" {
			name = defaultName(i, n)
		}
		l := &link{}
		r, err := stage.New(stage.Config{
			Name:      name,
			Input:     in,
			Arguments: n.Arguments,
			Outputs:   n.Outputs,
			Policy:    n.Policy,
			Operator:  n.Operator,
			Class:     n.Class,
			Options:   n.Options,
		}, l)
		if err != nil {
			return nil, errors.Wrapf(err, "graph %s", f.Name)
		}
		if prev == nil {
			g.head = r
		} else {
			prev.next = r
		}
		prev = l
		g.stages = append(g.stages, r)
		in = r.Schema()
	}
	if prev == nil {
		g.head = g.out
	} else {
		prev.next = g.out
	}
	return g, nil
}

func defaultName(i int, n Node) string {
	class := n.Class
	if class == "" {
		class = "operator"
	}
	return class + "#" + strconv.Itoa(i)
}

// Schema describes the records handed to the collector.
func (g *Graph) Schema() *schema.Descriptor {
	if len(g.stages) == 0 {
		return g.source
	}
	return g.stages[len(g.stages)-1].Schema()
}

// Source describes the records the graph consumes.
func (g *Graph) Source() *schema.Descriptor { return g.source }

// Stages returns the stages in chain order.
func (g *Graph) Stages() []*stage.Runner { return append([]*stage.Runner(nil), g.stages...) }

// Read is the number of records pulled from the source.
func (g *Graph) Read() int64 { return g.read }

// Written is the number of records handed to the collector.
func (g *Graph) Written() int64 { return g.out.N }

// Prepare opens the stages upstream to downstream.
func (g *Graph) Prepare() error {
	for _, s := range g.stages {
		if err := s.Open(g.proc); err != nil {
			return err
		}
	}
	g.proc.Logger().Debug("graph prepared", zap.String("fragment", g.name), zap.Int("stages", len(g.stages)))
	return nil
}

// Run pulls every record from it and pushes it through the chain. The host
// context is checked between records.
func (g *Graph) Run(ctx context.Context, it records.Iterator) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "graph %s: read", g.name)
		}
		g.read++
		if err := g.head.Add(rec); err != nil {
			return err
		}
	}
}

// Cleanup closes the stages upstream to downstream, so each stage's
// trailing output reaches stages that are still open. Every stage is
// closed; the first error is returned.
//
// The order is not the reverse teardown a reader might expect. Closing
// downstream first would leave records emitted from an upstream Cleanup
// with nowhere to go, so it must stay upstream first.
func (g *Graph) Cleanup() error {
	var first error
	for _, s := range g.stages {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
