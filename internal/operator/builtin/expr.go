package builtin

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
)

// Expr computes one expression per declared output field. Expressions see
// the arguments by field name and the worker properties as props.
//
// Options:
//
//	expressions: {output-field: expression}
//	filter:      optional boolean expression; records where it is false are dropped
type Expr struct {
	sources map[string]string
	filter  string

	programs []*vm.Program
	keep     *vm.Program
	env      map[string]any
	values   []any
}

func (e *Expr) Configure(opts config.Options) error {
	e.sources = opts.StringMap("expressions")
	e.filter = opts.String("filter", "")
	return nil
}

func (e *Expr) Prepare(p *flow.Process, call *operator.Call) error {
	out := call.OutputFields()
	e.programs = make([]*vm.Program, out.Arity())
	for i := range e.programs {
		name := out.FieldName(i)
		src, ok := e.sources[name]
		if !ok {
			return errors.WithHintf(errors.Newf("expr: no expression for output %q", name),
				"add %q under options.expressions", name)
		}
		prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
		if err != nil {
			return errors.Wrapf(err, "expr: compile %q", name)
		}
		e.programs[i] = prog
	}
	if e.filter != "" {
		prog, err := expr.Compile(e.filter, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return errors.Wrap(err, "expr: compile filter")
		}
		e.keep = prog
	}

	props := make(map[string]string, len(p.PropertyKeys()))
	for _, k := range p.PropertyKeys() {
		props[k], _ = p.Property(k)
	}
	e.env = map[string]any{"props": props}
	e.values = make([]any, out.Arity())
	return nil
}

func (e *Expr) Operate(_ *flow.Process, call *operator.Call) error {
	args := call.Arguments()
	for i := 0; i < args.Len(); i++ {
		e.env[args.Schema().FieldName(i)] = args.At(i)
	}
	if e.keep != nil {
		ok, err := expr.Run(e.keep, e.env)
		if err != nil {
			return errors.Wrap(err, "expr: filter")
		}
		if !ok.(bool) {
			return nil
		}
	}
	for i, prog := range e.programs {
		v, err := expr.Run(prog, e.env)
		if err != nil {
			return errors.Wrapf(err, "expr: evaluate %q", call.OutputFields().FieldName(i))
		}
		e.values[i] = v
	}
	return call.Emit(e.values...)
}

func (e *Expr) Cleanup(*flow.Process, *operator.Call) error {
	e.programs, e.keep, e.env = nil, nil, nil
	return nil
}
