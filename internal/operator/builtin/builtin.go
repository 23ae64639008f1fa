// Package builtin contains the operators available to every job by class
// name: identity, expr, coerce, normalize, require and dedup.
//
// Each registers itself with flow.Default at init, so any binary importing
// this package can instantiate them through flow.Process.Instantiate.
package builtin

import (
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
)

// Class names.
const (
	ClassIdentity  = "identity"
	ClassExpr      = "expr"
	ClassCoerce    = "coerce"
	ClassNormalize = "normalize"
	ClassRequire   = "require"
	ClassDedup     = "dedup"
)

func init() {
	flow.RegisterClass(ClassIdentity, func() any { return &Identity{} })
	flow.RegisterClass(ClassExpr, func() any { return &Expr{} })
	flow.RegisterClass(ClassCoerce, func() any { return &Coerce{} })
	flow.RegisterClass(ClassNormalize, func() any { return &Normalize{} })
	flow.RegisterClass(ClassRequire, func() any { return &Require{} })
	flow.RegisterClass(ClassDedup, func() any { return &Dedup{} })
}

// sameShape fails unless the operator's outputs mirror its arguments, which
// is what every per-value rewriting operator here emits.
func sameShape(class string, call *operator.Call) error {
	in, out := call.ArgumentFields().Arity(), call.OutputFields().Arity()
	if in != out {
		return &errors.ArityMismatchError{What: class + " outputs in stage " + call.Stage(), Want: in, Got: out}
	}
	return nil
}

// Identity emits its arguments unchanged.
type Identity struct{ operator.Base }

func (*Identity) Prepare(_ *flow.Process, call *operator.Call) error {
	return sameShape(ClassIdentity, call)
}

func (*Identity) Operate(_ *flow.Process, call *operator.Call) error {
	return call.EmitRecord(call.Arguments().Values())
}
