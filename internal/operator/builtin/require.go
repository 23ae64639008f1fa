package builtin

import (
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
)

// Require drops records whose arguments include a nil or empty-string value.
// Kept records are emitted unchanged; drops are counted as Require_Dropped.
type Require struct{ operator.Base }

func (*Require) Prepare(_ *flow.Process, call *operator.Call) error {
	return sameShape(ClassRequire, call)
}

func (*Require) Operate(p *flow.Process, call *operator.Call) error {
	args := call.Arguments()
	for i := 0; i < args.Len(); i++ {
		if v := args.At(i); v == nil || v == "" {
			if p.CountersInitialized() {
				_ = p.Increment(CounterGroup, "Require_Dropped", 1)
			}
			return nil
		}
	}
	return call.EmitRecord(args.Values())
}
