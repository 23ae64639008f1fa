// Package operator defines the single capability every pipeline operator
// implements, and the per-stage call context handed to it.
//
// A stage calls Prepare once when it opens, Operate once per input record,
// and Cleanup once when it closes. Operators emit zero or more output records
// through the Call; Cleanup may still emit trailing output.
package operator

import (
	"flowbridge/internal/config"
	"flowbridge/internal/flow"
)

// Operator is the pipeline operator capability.
type Operator interface {
	Prepare(p *flow.Process, call *Call) error
	Operate(p *flow.Process, call *Call) error
	Cleanup(p *flow.Process, call *Call) error
}

// Configurable operators receive the node options once, before Prepare.
type Configurable interface {
	Configure(opts config.Options) error
}

// Base provides no-op Prepare and Cleanup for embedding.
type Base struct{}

func (Base) Prepare(*flow.Process, *Call) error { return nil }
func (Base) Cleanup(*flow.Process, *Call) error { return nil }

// Func adapts a stateless per-record function to Operator.
type Func func(p *flow.Process, call *Call) error

func (f Func) Prepare(*flow.Process, *Call) error      { return nil }
func (f Func) Operate(p *flow.Process, call *Call) error { return f(p, call) }
func (f Func) Cleanup(*flow.Process, *Call) error      { return nil }
