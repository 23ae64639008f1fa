package fields

import (
	"strings"

	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// Policy decides how an operator's output fields combine with the input
// record.
type Policy uint8

const (
	// Replace keeps only the operator's output.
	Replace Policy = iota
	// Append keeps the input fields that were not arguments, followed by the
	// output.
	Append
	// Swap substitutes the argument positions of the input with the output
	// values, in argument order.
	Swap
)

var policyNames = [...]string{Replace: "replace", Append: "append", Swap: "swap"}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "unknown"
}

// ParsePolicy reads a policy name, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace", "results":
		return Replace, nil
	case "append", "all":
		return Append, nil
	case "swap":
		return Swap, nil
	}
	return 0, errors.Newf("unknown merge policy %q (want replace, append or swap)", s)
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Merger builds an outgoing record from the original input record and one
// operator output record.
type Merger struct {
	policy    Policy
	args      []int
	remainder []int
	isArg     []int // input position -> argument slot, or -1
	outArity  int
	out       *schema.Descriptor
}

// NewMerger compiles the merge of outputs into records of in. args are the
// input positions the operator consumed, as resolved by its Projector. The
// outgoing field names must be unique.
func NewMerger(in *schema.Descriptor, args []int, outputs *schema.Descriptor, policy Policy) (*Merger, error) {
	m := &Merger{
		policy:   policy,
		args:     append([]int(nil), args...),
		isArg:    make([]int, in.Arity()),
		outArity: outputs.Arity(),
	}
	for i := range m.isArg {
		m.isArg[i] = -1
	}
	for j, i := range args {
		if i < 0 || i >= in.Arity() {
			return nil, errors.Newf("argument position %d out of range for arity %d", i, in.Arity())
		}
		m.isArg[i] = j
	}
	for i := 0; i < in.Arity(); i++ {
		if m.isArg[i] < 0 {
			m.remainder = append(m.remainder, i)
		}
	}

	var fields []schema.Field
	switch policy {
	case Replace:
		fields = outputs.Fields()
	case Append:
		fields = make([]schema.Field, 0, len(m.remainder)+outputs.Arity())
		for _, i := range m.remainder {
			fields = append(fields, in.Field(i))
		}
		fields = append(fields, outputs.Fields()...)
	case Swap:
		if len(args) != outputs.Arity() {
			return nil, &errors.ArityMismatchError{What: "swap merge", Want: len(args), Got: outputs.Arity()}
		}
		fields = in.Fields()
		for j, i := range args {
			fields[i] = outputs.Field(j)
		}
	default:
		return nil, errors.Newf("unknown merge policy %d", policy)
	}
	out, err := schema.New(fields...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s merge", policy)
	}
	m.out = out
	return m, nil
}

// Policy returns the merge policy.
func (m *Merger) Policy() Policy { return m.policy }

// Schema returns the descriptor of outgoing records.
func (m *Merger) Schema() *schema.Descriptor { return m.out }

// Apply merges one operator output with the original input record. The
// result is a new record except under Replace, which returns out itself.
func (m *Merger) Apply(original, out records.Record) (records.Record, error) {
	if len(out) != m.outArity {
		return nil, &errors.ArityMismatchError{What: "operator output", Want: m.outArity, Got: len(out)}
	}
	switch m.policy {
	case Replace:
		return out, nil
	case Append:
		rec := make(records.Record, 0, len(m.remainder)+len(out))
		for _, i := range m.remainder {
			rec = append(rec, fieldOf(original, i))
		}
		return append(rec, out...), nil
	default:
		rec := make(records.Record, len(m.isArg))
		for i, slot := range m.isArg {
			if slot >= 0 {
				rec[i] = out[slot]
			} else {
				rec[i] = fieldOf(original, i)
			}
		}
		return rec, nil
	}
}

// fieldOf reads position i of original; a nil original (output emitted with
// no input in flight) reads as nil.
func fieldOf(original records.Record, i int) any {
	if i < len(original) {
		return original[i]
	}
	return nil
}
