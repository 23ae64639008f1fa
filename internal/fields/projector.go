package fields

import (
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// Projector extracts an operator's argument fields from a full record.
type Projector struct {
	idx      []int
	identity bool
	args     *schema.Descriptor
}

// NewProjector resolves sel against in. Selecting all fields yields the
// identity projector.
func NewProjector(in *schema.Descriptor, sel Selector) (*Projector, error) {
	idx, err := sel.Resolve(in)
	if err != nil {
		return nil, err
	}
	if sel.IsAll() {
		return &Projector{idx: idx, identity: true, args: in}, nil
	}
	args, err := in.Select(idx)
	if err != nil {
		return nil, err
	}
	return &Projector{idx: idx, args: args}, nil
}

// Positions returns the selected input positions in argument order.
func (p *Projector) Positions() []int { return append([]int(nil), p.idx...) }

// Schema returns the descriptor of the argument record.
func (p *Projector) Schema() *schema.Descriptor { return p.args }

// Identity reports whether the projector selects every field in order.
func (p *Projector) Identity() bool { return p.identity }

// Apply returns the argument record of full. The identity projector returns
// full itself.
func (p *Projector) Apply(full records.Record) records.Record {
	if p.identity {
		return full
	}
	out := make(records.Record, len(p.idx))
	for j, i := range p.idx {
		out[j] = full[i]
	}
	return out
}

// ApplyInto writes the argument values of full into dst, which must have the
// projector's arity, and returns dst.
func (p *Projector) ApplyInto(dst, full records.Record) records.Record {
	if p.identity {
		copy(dst, full)
		return dst
	}
	for j, i := range p.idx {
		dst[j] = full[i]
	}
	return dst
}
