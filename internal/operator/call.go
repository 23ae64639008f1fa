package operator

import (
	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// Emitter receives the records an operator emits.
type Emitter func(out records.Record) error

// Entry is the argument view of the record being operated on. The owning
// stage refills it for every record and invalidates it when Operate returns:
// operators must not retain an Entry or the slice returned by Values beyond
// one invocation. Use Copy to keep values.
type Entry struct {
	desc   *schema.Descriptor
	values records.Record
	valid  bool
}

// NewEntry allocates a view for records of d.
func NewEntry(d *schema.Descriptor) *Entry {
	return &Entry{desc: d, values: make(records.Record, d.Arity())}
}

// Schema describes the argument fields.
func (e *Entry) Schema() *schema.Descriptor { return e.desc }

// Len returns the argument count.
func (e *Entry) Len() int { return len(e.values) }

// Valid reports whether the view currently holds a record.
func (e *Entry) Valid() bool { return e.valid }

// At returns argument i.
func (e *Entry) At(i int) any { return e.values[i] }

// Get returns the named argument.
func (e *Entry) Get(name string) (any, error) {
	i, err := e.desc.FieldIndex(name)
	if err != nil {
		return nil, err
	}
	return e.values[i], nil
}

// Values returns the backing slice of the view. It is overwritten by the
// next record.
func (e *Entry) Values() records.Record { return e.values }

// Copy returns the arguments as a new record.
func (e *Entry) Copy() records.Record { return e.values.Copy() }

// Map returns the arguments keyed by field name, in a new map.
func (e *Entry) Map() map[string]any {
	m := make(map[string]any, len(e.values))
	for i, v := range e.values {
		m[e.desc.FieldName(i)] = v
	}
	return m
}

// Bind marks the view as holding a record.
func (e *Entry) Bind() { e.valid = true }

// Release clears the view once the operator returns.
func (e *Entry) Release() {
	clear(e.values)
	e.valid = false
}

// Call is the context of one stage's operator. It is created once per stage
// and reused for every record.
type Call struct {
	stage   string
	args    *Entry
	outputs *schema.Descriptor
	emit    Emitter

	// Context is operator-owned state that lives as long as the stage.
	Context any
}

// NewCall builds the call context of stage. outputs is the operator's
// declared result schema.
func NewCall(stage string, args *Entry, outputs *schema.Descriptor, emit Emitter) *Call {
	return &Call{stage: stage, args: args, outputs: outputs, emit: emit}
}

// Stage names the stage running the operator.
func (c *Call) Stage() string { return c.stage }

// Arguments returns the argument view of the current record.
func (c *Call) Arguments() *Entry { return c.args }

// ArgumentFields describes the arguments.
func (c *Call) ArgumentFields() *schema.Descriptor { return c.args.desc }

// OutputFields describes the records the operator is expected to emit.
func (c *Call) OutputFields() *schema.Descriptor { return c.outputs }

// Emit emits one output record built from values, which are copied.
func (c *Call) Emit(values ...any) error {
	return c.EmitRecord(records.Record(values))
}

// EmitRecord emits a copy of rec. Its arity must match OutputFields.
func (c *Call) EmitRecord(rec records.Record) error {
	if len(rec) != c.outputs.Arity() {
		return &errors.ArityMismatchError{What: "emit in stage " + c.stage, Want: c.outputs.Arity(), Got: len(rec)}
	}
	return c.emit(rec.Copy())
}
