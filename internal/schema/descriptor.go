// Package schema describes the shape of positional records: field names, their
// declared classes, and the kinds those classes resolve to. A Descriptor is
// the record type metadata handed to the host engine; it derives per-field
// serializers and composite comparators on demand.
//
// Classes are known only by name when a pipeline is built, so they are
// resolved once into a small Kind enumeration (see KindOf) and cached on the
// descriptor. Nothing on the per-record path inspects types by reflection.
package schema

import (
	"strings"

	"flowbridge/internal/errors"
)

// Field declares one named field and its value class. An empty Class means
// the type is unknown and any comparable value is accepted.
type Field struct {
	Name  string `json:"name" yaml:"name"`
	Class string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Descriptor is an immutable record schema:
//
//	len(names) == len(classes) == len(kinds) == arity
//
// Name lookup is total over the declared names and fails otherwise.
type Descriptor struct {
	names   []string
	classes []string
	kinds   []Kind
	index   map[string]int
	sers    []FieldSerializer
}

// New builds a Descriptor from an ordered field list. Names must be non-empty
// and unique.
func New(fields ...Field) (*Descriptor, error) {
	d := &Descriptor{
		names:   make([]string, len(fields)),
		classes: make([]string, len(fields)),
		kinds:   make([]Kind, len(fields)),
		index:   make(map[string]int, len(fields)),
		sers:    make([]FieldSerializer, len(fields)),
	}
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, errors.Newf("field %d has an empty name", i)
		}
		if _, dup := d.index[f.Name]; dup {
			return nil, &errors.DuplicateFieldError{Field: f.Name}
		}
		d.names[i] = f.Name
		d.classes[i] = f.Class
		d.kinds[i] = KindOf(f.Class)
		d.index[f.Name] = i
		d.sers[i] = serializerFor(d.kinds[i])
	}
	return d, nil
}

// MustNew is New that panics on error. It is meant for static schemas in
// tests and examples.
func MustNew(fields ...Field) *Descriptor {
	d, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return d
}

// FromNames builds a Descriptor from parallel name and class slices. A nil
// classes slice declares every field as unknown.
func FromNames(names, classes []string) (*Descriptor, error) {
	if classes != nil && len(classes) != len(names) {
		return nil, &errors.ArityMismatchError{What: "schema classes", Want: len(names), Got: len(classes)}
	}
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i].Name = n
		if classes != nil {
			fields[i].Class = classes[i]
		}
	}
	return New(fields...)
}

// Arity returns the number of fields.
func (d *Descriptor) Arity() int { return len(d.names) }

// FieldIndex returns the position of the named field.
func (d *Descriptor) FieldIndex(name string) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return -1, &errors.UnknownFieldError{Field: name, Fields: d.Names()}
	}
	return i, nil
}

// Has reports whether name is declared.
func (d *Descriptor) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// FieldName returns the name at position i. It panics if i is out of range.
func (d *Descriptor) FieldName(i int) string { return d.names[i] }

// ClassAt returns the declared class at position i as written.
func (d *Descriptor) ClassAt(i int) string { return d.classes[i] }

// KindAt returns the resolved kind at position i.
func (d *Descriptor) KindAt(i int) Kind { return d.kinds[i] }

// Field returns the declaration at position i.
func (d *Descriptor) Field(i int) Field { return Field{Name: d.names[i], Class: d.classes[i]} }

// Names returns a copy of the field names in order.
func (d *Descriptor) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Fields returns a copy of the declarations in order.
func (d *Descriptor) Fields() []Field {
	out := make([]Field, len(d.names))
	for i := range d.names {
		out[i] = d.Field(i)
	}
	return out
}

// FlatField locates a named field for a host key expression. Offset is added
// to the field's position, for descriptors nested inside a wider record.
type FlatField struct {
	Position int
	Kind     Kind
}

// FlatField resolves a field name into its flat position and kind.
func (d *Descriptor) FlatField(name string, offset int) (FlatField, error) {
	i, err := d.FieldIndex(name)
	if err != nil {
		return FlatField{}, err
	}
	return FlatField{Position: offset + i, Kind: d.kinds[i]}, nil
}

// Select returns the descriptor of the given positions, in the given order.
// Positions must be in range and distinct.
func (d *Descriptor) Select(positions []int) (*Descriptor, error) {
	fields := make([]Field, len(positions))
	for j, p := range positions {
		if p < 0 || p >= len(d.names) {
			return nil, errors.Newf("position %d out of range for arity %d", p, len(d.names))
		}
		fields[j] = d.Field(p)
	}
	return New(fields...)
}

// Equal reports whether d and o declare the same names and classes in the
// same order.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil || len(d.names) != len(o.names) {
		return false
	}
	for i := range d.names {
		if d.names[i] != o.names[i] || d.classes[i] != o.classes[i] {
			return false
		}
	}
	return true
}

// String renders the descriptor as "[name:class, ...]", with "any" for
// unknown classes.
func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, n := range d.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		b.WriteByte(':')
		if d.classes[i] == "" {
			b.WriteString(KindAny.String())
		} else {
			b.WriteString(d.classes[i])
		}
	}
	b.WriteByte(']')
	return b.String()
}
