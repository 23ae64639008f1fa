// Package fields compiles field selections against a schema into fixed index
// arrays, and builds the two per-stage artifacts that translate record shapes:
// the argument Projector and the outgoing Merger.
//
// Everything here resolves names once, at build time. The per-record methods
// only copy by position.
package fields

import (
	"strconv"
	"strings"

	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
)

type selKind uint8

const (
	selAll selKind = iota
	selNames
	selPositions
)

// Selector identifies a subset or reordering of a schema's fields: by name,
// by position (negative positions count from the end), or all fields. The
// zero value selects all fields.
type Selector struct {
	kind      selKind
	names     []string
	positions []int
}

// All selects every field in declaration order.
func All() Selector { return Selector{kind: selAll} }

// Names selects fields by name, in the given order.
func Names(names ...string) Selector {
	return Selector{kind: selNames, names: append([]string(nil), names...)}
}

// Positions selects fields by position, in the given order. -1 is the last
// field.
func Positions(pos ...int) Selector {
	return Selector{kind: selPositions, positions: append([]int(nil), pos...)}
}

// Parse reads a selector from its text form: "*" (or empty) for all fields,
// otherwise a comma separated list of names or positions. The two forms
// cannot be mixed.
func Parse(expr string) (Selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return All(), nil
	}
	parts := strings.Split(expr, ",")
	var names []string
	var pos []int
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return Selector{}, errors.Newf("selector %q: empty entry", expr)
		}
		if n, err := strconv.Atoi(p); err == nil {
			pos = append(pos, n)
		} else {
			names = append(names, p)
		}
	}
	switch {
	case len(names) > 0 && len(pos) > 0:
		return Selector{}, errors.Newf("selector %q mixes names and positions", expr)
	case len(pos) > 0:
		return Positions(pos...), nil
	}
	return Names(names...), nil
}

// FromList builds a selector from a decoded list. A nil or empty list, or
// the single entry "*", selects all fields.
func FromList(entries []string) (Selector, error) {
	if len(entries) == 0 || (len(entries) == 1 && strings.TrimSpace(entries[0]) == "*") {
		return All(), nil
	}
	return Parse(strings.Join(entries, ","))
}

// Len returns the number of selected fields, or -1 for all fields.
func (s Selector) Len() int {
	switch s.kind {
	case selNames:
		return len(s.names)
	case selPositions:
		return len(s.positions)
	}
	return -1
}

// IsAll reports whether s selects all fields.
func (s Selector) IsAll() bool { return s.kind == selAll }

func (s Selector) String() string {
	switch s.kind {
	case selNames:
		return strings.Join(s.names, ",")
	case selPositions:
		parts := make([]string, len(s.positions))
		for i, p := range s.positions {
			parts[i] = strconv.Itoa(p)
		}
		return strings.Join(parts, ",")
	}
	return "*"
}

// Resolve compiles s against d into a fixed index array. Unknown names and
// out of range positions fail with UnknownFieldError; a field selected twice
// fails with DuplicateFieldError.
func (s Selector) Resolve(d *schema.Descriptor) ([]int, error) {
	switch s.kind {
	case selAll:
		idx := make([]int, d.Arity())
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	case selNames:
		idx := make([]int, 0, len(s.names))
		for _, n := range s.names {
			i, err := d.FieldIndex(n)
			if err != nil {
				return nil, err
			}
			idx = append(idx, i)
		}
		return idx, checkDistinct(d, idx)
	default:
		idx := make([]int, 0, len(s.positions))
		for _, p := range s.positions {
			i := p
			if i < 0 {
				i += d.Arity()
			}
			if i < 0 || i >= d.Arity() {
				return nil, &errors.UnknownFieldError{Field: "#" + strconv.Itoa(p), Fields: d.Names()}
			}
			idx = append(idx, i)
		}
		return idx, checkDistinct(d, idx)
	}
}

func checkDistinct(d *schema.Descriptor, idx []int) error {
	seen := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		if _, dup := seen[i]; dup {
			return &errors.DuplicateFieldError{Field: d.FieldName(i)}
		}
		seen[i] = struct{}{}
	}
	return nil
}

// MarshalYAML and UnmarshalYAML let job files write selectors as a list or
// a single string.
func (s Selector) MarshalYAML() (any, error) {
	switch s.kind {
	case selNames:
		return s.names, nil
	case selPositions:
		return s.positions, nil
	}
	return "*", nil
}

func (s *Selector) UnmarshalYAML(unmarshal func(any) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		sel, err := FromList(list)
		if err != nil {
			return err
		}
		*s = sel
		return nil
	}
	var one string
	if err := unmarshal(&one); err != nil {
		return errors.Wrap(err, "selector must be a string or a list")
	}
	sel, err := Parse(one)
	if err != nil {
		return err
	}
	*s = sel
	return nil
}
