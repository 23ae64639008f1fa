package schema

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"math"
	"strings"

	"github.com/zeebo/xxh3"

	"flowbridge/internal/errors"
	"flowbridge/pkg/records"
)

// FieldComparator orders two values of one field. nil sorts first.
type FieldComparator interface {
	Compare(a, b any) int
}

// FieldComparatorFunc adapts a function to FieldComparator.
type FieldComparatorFunc func(a, b any) int

func (f FieldComparatorFunc) Compare(a, b any) int { return f(a, b) }

// Orderable is implemented by user-defined values with their own ordering.
type Orderable interface {
	CompareTo(other any) int
}

// ComparatorFor returns the ascending comparator used for fields of kind k.
func ComparatorFor(k Kind) FieldComparator {
	switch k {
	case KindString:
		return FieldComparatorFunc(compareStrings)
	case KindByte, KindShort, KindInt, KindLong, KindChar:
		return FieldComparatorFunc(compareInts)
	case KindFloat, KindDouble:
		return FieldComparatorFunc(compareFloats)
	default:
		return FieldComparatorFunc(CompareValues)
	}
}

func nilOrder(a, b any) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}
	return 0, false
}

func compareStrings(a, b any) int {
	if c, done := nilOrder(a, b); done {
		return c
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if ok1 && ok2 {
		return strings.Compare(sa, sb)
	}
	return CompareValues(a, b)
}

func compareInts(a, b any) int {
	if c, done := nilOrder(a, b); done {
		return c
	}
	ia, ok1 := toInt64(a)
	ib, ok2 := toInt64(b)
	if ok1 && ok2 {
		return cmp.Compare(ia, ib)
	}
	return CompareValues(a, b)
}

func compareFloats(a, b any) int {
	if c, done := nilOrder(a, b); done {
		return c
	}
	fa, ok1 := toFloat64(a)
	fb, ok2 := toFloat64(b)
	if ok1 && ok2 {
		return cmp.Compare(fa, fb)
	}
	return CompareValues(a, b)
}

// category ranks for values of different dynamic types
const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankTime
	rankOther
)

func rankOf(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case string:
		return rankString
	}
	if isNumber(v) {
		return rankNumber
	}
	if _, ok := isTime(v); ok {
		return rankTime
	}
	return rankOther
}

// CompareValues is the comparator for fields of unknown type. Values of the
// same category compare naturally (numbers numerically across widths);
// different categories order nil < bool < number < string < time < other.
// Other values use Orderable when available, else their generic encoding.
func CompareValues(a, b any) int {
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNil:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case rankNumber:
		ia, ok1 := toInt64(a)
		ib, ok2 := toInt64(b)
		if ok1 && ok2 {
			return cmp.Compare(ia, ib)
		}
		fa, _ := toFloat64(a)
		fb, _ := toFloat64(b)
		return cmp.Compare(fa, fb)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankTime:
		ta, _ := isTime(a)
		tb, _ := isTime(b)
		return ta.Compare(tb)
	}
	if o, ok := a.(Orderable); ok {
		return o.CompareTo(b)
	}
	ea, err1 := appendGeneric(nil, a)
	eb, err2 := appendGeneric(nil, b)
	if err1 != nil || err2 != nil {
		return 0
	}
	return bytes.Compare(ea, eb)
}

// --- composite comparator -------------------------------------------------------

// Comparator orders records on a subset of key fields, in key order,
// ascending. Hash is consistent with it: records that compare equal on the
// keys hash equal.
type Comparator struct {
	keys []int
	cmps []FieldComparator
}

// ComparatorBuilder assembles a Comparator field by field.
type ComparatorBuilder struct {
	d    *Descriptor
	keys []int
	cmps []FieldComparator
	err  error
}

// NewComparator starts a comparator over fields of d.
func (d *Descriptor) NewComparator() *ComparatorBuilder {
	return &ComparatorBuilder{d: d}
}

// Add appends field position i as the next key. A nil comparator declares a
// key without an ordering, which Build rejects.
func (b *ComparatorBuilder) Add(i int, c FieldComparator) *ComparatorBuilder {
	if b.err == nil && (i < 0 || i >= b.d.Arity()) {
		b.err = &errors.InvalidComparatorError{Reason: "key position out of range"}
	}
	b.keys = append(b.keys, i)
	if c != nil {
		b.cmps = append(b.cmps, c)
	}
	return b
}

// Build returns the comparator. It fails without keys or when a key lacks a
// comparator.
func (b *ComparatorBuilder) Build() (*Comparator, error) {
	switch {
	case b.err != nil:
		return nil, b.err
	case len(b.keys) == 0:
		return nil, &errors.InvalidComparatorError{Reason: "no key fields"}
	case len(b.cmps) != len(b.keys):
		return nil, &errors.InvalidComparatorError{Reason: "comparator count does not match key count"}
	}
	return &Comparator{
		keys: append([]int(nil), b.keys...),
		cmps: append([]FieldComparator(nil), b.cmps...),
	}, nil
}

// Comparator derives an ascending comparator over the named keys from their
// kinds, preserving the caller's key order.
func (d *Descriptor) Comparator(keys ...string) (*Comparator, error) {
	b := d.NewComparator()
	for _, k := range keys {
		i, err := d.FieldIndex(k)
		if err != nil {
			return nil, err
		}
		b.Add(i, ComparatorFor(d.kinds[i]))
	}
	return b.Build()
}

// Keys returns the key positions in comparison order.
func (c *Comparator) Keys() []int { return append([]int(nil), c.keys...) }

// Compare orders a and b on the key fields.
func (c *Comparator) Compare(a, b records.Record) int {
	for j, k := range c.keys {
		if r := c.cmps[j].Compare(a[k], b[k]); r != 0 {
			return r
		}
	}
	return 0
}

// Equal reports whether a and b agree on every key.
func (c *Comparator) Equal(a, b records.Record) bool { return c.Compare(a, b) == 0 }

// Hash returns the xxh3 hash of the key fields of rec, for partitioning.
func (c *Comparator) Hash(rec records.Record) uint64 {
	var buf [64]byte
	key := buf[:0]
	for _, k := range c.keys {
		key = AppendHashKey(key, rec[k])
	}
	return xxh3.Hash(key)
}

// AppendHashKey appends a canonical key encoding of v. Integers of every
// width and integral floats encode alike, matching CompareValues equality.
func AppendHashKey(dst []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(dst, 'n')
	case string:
		return appendString(append(dst, 's'), x)
	case bool:
		if x {
			return append(dst, 'b', 1)
		}
		return append(dst, 'b', 0)
	}
	if n, ok := toInt64(v); ok {
		return binary.BigEndian.AppendUint64(append(dst, 'i'), uint64(n))
	}
	if f, ok := toFloat64(v); ok {
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return binary.BigEndian.AppendUint64(append(dst, 'i'), uint64(int64(f)))
		}
		return binary.BigEndian.AppendUint64(append(dst, 'f'), math.Float64bits(f))
	}
	if t, ok := isTime(v); ok {
		return binary.BigEndian.AppendUint64(append(dst, 't'), uint64(t.UnixNano()))
	}
	enc, err := appendGeneric(nil, v)
	if err != nil {
		return append(dst, 'x')
	}
	dst = binary.AppendUvarint(append(dst, 'g'), uint64(len(enc)))
	return append(dst, enc...)
}
