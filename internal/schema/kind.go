package schema

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"flowbridge/internal/errors"
)

// Kind is the small tagged type enumeration a field class resolves to. It is
// resolved once per descriptor; per-record code switches on Kind, never on
// reflected types.
type Kind uint8

const (
	// KindAny is the "unknown type" sentinel: any comparable value.
	KindAny Kind = iota
	KindString
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBool
	KindChar
	// KindObject is a user-defined class known only by name.
	KindObject
)

var kindNames = [...]string{
	KindAny:    "any",
	KindString: "string",
	KindByte:   "byte",
	KindShort:  "short",
	KindInt:    "int",
	KindLong:   "long",
	KindFloat:  "float",
	KindDouble: "double",
	KindBool:   "bool",
	KindChar:   "char",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Primitive reports whether values of k have a fixed canonical Go type.
func (k Kind) Primitive() bool { return k != KindAny && k != KindObject }

// KindOf maps a field class name to its Kind. The empty class means "unknown"
// and maps to KindAny; names that are not a known primitive spelling map to
// KindObject. Matching is case-insensitive and accepts Go, SQL and JVM-style
// spellings so that pipelines written against either vocabulary resolve the
// same way.
func KindOf(class string) Kind {
	c := strings.ToLower(strings.TrimSpace(class))
	c = strings.TrimPrefix(c, "java.lang.")
	switch c {
	case "", "any", "comparable", "interface{}":
		return KindAny
	case "string", "text", "varchar":
		return KindString
	case "byte", "int8", "tinyint":
		return KindByte
	case "short", "int16", "smallint", "int2":
		return KindShort
	case "int", "integer", "int32", "int4":
		return KindInt
	case "long", "int64", "bigint":
		return KindLong
	case "float", "float32", "real":
		return KindFloat
	case "double", "float64", "double precision":
		return KindDouble
	case "bool", "boolean":
		return KindBool
	case "char", "character", "rune":
		return KindChar
	default:
		return KindObject
	}
}

// Canonical converts v to the canonical Go type of k:
//
//	string -> string    byte  -> int8     short  -> int16
//	int    -> int32     long  -> int64    float  -> float32
//	double -> float64   bool  -> bool     char   -> rune
//
// nil stays nil. Integer inputs of any width are accepted when they fit;
// KindAny and KindObject return v unchanged.
func (k Kind) Canonical(v any) (any, error) {
	if v == nil || !k.Primitive() {
		return v, nil
	}
	switch k {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindChar:
		switch c := v.(type) {
		case rune:
			return c, nil
		case string:
			if r, size := utf8.DecodeRuneInString(c); size == len(c) && size > 0 {
				return r, nil
			}
		}
	case KindByte, KindShort, KindInt, KindLong:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		lo, hi := intRange(k)
		if n < lo || n > hi {
			return nil, errors.Newf("value %d overflows %s", n, k)
		}
		switch k {
		case KindByte:
			return int8(n), nil
		case KindShort:
			return int16(n), nil
		case KindInt:
			return int32(n), nil
		default:
			return n, nil
		}
	case KindFloat, KindDouble:
		f, ok := toFloat64(v)
		if !ok {
			break
		}
		if k == KindFloat {
			return float32(f), nil
		}
		return f, nil
	}
	return nil, errors.Newf("cannot represent %T as %s", v, k)
}

func intRange(k Kind) (int64, int64) {
	switch k {
	case KindByte:
		return math.MinInt8, math.MaxInt8
	case KindShort:
		return math.MinInt16, math.MaxInt16
	case KindInt:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

// toInt64 widens any Go integer to int64. Unsigned values above MaxInt64 and
// non-integers report false.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// toFloat64 widens any Go number to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// isNumber reports whether v is any Go integer or float.
func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
