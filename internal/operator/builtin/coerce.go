package builtin

import (
	"strconv"
	"strings"
	"time"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
	"flowbridge/internal/schema"
)

// CounterGroup is the counter group builtin operators report rejects under.
const CounterGroup = "flowbridge.Builtin"

// Coerce converts string arguments into typed values following a per-field
// plan compiled once at Prepare. Empty strings become nil.
//
// The target of each field comes from options.types ("int", "float", "bool",
// "date", "text") or, when absent, from the declared output class. A value
// that fails to convert drops the record (on_error: drop, the default) or
// fails the stage (on_error: fail). Non-string values pass through.
type Coerce struct {
	types    map[string]string
	layout   string
	truthy   map[string]struct{}
	falsy    map[string]struct{}
	failFast bool

	plan []coercer
	vals []any
}

// coercer writes the converted value of s into dst and reports success.
type coercer func(dst *any, s string) bool

func (c *Coerce) Configure(opts config.Options) error {
	c.types = opts.StringMap("types")
	c.layout = opts.String("layout", "")
	c.truthy = lowerSet(opts.StringSlice("truthy"))
	c.falsy = lowerSet(opts.StringSlice("falsy"))
	switch mode := opts.String("on_error", "drop"); mode {
	case "drop":
	case "fail":
		c.failFast = true
	default:
		return errors.Newf("coerce: on_error %q must be drop or fail", mode)
	}
	return nil
}

func (c *Coerce) Prepare(_ *flow.Process, call *operator.Call) error {
	if err := sameShape(ClassCoerce, call); err != nil {
		return err
	}
	args, out := call.ArgumentFields(), call.OutputFields()
	c.plan = make([]coercer, args.Arity())
	for i := range c.plan {
		typ, ok := c.types[args.FieldName(i)]
		if !ok {
			typ = typeFor(out.ClassAt(i), out.KindAt(i))
		}
		co, err := c.compile(strings.ToLower(typ), out.KindAt(i))
		if err != nil {
			return errors.Wrapf(err, "coerce field %q", args.FieldName(i))
		}
		c.plan[i] = co
	}
	c.vals = make([]any, args.Arity())
	return nil
}

func (c *Coerce) Operate(p *flow.Process, call *operator.Call) error {
	args := call.Arguments()
	for i, co := range c.plan {
		v := args.At(i)
		s, isStr := v.(string)
		if !isStr {
			c.vals[i] = v
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			c.vals[i] = nil
			continue
		}
		if !co(&c.vals[i], s) {
			if c.failFast {
				return errors.Newf("coerce: field %q: cannot convert %q", args.Schema().FieldName(i), s)
			}
			if p.CountersInitialized() {
				_ = p.Increment(CounterGroup, "Coerce_Rejected", 1)
			}
			return nil
		}
	}
	return call.Emit(c.vals...)
}

func (c *Coerce) Cleanup(*flow.Process, *operator.Call) error { return nil }

func typeFor(class string, k schema.Kind) string {
	switch strings.ToLower(class) {
	case "date", "time", "time.time", "timestamp":
		return "date"
	}
	switch k {
	case schema.KindByte, schema.KindShort, schema.KindInt, schema.KindLong:
		return "int"
	case schema.KindFloat, schema.KindDouble:
		return "float"
	case schema.KindBool:
		return "bool"
	default:
		return "text"
	}
}

// compile builds the coercer of one column. Numeric results are narrowed to
// the canonical Go type of the declared output kind.
func (c *Coerce) compile(typ string, k schema.Kind) (coercer, error) {
	narrow := func(dst *any, v any) bool {
		if !k.Primitive() {
			*dst = v
			return true
		}
		cv, err := k.Canonical(v)
		if err != nil {
			return false
		}
		*dst = cv
		return true
	}

	switch typ {
	case "int", "integer":
		return func(dst *any, s string) bool {
			v, ok := toIntFast(s)
			return ok && narrow(dst, v)
		}, nil
	case "float", "double", "number":
		return func(dst *any, s string) bool {
			f, err := strconv.ParseFloat(s, 64)
			return err == nil && narrow(dst, f)
		}, nil
	case "bool", "boolean":
		custom := len(c.truthy) > 0 || len(c.falsy) > 0
		return func(dst *any, s string) bool {
			v, ok := toBoolFast(s, custom, c.truthy, c.falsy)
			if ok {
				*dst = v
			}
			return ok
		}, nil
	case "date":
		layout := c.layout
		czFast := layout == "" || layout == "02.01.2006"
		return func(dst *any, s string) bool {
			if t, ok := parseDate(s, layout, czFast); ok {
				*dst = t
				return true
			}
			return false
		}, nil
	case "text", "string", "":
		return func(dst *any, s string) bool {
			*dst = s
			return true
		}, nil
	default:
		return nil, errors.Newf("unknown coerce type %q", typ)
	}
}

// --- helpers ------------------------------------------------------------------

func lowerSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return m
}

// toIntFast parses integers and falls back to float parsing only when the
// field contains a '.', accepting integral values like "42.0".
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// toBoolFast resolves booleans with optional custom vocabularies. The default
// vocabulary includes the Czech "ano"/"ne".
func toBoolFast(s string, custom bool, truthy, falsy map[string]struct{}) (bool, bool) {
	ls := strings.ToLower(s)
	if custom {
		if _, ok := truthy[ls]; ok {
			return true, true
		}
		if _, ok := falsy[ls]; ok {
			return false, true
		}
		return false, false
	}
	switch ls {
	case "1", "t", "true", "yes", "y", "ano":
		return true, true
	case "0", "f", "false", "no", "n", "ne":
		return false, true
	default:
		return false, false
	}
}

func parseDate(s, layout string, czFast bool) (time.Time, bool) {
	if czFast {
		if t, ok := parseCZDate(s); ok {
			return t, true
		}
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if !czFast {
		return parseCZDate(s)
	}
	return time.Time{}, false
}

// parseCZDate parses "02.01.2006" (DD.MM.YYYY) without allocating.
func parseCZDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	d1, d0 := s[0]-'0', s[1]-'0'
	m1, m0 := s[3]-'0', s[4]-'0'
	y3, y2, y1, y0 := s[6]-'0', s[7]-'0', s[8]-'0', s[9]-'0'
	if d1 > 9 || d0 > 9 || m1 > 9 || m0 > 9 || y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 {
		return time.Time{}, false
	}
	day := int(d1)*10 + int(d0)
	mon := int(m1)*10 + int(m0)
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	if mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC), true
}
