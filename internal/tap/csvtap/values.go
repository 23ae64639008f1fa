package csvtap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
)

// parse converts one CSV cell into the canonical value of k.
func parse(k schema.Kind, s string) (any, error) {
	switch k {
	case schema.KindByte, schema.KindShort, schema.KindInt, schema.KindLong:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Newf("invalid %s %q", k, s)
		}
		return k.Canonical(n)
	case schema.KindFloat, schema.KindDouble:
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return nil, errors.Newf("invalid %s %q", k, s)
		}
		return k.Canonical(f)
	case schema.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.Newf("invalid bool %q", s)
		}
		return b, nil
	case schema.KindChar:
		return k.Canonical(s)
	default:
		return s, nil
	}
}

// format renders a value of kind k as a CSV cell. nil is the empty cell.
// Chars and ints share the int32 representation, so k decides.
func format(k schema.Kind, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int32:
		if k == schema.KindChar {
			return string(x)
		}
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
