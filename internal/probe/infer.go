package probe

import (
	"strconv"
	"strings"
	"time"
)

// Inferred column types.
const (
	typeText      = "text"
	typeInteger   = "integer"
	typeBoolean   = "boolean"
	typeReal      = "real"
	typeDate      = "date"
	typeTimestamp = "timestamp"
)

// dateLayouts are tried in order; DMY comes before MDY.
var dateLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006/01/02",
	"20060102",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02T15:04:05Z0700",
}

// inferTypes returns one inferred type per column.
func inferTypes(n int, rows [][]string) []string {
	cols := make([][]string, n)
	for _, row := range rows {
		for i := 0; i < n && i < len(row); i++ {
			cols[i] = append(cols[i], row[i])
		}
	}
	types := make([]string, n)
	for i := range types {
		types[i] = inferColumn(cols[i])
	}
	return types
}

// inferColumn picks the narrowest type every non-empty value satisfies.
// Integers win over booleans, so 0/1 columns are integers.
func inferColumn(values []string) string {
	vals := nonEmptyTrimmed(values)
	switch {
	case len(vals) == 0:
		return typeText
	case allMatch(vals, isInt):
		return typeInteger
	case allMatch(vals, isBool):
		return typeBoolean
	case allMatch(vals, isFloat):
		return typeReal
	case bestLayout(vals, dateLayouts) != "":
		return typeDate
	case allMatch(vals, isTimestamp):
		return typeTimestamp
	}
	return typeText
}

// bestLayout returns the first layout parsing every value, or "".
func bestLayout(vals []string, layouts []string) string {
	if len(vals) == 0 {
		return ""
	}
	for _, l := range layouts {
		if allMatch(vals, func(s string) bool {
			_, err := time.Parse(l, s)
			return err == nil
		}) {
			return l
		}
	}
	return ""
}

func nonEmptyTrimmed(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n", "ano", "ne":
		return true
	}
	return false
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isTimestamp(s string) bool {
	for _, l := range timestampLayouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}
