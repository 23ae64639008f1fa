// Package probe drafts a job from a CSV sample: header names are normalized
// into field identifiers, column types are inferred from the sampled rows and
// typed columns get a coerce stage. The draft is meant to be edited.
package probe

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/fields"
	"flowbridge/internal/operator/builtin"
	"flowbridge/internal/schema"
)

// DefaultSampleBytes is read from the source when Options.SampleBytes is 0.
const DefaultSampleBytes = 64 << 10

// maxRows caps the sampled data rows.
const maxRows = 150000

// Options tune a probe.
type Options struct {
	// Name becomes the job and source name; "probe" when empty.
	Name string
	// Path is written into the source tap.
	Path        string
	Comma       rune
	SampleBytes int
}

// Source is anything that can be opened for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// CSV reads a sample from src and drafts a job for it.
func CSV(ctx context.Context, src Source, opt Options) (config.Job, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return config.Job{}, errors.Wrap(err, "probe")
	}
	defer rc.Close()

	n := opt.SampleBytes
	if n <= 0 {
		n = DefaultSampleBytes
	}
	sample, err := io.ReadAll(io.LimitReader(rc, int64(n)))
	if err != nil {
		return config.Job{}, errors.Wrap(err, "probe: read sample")
	}
	return FromSample(sample, opt)
}

// FromSample drafts a job from raw CSV bytes.
func FromSample(sample []byte, opt Options) (config.Job, error) {
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	if opt.Name == "" {
		opt.Name = "probe"
	}
	// Drop a trailing partial line.
	if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
		sample = sample[:i+1]
	}
	headers, rows := readSample(sample, opt.Comma)
	if len(headers) == 0 {
		return config.Job{}, errors.New("probe: sample has no header row")
	}

	types := inferTypes(len(headers), rows)
	layout := majorityLayout(rows, types)

	name := NormalizeFieldName(opt.Name)
	headerMap := make(map[string]string, len(headers))
	src := make([]schema.Field, len(headers))
	seen := make(map[string]int, len(headers))
	var typed []string
	var outputs []schema.Field
	coerceTypes := make(map[string]string)

	for i, h := range headers {
		fn := truncateFieldName(NormalizeFieldName(h))
		if c := seen[fn]; c > 0 {
			fn += "_" + strconv.Itoa(c)
		}
		seen[fn]++
		headerMap[strings.TrimSpace(h)] = fn
		src[i] = schema.Field{Name: fn, Class: "string"}

		class, ctype := classFor(types[i])
		if ctype == "" {
			continue
		}
		typed = append(typed, fn)
		outputs = append(outputs, schema.Field{Name: fn, Class: class})
		coerceTypes[fn] = ctype
	}

	j := config.Job{
		Job: name,
		Source: config.Boundary{
			Name:   name,
			Fields: src,
			Tap: config.Tap{
				Kind: "csv",
				Path: opt.Path,
				Options: config.Options{
					"has_header": true,
					"comma":      string(opt.Comma),
					"header_map": headerMap,
				},
			},
		},
		Sinks: []config.Boundary{{
			Name: name + "_out",
			Tap:  config.Tap{Kind: "csv", Path: name + "_out/"},
		}},
	}
	if len(typed) > 0 {
		opts := config.Options{"types": coerceTypes}
		if layout != "" {
			opts["layout"] = layout
		}
		j.Operators = append(j.Operators, config.Operator{
			Name:      "coerce",
			Class:     builtin.ClassCoerce,
			Arguments: fields.Names(typed...),
			Outputs:   outputs,
			Merge:     fields.Swap,
			Options:   opts,
		})
	}
	return j, nil
}

// readSample parses up to maxRows rows. Malformed rows and rows whose width
// differs from the header are skipped.
func readSample(data []byte, comma rune) ([]string, [][]string) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var headers []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil || len(rec) == 0 {
			continue
		}
		rec[0] = strings.TrimPrefix(rec[0], "\uFEFF")
		headers = rec
		break
	}

	var rows [][]string
	for len(rows) < maxRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) != len(headers) {
			continue
		}
		rows = append(rows, rec)
	}
	return headers, rows
}

// classFor maps an inferred type to a field class and a coerce type. Text
// and timestamp columns stay strings.
func classFor(inferred string) (class, coerceType string) {
	switch inferred {
	case typeInteger:
		return "long", "int"
	case typeReal:
		return "double", "float"
	case typeBoolean:
		return "bool", "bool"
	case typeDate:
		return "date", "date"
	default:
		return "string", ""
	}
}

// NormalizeFieldName turns header text into a lower-case ASCII identifier:
// accents are stripped, space, dash and dot become one underscore and
// anything else outside [a-z0-9_] is dropped. It returns "col" for an empty
// result.
func NormalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

// truncateFieldName keeps identifiers within the 63 byte Postgres limit,
// preserving the first 10 and last 53 bytes.
func truncateFieldName(s string) string {
	if len(s) > 63 {
		return s[:10] + s[len(s)-53:]
	}
	return s
}

// majorityLayout picks the date layout matching the most date columns. Ties
// go to the layout listed first.
func majorityLayout(rows [][]string, types []string) string {
	votes := make(map[string]int)
	for col, t := range types {
		if t != typeDate {
			continue
		}
		if l := bestLayout(column(rows, col), dateLayouts); l != "" {
			votes[l]++
		}
	}
	if len(votes) == 0 {
		return ""
	}
	layouts := make([]string, 0, len(votes))
	for l := range votes {
		layouts = append(layouts, l)
	}
	sort.SliceStable(layouts, func(i, k int) bool {
		if votes[layouts[i]] != votes[layouts[k]] {
			return votes[layouts[i]] > votes[layouts[k]]
		}
		return layoutRank(layouts[i]) < layoutRank(layouts[k])
	})
	return layouts[0]
}

func column(rows [][]string, col int) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[col])
	}
	return nonEmptyTrimmed(out)
}

func layoutRank(layout string) int {
	for i, l := range dateLayouts {
		if l == layout {
			return i
		}
	}
	return len(dateLayouts)
}
