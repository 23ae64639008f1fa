package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flowbridge/internal/fields"
	"flowbridge/internal/schema"
)

func validJob() Job {
	return Job{
		Job: "j",
		Source: Boundary{
			Name:   "in",
			Fields: []schema.Field{{Name: "name", Class: "string"}, {Name: "age", Class: "int"}},
			Tap:    Tap{Kind: "csv", Path: "in.csv"},
		},
		Operators: []Operator{{
			Name:      "bump",
			Class:     "expr",
			Arguments: fields.Names("age"),
			Outputs:   []schema.Field{{Name: "age", Class: "int"}},
			Merge:     fields.Swap,
			Options:   Options{"expressions": map[string]any{"age": "age + 1"}},
		}},
		Sinks: []Boundary{{Name: "out", Tap: Tap{Kind: "postgres", DSN: "postgres://x", Table: "t"}}},
	}
}

func findIssue(issues []Issue, path string) (Issue, bool) {
	for _, i := range issues {
		if i.Path == path {
			return i, true
		}
	}
	return Issue{}, false
}

/*
TestValidateJob walks the linter through one broken aspect at a time and
checks that the issue lands at the expected path with the expected severity.
*/
func TestValidateJob(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(j *Job)
		path     string
		severity IssueSeverity
	}{
		{"missing job name", func(j *Job) { j.Job = " " }, "job", SeverityError},
		{"no source fields", func(j *Job) { j.Source.Fields = nil }, "source.fields", SeverityError},
		{"duplicate source field", func(j *Job) {
			j.Source.Fields = append(j.Source.Fields, schema.Field{Name: "age"})
		}, "source.fields[2].name", SeverityError},
		{"source tap kind", func(j *Job) { j.Source.Tap.Kind = "" }, "source.tap.kind", SeverityError},
		{"unknown tap kind", func(j *Job) { j.Source.Tap.Kind = "kafka" }, "source.tap.kind", SeverityWarning},
		{"file tap path", func(j *Job) { j.Source.Tap.Path = "" }, "source.tap.path", SeverityError},
		{"db tap dsn", func(j *Job) { j.Sinks[0].Tap.DSN = "" }, "sinks[0].tap.dsn", SeverityError},
		{"db tap table", func(j *Job) { j.Sinks[0].Tap.Table = "" }, "sinks[0].tap.table", SeverityError},
		{"no sinks", func(j *Job) { j.Sinks = nil }, "sinks", SeverityError},
		{"sink fields ignored", func(j *Job) {
			j.Sinks[0].Fields = []schema.Field{{Name: "x"}}
		}, "sinks[0].fields", SeverityWarning},
		{"duplicate sink", func(j *Job) { j.Sinks = append(j.Sinks, j.Sinks[0]) }, "sinks[1].name", SeverityError},
		{"no operators", func(j *Job) { j.Operators = nil }, "operators", SeverityWarning},
		{"empty class", func(j *Job) { j.Operators[0].Class = "" }, "operators[0].class", SeverityError},
		{"unknown class", func(j *Job) {
			j.Operators[0].Class = "com.acme.Mine"
		}, "operators[0].class", SeverityWarning},
		{"swap arity", func(j *Job) {
			j.Operators[0].Outputs = append(j.Operators[0].Outputs, schema.Field{Name: "x"})
		}, "operators[0].outputs", SeverityError},
		{"expr without expressions", func(j *Job) { j.Operators[0].Options = nil }, "operators[0].options.expressions", SeverityError},
		{"dedup policy", func(j *Job) {
			j.Operators[0] = Operator{Class: "dedup", Options: Options{"policy": "keep-middle"}}
		}, "operators[0].options.policy", SeverityError},
		{"coerce without types", func(j *Job) {
			j.Operators[0] = Operator{Class: "coerce"}
		}, "operators[0].options.types", SeverityWarning},
		{"duplicate operator name", func(j *Job) {
			j.Operators = append(j.Operators, j.Operators[0])
		}, "operators[1].name", SeverityWarning},
		{"negative parallelism", func(j *Job) { j.Runtime.Parallelism = -1 }, "runtime.parallelism", SeverityError},
		{"negative buffer", func(j *Job) { j.Runtime.ChannelBuffer = -1 }, "runtime.channel_buffer", SeverityError},
		{"negative batch", func(j *Job) { j.Runtime.BatchSize = -1 }, "runtime.batch_size", SeverityError},
	}

	assert.Empty(t, ValidateJob(validJob()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := validJob()
			tt.mutate(&j)
			issues := ValidateJob(j)

			iss, ok := findIssue(issues, tt.path)
			if assert.True(t, ok, "no issue at %s in %v", tt.path, issues) {
				assert.Equal(t, tt.severity, iss.Severity)
			}
			assert.Equal(t, tt.severity == SeverityError, HasErrors(issues))
		})
	}
}

func TestIssue_Error(t *testing.T) {
	i := Issue{Severity: SeverityWarning, Path: "operators", Message: "none"}
	assert.Equal(t, "warning at operators: none", i.Error())
}
