package config

// This file adds a lightweight linter for Job values. It performs static
// checks over a decoded Job and returns the issues (errors and warnings) for
// the CLI to print. Schema resolution is left to graph construction; the
// linter only catches what can be seen without building anything.

import (
	"fmt"
	"strings"

	"flowbridge/internal/fields"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding worth surfacing that does not block
	// execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single lint finding. Path is a dotted path into the job
// (e.g. "operators[1].class").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	fileTapKinds = map[string]struct{}{"csv": {}, "jsonl": {}, "recfile": {}}
	dbTapKinds   = map[string]struct{}{"sqlite": {}, "mysql": {}, "sqlserver": {}, "postgres": {}}

	knownClasses = map[string]struct{}{
		"identity":  {},
		"expr":      {},
		"coerce":    {},
		"normalize": {},
		"require":   {},
		"dedup":     {},
	}
)

// ValidateJob lints j. It does not mutate the job.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateOperators(j.Operators)...)

	if len(j.Sinks) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sinks",
			Message:  "at least one sink is required",
		})
	}
	seen := map[string]struct{}{}
	for i, s := range j.Sinks {
		path := fmt.Sprintf("sinks[%d]", i)
		if len(s.Fields) > 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".fields",
				Message:  "sink fields are ignored; sinks take the schema of the last operator",
			})
		}
		if _, dup := seen[s.Name]; dup && s.Name != "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("duplicate sink name %q", s.Name),
			})
		}
		seen[s.Name] = struct{}{}
		issues = append(issues, validateTap(path+".tap", s.Tap)...)
	}

	issues = append(issues, validateRuntime(j.Runtime)...)
	return issues
}

func validateSource(b Boundary) []Issue {
	var issues []Issue
	if len(b.Fields) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.fields",
			Message:  "source must declare its fields",
		})
	}
	names := map[string]struct{}{}
	for i, f := range b.Fields {
		path := fmt.Sprintf("source.fields[%d]", i)
		if strings.TrimSpace(f.Name) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "field name must not be empty"})
			continue
		}
		if _, dup := names[f.Name]; dup {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: fmt.Sprintf("duplicate field %q", f.Name)})
		}
		names[f.Name] = struct{}{}
	}
	return append(issues, validateTap("source.tap", b.Tap)...)
}

func validateTap(path string, t Tap) []Issue {
	var issues []Issue
	kind := strings.TrimSpace(t.Kind)
	if kind == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  "tap kind must not be empty",
		})
	}

	_, isFile := fileTapKinds[kind]
	_, isDB := dbTapKinds[kind]
	switch {
	case isFile:
		if strings.TrimSpace(t.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".path",
				Message:  fmt.Sprintf("%s tap requires a non-empty path", kind),
			})
		}
	case isDB:
		if strings.TrimSpace(t.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".dsn",
				Message:  fmt.Sprintf("%s tap requires a dsn", kind),
			})
		}
		if strings.TrimSpace(t.Table) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".table",
				Message:  fmt.Sprintf("%s tap requires a table", kind),
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unknown tap kind %q; ensure a matching implementation is registered", kind),
		})
	}
	return issues
}

func validateOperators(ops []Operator) []Issue {
	var issues []Issue
	if len(ops) == 0 {
		return append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "operators",
			Message:  "no operators configured; source records are written as-is",
		})
	}

	names := map[string]struct{}{}
	for i, op := range ops {
		path := fmt.Sprintf("operators[%d]", i)
		if op.Name != "" {
			if _, dup := names[op.Name]; dup {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path + ".name",
					Message:  fmt.Sprintf("duplicate operator name %q makes errors ambiguous", op.Name),
				})
			}
			names[op.Name] = struct{}{}
		}

		class := strings.TrimSpace(op.Class)
		if class == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".class",
				Message:  "operator class must not be empty",
			})
			continue
		}
		if _, ok := knownClasses[class]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".class",
				Message:  fmt.Sprintf("unknown operator class %q; ensure it is registered", class),
			})
		}

		// Swap arity can be checked here when both sides are spelled out.
		if op.Merge == fields.Swap && len(op.Outputs) > 0 && !op.Arguments.IsAll() {
			if n := op.Arguments.Len(); n != len(op.Outputs) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".outputs",
					Message:  fmt.Sprintf("swap merge needs one output per argument: %d arguments, %d outputs", n, len(op.Outputs)),
				})
			}
		}

		switch class {
		case "expr":
			if len(op.Options.StringMap("expressions")) == 0 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".options.expressions",
					Message:  "expr operator needs at least one expression",
				})
			}
		case "coerce":
			if len(op.Options.StringMap("types")) == 0 {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path + ".options.types",
					Message:  "coerce operator has no types; values pass through as-is",
				})
			}
		case "dedup":
			switch p := op.Options.String("policy", "keep-first"); p {
			case "keep-first", "keep-last":
			default:
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".options.policy",
					Message:  fmt.Sprintf("dedup policy %q must be keep-first or keep-last", p),
				})
			}
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Parallelism < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.parallelism",
			Message:  "parallelism must not be negative",
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	return issues
}
