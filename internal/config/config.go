// Package config defines the job file model for flowbridge: one source
// boundary, an ordered chain of operators, and one or more sink boundaries,
// plus runtime knobs and free-form properties handed to every worker.
//
// Job files are YAML. JSON is valid YAML, so JSON job files load unchanged.
//
// Example (trimmed):
//
//	job: bump-ages
//	source:
//	  name: people
//	  fields: [{name: name, type: string}, {name: age, type: int}]
//	  tap: {kind: csv, path: people.csv, options: {has_header: true}}
//	operators:
//	  - name: bump
//	    class: expr
//	    arguments: [age]
//	    outputs: [{name: age, type: int}]
//	    merge: swap
//	    options: {expressions: {age: "age + 1"}}
//	sinks:
//	  - name: out
//	    tap: {kind: csv, path: out}
package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"flowbridge/internal/errors"
	"flowbridge/internal/fields"
	"flowbridge/internal/schema"
)

// Job is the top-level object of a job file.
type Job struct {
	// Job names the run in logs and metrics.
	Job string `yaml:"job" json:"job"`

	// Source is the single boundary records are read from.
	Source Boundary `yaml:"source" json:"source"`

	// Operators is the ordered stage chain applied to every source record.
	Operators []Operator `yaml:"operators" json:"operators"`

	// Sinks receive every outgoing record.
	Sinks []Boundary `yaml:"sinks" json:"sinks"`

	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`

	// Properties are exposed read-only to operators through the worker
	// context.
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// Boundary is a named edge of the job bound to a storage tap.
type Boundary struct {
	Name string `yaml:"name" json:"name"`

	// Fields declares the record schema. It is required on the source; sinks
	// take the schema of the last stage.
	Fields []schema.Field `yaml:"fields" json:"fields"`

	Tap Tap `yaml:"tap" json:"tap"`
}

// Tap configures a storage endpoint.
type Tap struct {
	// Kind selects the implementation: csv, jsonl, recfile, sqlite, mysql, sqlserver,
	// postgres.
	Kind string `yaml:"kind" json:"kind"`

	// Path is the file or directory of file based taps.
	Path string `yaml:"path" json:"path"`

	// DSN and Table address database taps.
	DSN   string `yaml:"dsn" json:"dsn"`
	Table string `yaml:"table" json:"table"`

	// Columns maps record fields to table columns or CSV headers by position.
	// Empty means the field names themselves.
	Columns []string `yaml:"columns" json:"columns"`

	// Options is interpreted by the tap implementation.
	Options Options `yaml:"options" json:"options"`
}

// Operator declares one stage.
type Operator struct {
	Name string `yaml:"name" json:"name"`

	// Class is the registered operator class to instantiate on each worker.
	Class string `yaml:"class" json:"class"`

	// Arguments selects the input fields handed to the operator. Omitted
	// means all fields.
	Arguments fields.Selector `yaml:"arguments" json:"arguments"`

	// Outputs declares the operator's result fields. Omitted means the
	// argument fields, unchanged in name and type.
	Outputs []schema.Field `yaml:"outputs" json:"outputs"`

	// Merge is the output merge policy; replace when omitted.
	Merge fields.Policy `yaml:"merge" json:"merge"`

	Options Options `yaml:"options" json:"options"`
}

// RuntimeConfig controls local execution.
type RuntimeConfig struct {
	// Parallelism is the number of worker slices; 0 means the process
	// default.
	Parallelism int `yaml:"parallelism" json:"parallelism"`

	// ChannelBuffer is the per-worker input queue length.
	ChannelBuffer int `yaml:"channel_buffer" json:"channel_buffer"`

	// BatchSize is the row count per bulk write of database sinks.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// Decode reads a job from r. Unknown keys are rejected.
func Decode(r io.Reader) (Job, error) {
	var j Job
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&j); err != nil {
		if errors.Is(err, io.EOF) {
			return Job{}, errors.New("empty job file")
		}
		return Job{}, errors.Wrap(err, "decode job")
	}
	return j, nil
}

// Load reads and decodes the job file at path.
func Load(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, errors.Wrapf(err, "read job %s", path)
	}
	j, err := Decode(bytes.NewReader(b))
	if err != nil {
		return Job{}, errors.Wrapf(err, "job %s", path)
	}
	return j, nil
}
