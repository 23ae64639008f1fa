package errors

import (
	"fmt"
	"strings"
)

// UnknownFieldError reports a field name that is not declared by a schema.
type UnknownFieldError struct {
	Field  string
	Fields []string // declared names of the schema that was searched
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%q not a field of this record type [%s]", e.Field, strings.Join(e.Fields, ", "))
}

// DuplicateFieldError reports a field name declared twice in one schema or
// selected twice by one selector.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("field %q declared more than once", e.Field)
}

// ArityMismatchError reports two field counts that must agree but do not,
// e.g. a SWAP merge whose argument and output arities differ, or a record
// handed to a serializer built for a different arity.
type ArityMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("%s: arity mismatch: want %d, got %d", e.What, e.Want, e.Got)
}

// InvalidComparatorError reports a comparator that cannot be built.
type InvalidComparatorError struct {
	Reason string
}

func (e *InvalidComparatorError) Error() string {
	return "invalid comparator: " + e.Reason
}

// TopologyError reports a pipeline fragment this adapter cannot run.
type TopologyError struct {
	Fragment string
	Reason   string
}

func (e *TopologyError) Error() string {
	if e.Fragment == "" {
		return "topology: " + e.Reason
	}
	return fmt.Sprintf("topology %s: %s", e.Fragment, e.Reason)
}

// OperatorExecutionError wraps a failure raised by operator logic. Stage
// identifies the stage that was running.
type OperatorExecutionError struct {
	Stage string
	Cause error
}

func (e *OperatorExecutionError) Error() string {
	return fmt.Sprintf("operator failed in stage %s: %v", e.Stage, e.Cause)
}

func (e *OperatorExecutionError) Unwrap() error { return e.Cause }

// ClassLoadError reports a class name that cannot be resolved to a type.
type ClassLoadError struct {
	Class string
	Cause error
}

func (e *ClassLoadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("unable to load class: %s", e.Class)
	}
	return fmt.Sprintf("unable to load class: %s: %v", e.Class, e.Cause)
}

func (e *ClassLoadError) Unwrap() error { return e.Cause }

// CounterUnavailableError is returned when a counter is incremented on a
// worker context that has no counter backend bound.
type CounterUnavailableError struct {
	Group string
	Name  string
}

func (e *CounterUnavailableError) Error() string {
	return fmt.Sprintf("counter %s.%s: no counter backend bound", e.Group, e.Name)
}

// IsBuildError reports whether err belongs to the build-time part of the
// taxonomy (schema, selector, topology, comparator).
func IsBuildError(err error) bool {
	var (
		uf *UnknownFieldError
		df *DuplicateFieldError
		am *ArityMismatchError
		ic *InvalidComparatorError
		te *TopologyError
	)
	return As(err, &uf) || As(err, &df) || As(err, &am) || As(err, &ic) || As(err, &te)
}

// IsAdapterError reports whether err is any error of the taxonomy. Such
// errors are passed through to the host unchanged.
func IsAdapterError(err error) bool {
	if IsBuildError(err) {
		return true
	}
	var (
		oe *OperatorExecutionError
		cl *ClassLoadError
		cu *CounterUnavailableError
	)
	return As(err, &oe) || As(err, &cl) || As(err, &cu) ||
		IsAny(err, ErrStageNotOpen, ErrStageClosed, ErrStageAlreadyOpen)
}
