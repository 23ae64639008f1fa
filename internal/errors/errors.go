// Package errors provides error handling for flowbridge.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping, hints)
// and defines the adapter's error taxonomy. Build-time failures (schema,
// selector, topology) and run-time failures (operator logic, context
// facilities) each have a dedicated type so callers can classify them with
// errors.As.
//
// Usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "open stage")
//	}
//
//	var opErr *errors.OperatorExecutionError
//	if errors.As(err, &opErr) {
//	    log.Printf("stage %s failed", opErr.Stage)
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
)

// Error inspection
var (
	Is          = crdb.Is
	IsAny       = crdb.IsAny
	As          = crdb.As
	Unwrap      = crdb.Unwrap
	UnwrapAll   = crdb.UnwrapAll
	GetAllHints = crdb.GetAllHints
)

// Sentinels for the stage state machine and for resource exhaustion.
var (
	// ErrStageNotOpen is returned by Process on a stage that was never opened.
	ErrStageNotOpen = New("stage not open")

	// ErrStageClosed is returned by Process or Open on a closed stage.
	ErrStageClosed = New("stage closed")

	// ErrStageAlreadyOpen is returned by a second Open.
	ErrStageAlreadyOpen = New("stage already open")

	// ErrResourceExhausted marks unrecoverable resource exhaustion. Errors
	// wrapping it are never re-wrapped by the adapter and abort the slice.
	ErrResourceExhausted = New("resource exhausted")
)

// IsResourceExhausted reports whether err is or wraps ErrResourceExhausted.
func IsResourceExhausted(err error) bool {
	return err != nil && Is(err, ErrResourceExhausted)
}
