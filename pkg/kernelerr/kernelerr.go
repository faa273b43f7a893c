// Package kernelerr defines the structured, kind-tagged error type every
// kernel package returns.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind identifies what an error signals to the caller, not its Go type.
type Kind string

const (
	// Validation: inputs to a public operation are ill-formed.
	Validation Kind = "validation"
	// NotFound: a referenced Identifier does not exist in the store.
	NotFound Kind = "not_found"
	// DeadlockGuard: ApplySync invoked from inside an async handler on the
	// bridge loop.
	DeadlockGuard Kind = "deadlock_guard"
	// Adapter: the LLM adapter failed.
	Adapter Kind = "adapter"
	// Tool: a tool invocation raised, timed out, or returned a structured
	// error.
	Tool Kind = "tool"
	// Handler: an event handler raised during Apply.
	Handler Kind = "handler"
	// Cancelled: cooperative cancellation.
	Cancelled Kind = "cancelled"
)

// Error is the structured error type returned by every kernel package.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "VersionManager.RevertTo"
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, kernelerr.New(kernelerr.NotFound, "", "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an *Error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error around a cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Sentinel values for errors.Is matching purely on Kind.
var (
	ErrValidation    = &Error{Kind: Validation}
	ErrNotFound      = &Error{Kind: NotFound}
	ErrDeadlockGuard = &Error{Kind: DeadlockGuard}
	ErrAdapter       = &Error{Kind: Adapter}
	ErrTool          = &Error{Kind: Tool}
	ErrHandler       = &Error{Kind: Handler}
	ErrCancelled     = &Error{Kind: Cancelled}
)

// Of reports the Kind of err, if it (or something it wraps) is a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
