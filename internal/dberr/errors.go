// Package dberr defines the engine's error taxonomy: a single closed sum
// type in place of the scattered sentinel errors each subsystem would
// otherwise invent on its own (the teacher's pkg/wal/errors.go pattern,
// generalized database-wide per the Design Notes' "error taxonomy" guidance).
package dberr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error categories the engine distinguishes.
type Kind int

const (
	// NotFound: row/table/page missing.
	NotFound Kind = iota
	// InvalidInput: dim mismatch, non-orderable PK, PK update attempt, schema mismatch.
	InvalidInput
	// Conflict: first-committer-wins abort, deadlock.
	Conflict
	// Timeout: lock acquire, query wall-clock budget exhausted.
	Timeout
	// Corruption: header CRC, WAL CRC, unknown node type, oversized entry.
	Corruption
	// IO: underlying read/write failure.
	IO
	// Unsupported: SQL feature outside the supported surface, multi-statement input, complex joins.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	case Corruption:
		return "corruption"
	case IO:
		return "io"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the engine's single error type. Every subsystem returns *Error
// (or wraps one) so callers can errors.As to it and switch on Kind().
type Error struct {
	kind    Kind
	msg     string
	wrapped error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, wrapped: err}
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.wrapped }

func (e *Error) Kind() Kind { return e.kind }

// Is lets errors.Is match on Kind via a sentinel built with New(kind, "").
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.kind == t.kind
	}
	return false
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func InvalidInputf(format string, args ...interface{}) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Timeoutf(format string, args ...interface{}) *Error {
	return New(Timeout, fmt.Sprintf(format, args...))
}

func Corruptionf(format string, args ...interface{}) *Error {
	return New(Corruption, fmt.Sprintf(format, args...))
}

func IOf(format string, args ...interface{}) *Error {
	return New(IO, fmt.Sprintf(format, args...))
}

func Unsupportedf(format string, args ...interface{}) *Error {
	return New(Unsupported, fmt.Sprintf(format, args...))
}
