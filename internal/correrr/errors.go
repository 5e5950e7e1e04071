// Package correrr defines the tagged error taxonomy described in spec §7.
// Callers compare kinds with errors.As, the same way the teacher repo
// wraps and compares sentinel-ish errors with fmt.Errorf("%w", ...).
package correrr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure in the correlation engine.
type Kind string

const (
	KindQueryParse      Kind = "query_parse"
	KindAdapterNotFound Kind = "adapter_not_found"
	KindAdapterExists   Kind = "adapter_exists"
	KindAdapter         Kind = "adapter"
	KindMemoryExceeded  Kind = "memory_exceeded"
	KindCancelled       Kind = "cancelled"
)

// AdapterSubKind further classifies a KindAdapter error.
type AdapterSubKind string

const (
	SubKindAuthRequired AdapterSubKind = "auth_required"
	SubKindTimeout      AdapterSubKind = "timeout"
	SubKindMaxRetries   AdapterSubKind = "max_retries"
	SubKindRemoteError  AdapterSubKind = "remote_error"
)

// Error is the engine's tagged error type. It wraps an optional underlying
// cause and carries structured position info for parse errors.
type Error struct {
	Kind    Kind
	SubKind AdapterSubKind // only meaningful when Kind == KindAdapter
	Message string
	Source  string // adapter/source name, when applicable

	// Parse-error position, populated only for KindQueryParse.
	Line     int
	Column   int
	Expected []string

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindQueryParse && (e.Line != 0 || e.Column != 0) {
		msg = fmt.Sprintf("%s (line %d, column %d)", msg, e.Line, e.Column)
	}
	if e.Source != "" {
		msg = fmt.Sprintf("%s [source=%s]", msg, e.Source)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is (or wraps) an *Error of the same Kind, so
// errors.Is(err, &correrr.Error{Kind: correrr.KindAdapterNotFound})
// compares by kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// QueryParseError builds a parse failure with position and the set of
// tokens the parser would have accepted at that point.
func QueryParseError(line, col int, expected []string, format string, args ...interface{}) *Error {
	e := newErr(KindQueryParse, format, args...)
	e.Line = line
	e.Column = col
	e.Expected = expected
	return e
}

// AdapterNotFound reports a query referencing an unregistered source.
func AdapterNotFound(name string) *Error {
	e := newErr(KindAdapterNotFound, "adapter not found: %s", name)
	e.Source = name
	return e
}

// AdapterExists reports a re-registration of an existing adapter name.
func AdapterExists(name string) *Error {
	e := newErr(KindAdapterExists, "adapter already registered: %s", name)
	e.Source = name
	return e
}

// AdapterFailure reports a transport/protocol failure surfaced by an adapter.
func AdapterFailure(source string, sub AdapterSubKind, cause error) *Error {
	e := &Error{
		Kind:    KindAdapter,
		SubKind: sub,
		Message: fmt.Sprintf("adapter %q failed: %s", source, sub),
		Source:  source,
		Cause:   cause,
	}
	return e
}

// MemoryExceeded reports the periodic sampler finding heap usage over budget.
func MemoryExceeded(usedMB, budgetMB int64) *Error {
	return newErr(KindMemoryExceeded, "memory usage %dMB exceeds budget %dMB", usedMB, budgetMB)
}

// Cancelled reports cancellation observed downstream.
func Cancelled(cause error) *Error {
	e := newErr(KindCancelled, "operation cancelled")
	e.Cause = cause
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
