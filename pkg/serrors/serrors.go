// Package serrors defines the semantic error kinds shared by the pipeline.
// A Kind is a sentinel; Error pairs a Kind with a message and an optional
// cause so that errors.Is matches either of them.
package serrors

import (
	"errors"
	"fmt"
)

// Kind is a marker interface implemented by all semantic error kinds created
// with NewKind.
type Kind interface {
	error
	isKind()
}

type kind struct{ s string }

func (k kind) Error() string { return k.s }
func (k kind) isKind()       {}

// NewKind creates a new semantic error kind with the provided name.
func NewKind(name string) Kind { return kind{s: name} }

var (
	// ErrConfigLoad marks a configuration or source list that cannot be read
	// at startup. It is fatal.
	ErrConfigLoad = NewKind("CONFIG_LOAD")
	// ErrSourceFetch marks a source that could not be retrieved after all
	// attempts. The source contributes nothing to the current cycle.
	ErrSourceFetch = NewKind("SOURCE_FETCH")
	// ErrArtifactIO marks a local open/read/write failure on a temporary or
	// output artifact.
	ErrArtifactIO = NewKind("ARTIFACT_IO")
	// ErrCleanupIO marks a failure while rewriting the output artifact at the
	// end of a cycle.
	ErrCleanupIO = NewKind("CLEANUP_IO")
)

// Error represents a semantic error carrying a kind, an optional wrapped
// error and an optional message.
//
// Error string formatting:
//   - If both msg and err are set: "<msg>: <err>"
//   - If only msg is set: "<msg>"
//   - If only err is set: "<err>"
//   - If neither set: the kind's Error() string.
type Error struct {
	kind Kind
	err  error
	msg  string
}

// With constructs a new semantic error with the given kind and message.
func With(k Kind, msgFmt string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(msgFmt, args...)}
}

// Wrap constructs a new semantic error with the given kind wrapping err.
func Wrap(k Kind, err error, msgFmt string, args ...any) *Error {
	return &Error{kind: k, err: err, msg: fmt.Sprintf(msgFmt, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	default:
		if e.kind != nil {
			return e.kind.Error()
		}

		return "unknown error"
	}
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Is matches against either the kind sentinel or the wrapped error.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return e == nil && target == nil
	}
	if e.kind != nil && errors.Is(e.kind, target) {
		return true
	}
	if e.err != nil && errors.Is(e.err, target) {
		return true
	}

	return false
}

// Kind returns the kind sentinel associated with this error, or nil.
func (e *Error) Kind() Kind {
	if e == nil {
		return nil
	}
	return e.kind
}

// KindOf returns the kind of the first *Error found in err's chain.
func KindOf(err error) Kind {
	var semantic *Error
	if errors.As(err, &semantic) {
		return semantic.Kind()
	}
	return nil
}
