// Package prompterr defines the error kinds shared across promptd services.
//
// Callers match on kind with errors.Is/errors.As instead of inspecting
// message strings:
//
//	if prompterr.IsNotFound(err) {
//	    // absence of a definition is a caller error, not a daemon fault
//	}
package prompterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for control-flow decisions.
type Kind string

const (
	// KindNotFound indicates a prompt, gate, framework, or session id that
	// does not exist in the catalog or store.
	KindNotFound Kind = "not_found"

	// KindInvalidInput indicates a malformed command, missing argument, or
	// otherwise unusable request. Surfaced as a terminal guidance response.
	KindInvalidInput Kind = "invalid_input"

	// KindCollaboratorUnavailable indicates an injected dependency (store,
	// renderer, broker) failed. Never swallowed.
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"

	// KindInternal indicates a bug or invariant violation inside promptd.
	KindInternal Kind = "internal"
)

// Error is a structured error carrying a kind and the failing operation.
type Error struct {
	Kind      Kind
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Operation, e.Err.Error())
	}
	return e.Operation
}

// Unwrap allows errors.Is and errors.As to traverse the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two prompterr errors by kind, so sentinel-style checks work:
//
//	errors.Is(err, &Error{Kind: KindNotFound})
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, operation string, err error) *Error {
	return &Error{Kind: kind, Operation: operation, Err: err}
}

// NotFound creates a KindNotFound error for the named resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:      KindNotFound,
		Operation: fmt.Sprintf("%s %q not found", resource, id),
	}
}

// InvalidInput creates a KindInvalidInput error.
func InvalidInput(operation string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Operation: operation, Err: err}
}

// Unavailable creates a KindCollaboratorUnavailable error.
func Unavailable(operation string, err error) *Error {
	return &Error{Kind: KindCollaboratorUnavailable, Operation: operation, Err: err}
}

// Internal creates a KindInternal error.
func Internal(operation string, err error) *Error {
	return &Error{Kind: KindInternal, Operation: operation, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsInvalidInput reports whether err is a KindInvalidInput error.
func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalidInput
}
