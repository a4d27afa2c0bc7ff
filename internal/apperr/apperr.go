// Package apperr defines the error-kind taxonomy shared by every membria
// component (§7 of the design spec). Authoritative errors are surfaced to
// the caller verbatim; recoverable errors are logged and swallowed at the
// enrichment boundaries (context composer, behavior chains).
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-layer translation (JSON-RPC code,
// HTTP status) and for the retry policy.
type Kind string

const (
	InvalidArgument  Kind = "invalid_argument"
	NotFound         Kind = "not_found"
	IllegalTransition Kind = "illegal_transition"
	AlreadyFinalized Kind = "already_finalized"
	Conflict         Kind = "conflict"
	TransientBackend Kind = "transient_backend"
	PermanentBackend Kind = "permanent_backend"
	Cancelled        Kind = "cancelled"
	Internal         Kind = "internal"
)

// Error wraps an underlying cause with a Kind and free-form context.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// State, when non-empty, carries the offending current state for
	// IllegalTransition errors so the caller can see why the transition
	// was rejected.
	State string
}

func (e *Error) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s: %s (state=%s)", e.Kind, e.Message, e.State)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, apperr.New(Kind, "")) style kind comparisons.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Transition(current, format string, args ...any) *Error {
	return &Error{Kind: IllegalTransition, Message: fmt.Sprintf(format, args...), State: current}
}

// KindOf extracts the Kind of err, defaulting to Internal for unrecognized
// errors so that nothing ever leaks an un-kinded error past the transport
// boundary without at least being classified as Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Recoverable reports whether err belongs to a class that §4.H/§4.G
// enrichment paths are contractually allowed to swallow (log and skip)
// rather than fail the whole request with.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case TransientBackend, NotFound, Cancelled:
		return true
	default:
		return false
	}
}
