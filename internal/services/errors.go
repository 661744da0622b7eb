package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so the HTTP layer can map them to
// statuses without string matching. All kinds are recoverable conditions
// surfaced to the caller; none are fatal.
type ErrorKind string

const (
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindInvalidSelection       ErrorKind = "INVALID_SELECTION"
	KindInvalidStateTransition ErrorKind = "INVALID_STATE_TRANSITION"
	KindNotOrdered             ErrorKind = "NOT_ORDERED"
	KindOverlapConflict        ErrorKind = "OVERLAP_CONFLICT"
	KindWeightExceedsMax       ErrorKind = "WEIGHT_EXCEEDS_MAX"
	KindNoApplicableRate       ErrorKind = "NO_APPLICABLE_RATE"
	KindValidation             ErrorKind = "VALIDATION_ERROR"
	KindInternal               ErrorKind = "INTERNAL_ERROR"
)

// Error is a typed engine error
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a typed engine error
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a lower-level error with an engine kind
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the error kind, defaulting to KindInternal for untyped errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
