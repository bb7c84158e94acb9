package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionRejected means the join parameters were missing; the
	// connection is closed before it is registered.
	ErrConnectionRejected = errors.New("connection rejected")
	// ErrValidation marks a malformed or incomplete chat payload.
	ErrValidation = errors.New("validation error")
	// ErrStoreUnavailable means the durable message backend could not be reached.
	ErrStoreUnavailable = errors.New("message store unavailable")
	// ErrTransport marks a fault of the underlying connection.
	ErrTransport = errors.New("transport error")
)

// ValidationError names the offending field of a rejected payload.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
