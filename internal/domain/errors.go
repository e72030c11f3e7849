package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure a public operation returns wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrConflict   = errors.New("conflict")
	ErrExpired    = errors.New("expired")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
