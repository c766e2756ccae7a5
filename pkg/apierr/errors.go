// Package apierr defines the sentinel error vocabulary shared across
// labtrace's service layer and the HTTP mapping helper that translates it
// to status codes.
package apierr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrConflict      = errors.New("conflict")
	ErrBusy          = errors.New("session is processing another turn")
	ErrForbidden     = errors.New("not permitted")
)

// ValidationError wraps a field-specific input validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
