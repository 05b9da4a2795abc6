// Package shared contains building blocks used by several application services.
package shared

import (
	"fmt"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

// ValidationError describes an invalid argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures with errs.ErrInvalidInput.
func (e *ValidationError) Unwrap() error { return errs.ErrInvalidInput }

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ValidateUserID checks that an identity was supplied.
func ValidateUserID(userID uuid.UUID) error {
	if userID.IsZero() {
		return NewValidationError("userID", "must not be empty")
	}
	return nil
}
