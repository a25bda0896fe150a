package model

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError names the request field that is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Missing returns a ValidationError for an absent required field.
func Missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// Invalid returns a ValidationError for a present but malformed field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
