package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration marks configuration problems that must stop
// startup: missing credentials, unknown provider types, unparseable
// files. It is never produced during request handling.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ValidationError collects the reasons a comparison request was
// rejected. It is returned before any provider work starts; model
// output problems are never validation errors, they degrade to flags
// on the result instead.
type ValidationError struct {
	// Entity names what failed validation, such as "compare request".
	Entity string

	// Errors lists each individual failure.
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends one failure message.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failure was recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates an empty ValidationError for entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}
