package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("permission denied")
)

// ValidationError is returned before any query runs. Fields maps a parameter name
// to a human-readable problem.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Fields)
}

func NewValidationError(msg string, fields map[string]string) error {
	return &ValidationError{Message: msg, Fields: fields}
}

// ConflictError reports a state transition that is not allowed.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
