package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrValidation      = errors.New("validation failed")
	ErrUnknownCategory = errors.New("unknown income category")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidTaxYear  = errors.New("invalid tax year")
)

// ValidationError reports which input field was rejected and why.
// It unwraps to ErrValidation so callers can match the whole class.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError carries the id of the record that blocked an insert.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, e.ExistingID)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func missingField(name string) error {
	return &ValidationError{Field: name, Reason: "is required"}
}

func invalidField(name string, err error) error {
	return &ValidationError{Field: name, Reason: err.Error()}
}
