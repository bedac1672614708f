package core

import (
	"errors"
	"fmt"
)

// Sentinels for classifying failures with errors.Is. The concrete error
// types below match them.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// NotFoundError names a missing entity, either the target of an operation or
// an unresolved foreign reference.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Dependents counts the records that reference a patient.
type Dependents struct {
	Appointments int64 `json:"appointments"`
	Payments     int64 `json:"payments"`
	Visits       int64 `json:"visits"`
}

func (d Dependents) Any() bool {
	return d.Appointments > 0 || d.Payments > 0 || d.Visits > 0
}

// ConflictError reports a patient delete blocked by dependent records.
type ConflictError struct {
	PatientID  int64
	Dependents Dependents
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Cannot delete patient: %d appointments, %d payments, and %d visits exist",
		e.Dependents.Appointments, e.Dependents.Payments, e.Dependents.Visits)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError wraps malformed input, optionally naming the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Invalidf builds a ValidationError with a formatted message.
func Invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}
