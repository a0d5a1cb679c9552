package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField marks a required field that was absent from the scraped source.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidField marks a field whose raw value could not be parsed.
	ErrInvalidField = errors.New("invalid field")
)

// FieldError identifies the field that failed record construction.
type FieldError struct {
	Field string
	Kind  error
	Err   error
}

// Error implements error.
func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q", e.Kind, e.Field)
}

// Is reports whether target is the error kind of e.
func (e *FieldError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap exposes the parse failure, if any.
func (e *FieldError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &FieldError{Field: field, Kind: ErrMissingField}
}

func invalid(field string, err error) error {
	return &FieldError{Field: field, Kind: ErrInvalidField, Err: err}
}
