package model

import (
	"errors"
	"fmt"
)

var (
	// ErrParsing means a page had no recognizable listing table
	ErrParsing = errors.New("parsing failed")

	// ErrValidation means an identifier, year or quarter was rejected at the boundary
	ErrValidation = errors.New("validation failed")

	// ErrNoPDFLink means a download page did not contain a PDF link
	ErrNoPDFLink = errors.New("no pdf link found")
)

// ValidationError describes a rejected input value
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
