package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUserNotFound = errors.New("user does not exist")
)

// RangeError reports a numeric input outside its allowed interval.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	if math.IsInf(e.Max, 1) {
		return fmt.Sprintf("%s must be at least %g, got %g", e.Field, e.Min, e.Value)
	}
	return fmt.Sprintf("%s must be between %g and %g, got %g", e.Field, e.Min, e.Max, e.Value)
}

// NewRangeError builds a RangeError for a closed interval.
func NewRangeError(field string, value, min, max float64) *RangeError {
	return &RangeError{Field: field, Value: value, Min: min, Max: max}
}

// NewMinError builds a RangeError with no upper bound.
func NewMinError(field string, value, min float64) *RangeError {
	return &RangeError{Field: field, Value: value, Min: min, Max: math.Inf(1)}
}

// ValidationError reports an invalid asset name or symbol identity.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q is invalid: %s", e.Field, e.Value, e.Reason)
}

// IsRangeError reports whether err wraps a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
