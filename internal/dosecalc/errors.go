package dosecalc

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty, non-numeric or non-positive values and unknown units
	ErrInvalidInput = errors.New("invalid input")
	// ErrDivisionByZero is returned when a denominator (dose on hand, infusion time) is zero
	ErrDivisionByZero = errors.New("division by zero")
)

// InputError names the form field that failed validation
type InputError struct {
	Field   string
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Cause.Error())
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

func invalid(field, msg string) error {
	return &InputError{Field: field, Message: msg, Cause: ErrInvalidInput}
}

func zeroDenominator(field, msg string) error {
	return &InputError{Field: field, Message: msg, Cause: ErrDivisionByZero}
}
