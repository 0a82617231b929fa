package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrVersionMismatch   = errors.New("version mismatch")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
)

// ConflictError is returned when an active bill already exists; callers reuse Bill.
type ConflictError struct {
	Bill   *Bill
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Bill != nil {
		return fmt.Sprintf("conflict: %s (bill %s)", e.Reason, e.Bill.ID)
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InvalidTransitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
