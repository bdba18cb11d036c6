// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the operation is invalid for the entity's current
// state, or a concurrent modification was detected (optimistic locking).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed or out-of-range input. It is always
// returned before any state change.
var ErrValidation = errors.New("validation failed")

// ErrInsufficientFunds indicates an economic operation exceeds the
// available balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrCycle indicates a knowledge-graph prerequisite edge would close a cycle.
var ErrCycle = errors.New("prerequisite cycle")

// Validationf returns an error wrapping ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf returns an error wrapping ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// InsufficientFundsf returns an error wrapping ErrInsufficientFunds with a
// formatted message.
func InsufficientFundsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInsufficientFunds, fmt.Sprintf(format, args...))
}
