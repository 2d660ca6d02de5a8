package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both absent records and records outside the caller's
	// hospital scope, so existence never leaks across hospitals.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the operation is not valid for the request's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition means a unit-level state rule was violated.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidInput means malformed quantity or geographic input.
	ErrInvalidInput = errors.New("invalid input")
)

// InsufficientStockError is returned when an approval cannot claim the full
// quantity. It is produced only after any partially claimed units have been
// released.
type InsufficientStockError struct {
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available, %d required", e.Available, e.Required)
}
