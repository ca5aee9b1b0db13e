package app

import "errors"

// ErrNotFound indicates the booking or notification does not exist.
var ErrNotFound = errors.New("booking not found")

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConflictError rejects a slot that overlaps an active booking or falls
// outside the expert's availability. Nothing is mutated.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// StateError rejects a transition the current state or actor forbids.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

func validationf(reason string) error { return &ValidationError{Reason: reason} }
func conflictf(reason string) error   { return &ConflictError{Reason: reason} }
func statef(reason string) error      { return &StateError{Reason: reason} }
