package domain

import (
	"errors"
	"fmt"
)

// Rejection taxonomy. Every gateway operation returns exactly one of these
// (wrapped) on failure; none are swallowed.
var (
	// ErrInvalidTransition: the action is illegal for the resource's current
	// state. Decided inside the critical section, no side effects.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStoreConflict: the transition was legal but the store commit failed.
	// The caller must resubmit; nothing is retried automatically.
	ErrStoreConflict = errors.New("store conflict")

	// ErrBusy: the resource's critical section could not be acquired within
	// the bounded wait.
	ErrBusy = errors.New("resource busy")

	ErrOutOfStock       = errors.New("out of stock")
	ErrAlreadyClockedIn = errors.New("already clocked in")
	ErrNotClockedIn     = errors.New("not clocked in")
	ErrNotFound         = errors.New("not found")
)

// ValidationError rejects malformed input before any lock is taken.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
