// Package invariant defines the error kind returned when a caller breaks a
// precondition (index out of range, mismatched lengths, empty queue).
//
// These errors indicate a logic bug rather than bad input data and must be
// propagated to the caller instead of being coerced.
package invariant

import (
	"errors"
	"fmt"
)

// ErrViolation is wrapped by every precondition failure.
var ErrViolation = errors.New("invariant violation")

// Errorf returns an error wrapping ErrViolation with a formatted message.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrViolation, fmt.Sprintf(format, args...))
}

// CheckIndex returns an ErrViolation error unless 0 <= i < length.
func CheckIndex(what string, i, length int) error {
	if i < 0 || i >= length {
		return Errorf("%s index %d out of range [0, %d)", what, i, length)
	}
	return nil
}
