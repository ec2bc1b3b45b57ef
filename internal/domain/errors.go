package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Input errors
	ErrValidation      = errors.New("validation failed")
	ErrInvalidArgument = errors.New("invalid argument")

	// Contention on a user's critical section. Retryable.
	ErrLockTimeout         = errors.New("timed out waiting for user lock")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// Storage failed inside the critical section; nothing was applied.
	ErrPersistence = errors.New("persistence failure")

	// Wallet errors
	ErrInsufficientFunds = errors.New("insufficient balance")

	// Lookup errors
	ErrUserNotFound  = errors.New("user not found")
	ErrBadgeNotFound = errors.New("badge not found")

	// Catalog errors
	ErrInvalidLevelTable = errors.New("level table must start at 0 and strictly increase")
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsRetryable reports whether the caller may retry the operation with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConcurrencyConflict)
}
