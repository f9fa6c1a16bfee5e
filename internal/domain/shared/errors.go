// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrNotANumber      = errors.New("value is not a number")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrAlreadyUnlocked = errors.New("already unlocked")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "gamification", "leaderboard"
	Op      string // Operation that failed, e.g., "ComputeXP", "Rebuild"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Gamification domain errors
var (
	ErrUserStatsNotFound  = NewDomainError("gamification", "Find", ErrNotFound, "user stats not found")
	ErrInvalidUserID      = NewDomainError("gamification", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidCourseID    = NewDomainError("gamification", "Validate", ErrInvalidID, "invalid course ID")
	ErrInvalidLessonID    = NewDomainError("gamification", "Validate", ErrInvalidID, "invalid lesson ID")
	ErrNegativeScore      = NewDomainError("gamification", "ComputeXP", ErrNegativeValue, "base score cannot be negative")
	ErrScoreNotANumber    = NewDomainError("gamification", "ComputeXP", ErrNotANumber, "base score is NaN")
	ErrAchievementUnknown = NewDomainError("gamification", "Evaluate", ErrInvalidInput, "unknown achievement type")
)

// Leaderboard domain errors
var (
	ErrLeaderboardNotBuilt = NewDomainError("leaderboard", "Find", ErrNotFound, "leaderboard has never been built for this scope")
	ErrInvalidScope        = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid leaderboard scope")
	ErrMissingCourseID     = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "course scope requires a course ID")
	ErrUnexpectedCourseID  = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "course ID is only valid for course scope")
)

// Persistence errors
var (
	ErrStoreConflict    = NewDomainError("store", "Save", ErrOptimisticLock, "stats were modified concurrently")
	ErrStoreUnavailable = NewDomainError("store", "Access", ErrStorageUnavailable, "store is unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrNotANumber) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOptimisticLock) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried safely.
// Only conflicts and transient storage failures qualify; validation
// errors never resolve themselves.
func IsRetryable(err error) bool {
	return IsConflict(err) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrTimeout)
}
