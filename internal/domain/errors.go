package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while scoring answers and ranking users.
var (
	// ErrProviderTimeout indicates that a scoring provider did not reply within
	// the per-attempt deadline.
	ErrProviderTimeout = errors.New("scoring provider timed out")

	// ErrProviderUnavailable indicates that a scoring provider rejected the call,
	// failed, or is short-circuited by an open breaker.
	ErrProviderUnavailable = errors.New("scoring provider unavailable")

	// ErrScoringFailed indicates that neither the primary nor the secondary
	// provider produced a usable score. It is terminal for one event.
	ErrScoringFailed = errors.New("scoring failed")

	// ErrLedgerCorruption indicates that the best-score ledger produced a value
	// that can never be valid, such as a negative total.
	ErrLedgerCorruption = errors.New("ledger corruption")

	// ErrNotFound indicates that the requested feedback, aggregate or ranking
	// does not exist yet. It is an expected outcome for unscored entities.
	ErrNotFound = errors.New("not found")

	// ErrNotRanked indicates that a user has no position on the leaderboard.
	ErrNotRanked = fmt.Errorf("user not ranked: %w", ErrNotFound)

	// ErrInvalidEvent indicates that a submission event is missing required data.
	ErrInvalidEvent = errors.New("invalid submission event")

	// ErrInvalidScore indicates a score outside the accepted 0-100 range.
	ErrInvalidScore = errors.New("invalid score")
)

// ScoringError reports that every configured provider failed for one answer.
// It carries both causes so logs can show why each path was abandoned.
type ScoringError struct {
	// Primary is the error returned by the primary provider path.
	Primary error

	// Secondary is the error returned by the fallback provider path.
	Secondary error
}

// Error implements the error interface for ScoringError.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring failed: primary=%v, secondary=%v", e.Primary, e.Secondary)
}

// Unwrap exposes ErrScoringFailed and both provider causes to errors.Is.
func (e *ScoringError) Unwrap() []error {
	errs := []error{ErrScoringFailed}
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Secondary != nil {
		errs = append(errs, e.Secondary)
	}
	return errs
}

// NewScoringError creates a ScoringError from the two provider failures.
func NewScoringError(primary, secondary error) *ScoringError {
	return &ScoringError{Primary: primary, Secondary: secondary}
}

// CorruptionError describes a ledger integrity violation for a single user.
type CorruptionError struct {
	// UserID is the user whose ledger failed the integrity check.
	UserID int64

	// Total is the offending computed total.
	Total int64
}

// Error implements the error interface for CorruptionError.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corruption: user=%d, total=%d", e.UserID, e.Total)
}

// Unwrap returns ErrLedgerCorruption.
func (e *CorruptionError) Unwrap() error { return ErrLedgerCorruption }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// Unwrap returns ErrInvalidEvent so callers can classify validation failures.
func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity}
}
