package ports

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidResponse indicates that a provider returned a reply that could
	// not be parsed into a score.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// ReplyError is a provider reply that was received but could not be used.
// It matches ErrInvalidResponse as well as the parse failure.
type ReplyError struct {
	// Model is the model that produced the reply.
	Model string
	Err   error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("invalid reply from %s: %v", e.Model, e.Err)
}

func (e *ReplyError) Unwrap() []error { return []error{ErrInvalidResponse, e.Err} }

// NewReplyError creates a ReplyError for model.
func NewReplyError(model string, err error) *ReplyError {
	return &ReplyError{Model: model, Err: err}
}

// StoreError represents a failed durable-store operation.
type StoreError struct {
	// Entity is the table or record kind being accessed.
	Entity string

	// Operation is the name of the store operation that failed.
	Operation string

	// Err is the underlying driver or domain error.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: entity=%s, operation=%s, err=%v", e.Entity, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Err:       err,
	}
}

// IndexError represents a failed leaderboard index operation.
type IndexError struct {
	// Backend names the index implementation, such as "memory" or "redis".
	Backend string

	// Operation is the name of the index operation that failed.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for IndexError.
func (e *IndexError) Error() string {
	return fmt.Sprintf("leaderboard error: backend=%s, operation=%s, err=%v", e.Backend, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error { return e.Err }

// NewIndexError creates a new IndexError with the given details.
func NewIndexError(backend, operation string, err error) *IndexError {
	return &IndexError{
		Backend:   backend,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
