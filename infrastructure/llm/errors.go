package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider replied without any text.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates that the provider's response contained no
	// choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
	// ErrCircuitOpen indicates that the circuit breaker rejected a request
	// without calling the provider.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// FailureKind classifies a provider failure. The string form is used in log
// fields and metric labels.
type FailureKind string

// Provider failure kinds.
const (
	FailureUnknown   FailureKind = "unknown"
	FailureAuth      FailureKind = "auth"
	FailureRateLimit FailureKind = "rate_limit"
	FailureRejected  FailureKind = "rejected"
	FailureServer    FailureKind = "server"
	FailurePolicy    FailureKind = "content_policy"
	FailureNetwork   FailureKind = "network"
	FailureTimeout   FailureKind = "timeout"
)

// Transient reports whether another attempt against the same provider may
// succeed.
func (k FailureKind) Transient() bool {
	switch k {
	case FailureRateLimit, FailureServer, FailureNetwork, FailureTimeout:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure from one provider call.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	// Status is the HTTP status, or zero when the call never got a response.
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool { return e.Kind.Transient() }

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, kind FailureKind, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Status: status, Err: err}
}

// kindForStatus maps an HTTP status to a failure kind.
func kindForStatus(status int) FailureKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return FailureAuth
	case status == http.StatusTooManyRequests:
		return FailureRateLimit
	case status == http.StatusRequestTimeout:
		return FailureTimeout
	case status >= 500:
		return FailureServer
	case status >= 400:
		return FailureRejected
	default:
		return FailureUnknown
	}
}

// statusError classifies a failure that carries an HTTP status.
func statusError(provider string, status int, err error) *ProviderError {
	return NewProviderError(provider, kindForStatus(status), status, err)
}

// transportError classifies a failure without an HTTP status: an expired or
// canceled context, or a network problem.
func transportError(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(provider, FailureTimeout, 0, err)
	}
	return NewProviderError(provider, FailureNetwork, 0, err)
}

// IsPermanent reports whether err can never succeed on another attempt against
// the same provider: an open breaker, or a classified failure that is not
// transient. Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.IsRetryable()
	}
	return false
}

// Kind returns the failure kind of err, or FailureUnknown when err carries no
// classification.
func Kind(err error) FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureUnknown
}

// DomainError maps a provider path failure onto domain.ErrProviderTimeout or
// domain.ErrProviderUnavailable, keeping the original cause in the chain.
func DomainError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrProviderTimeout) || errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	if Kind(err) == FailureTimeout {
		return fmt.Errorf("%w: %w", domain.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
}
