package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errSimulated is returned by MockCoreLLM when a failure is requested without
// a specific error.
var errSimulated = errors.New("simulated failure")

// MockStep scripts the outcome of a single MockCoreLLM call.
type MockStep struct {
	Response string
	Err      error
	Delay    time.Duration
}

// MockCoreLLM provides a configurable CoreLLM for tests. Calls consume Script
// in order; once it is exhausted the static Response/Error fields apply.
type MockCoreLLM struct {
	mu sync.Mutex

	// Response configuration
	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls, then succeeds.
	FailUntilAttempt int

	// Script overrides the static configuration call by call.
	Script []MockStep

	// Tracking
	CallCount      int
	LastPrompt     string
	LastOpts       map[string]any
	CallTimestamps []time.Time
}

// NewMockCoreLLM creates a new mock CoreLLM with default successful behavior.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// NewScriptedCoreLLM returns a mock that plays steps in order and then keeps
// failing.
func NewScriptedCoreLLM(model string, steps ...MockStep) *MockCoreLLM {
	return &MockCoreLLM{
		Model:     model,
		TokensIn:  10,
		TokensOut: 20,
		Error:     errSimulated,
		Script:    steps,
	}
}

// DoRequest implements the CoreLLM interface with configurable behavior.
// The mock's lock is released while a delay elapses so concurrent callers do
// not serialize.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	m.CallTimestamps = append(m.CallTimestamps, time.Now())

	step := MockStep{Response: m.Response, Err: m.Error, Delay: m.ResponseDelay}
	if len(m.Script) > 0 {
		step = m.Script[0]
		m.Script = m.Script[1:]
	} else if m.FailUntilAttempt > 0 && call <= m.FailUntilAttempt {
		step.Err = m.Error
		if step.Err == nil {
			step.Err = errSimulated
		}
	} else if m.FailUntilAttempt > 0 {
		step.Err = nil
	}
	tokensIn, tokensOut := m.TokensIn, m.TokensOut
	m.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	if step.Err != nil {
		return "", 0, 0, step.Err
	}
	return step.Response, tokensIn, tokensOut, nil
}

// GetModel returns the configured model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetError changes the static error under the mock's lock.
func (m *MockCoreLLM) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

// GetCallCount returns the number of times DoRequest was called.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetLastPrompt returns the prompt of the most recent call.
func (m *MockCoreLLM) GetLastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastPrompt
}

// GetLastOpts returns the options of the most recent call.
func (m *MockCoreLLM) GetLastOpts() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastOpts
}
