package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// MockScoringClient implements ports.LLMClient with deterministic score
// replies chosen by substring matching on the prompt. Tests use it where a
// full provider chain would only add noise.
type MockScoringClient struct {
	mu sync.Mutex

	// model is the mock model identifier.
	model string
	// responses holds reply patterns in registration order.
	responses []MockResponse
	// calls counts Complete invocations.
	calls int
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt. An empty
	// pattern matches every prompt.
	Pattern string
	// Response is the raw reply text returned for matching prompts.
	Response string
	// Err, when set, is returned instead of Response.
	Err error
}

// ErrMockUnavailable is the default failure of a failing mock client.
var ErrMockUnavailable = errors.New("mock provider unavailable")

// NewMockScoringClient creates a client that scores every prompt at 50
// until patterns are added.
func NewMockScoringClient(model string) *MockScoringClient {
	return &MockScoringClient{model: model}
}

// NewFailingScoringClient creates a client whose every call fails with err,
// or ErrMockUnavailable when err is nil.
func NewFailingScoringClient(model string, err error) *MockScoringClient {
	if err == nil {
		err = ErrMockUnavailable
	}
	c := NewMockScoringClient(model)
	c.AddResponse(MockResponse{Err: err})
	return c
}

// ScoreReply renders the JSON reply a well-behaved provider sends.
func ScoreReply(score int, explanation string) string {
	return fmt.Sprintf(`{"score": %d, "explanation": %q}`, score, explanation)
}

// AddResponse registers a reply pattern. Earlier patterns take precedence.
func (m *MockScoringClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// ScoreWhen is shorthand for a pattern that returns a valid score reply.
func (m *MockScoringClient) ScoreWhen(pattern string, score int) *MockScoringClient {
	m.AddResponse(MockResponse{
		Pattern:  pattern,
		Response: ScoreReply(score, fmt.Sprintf("scored %d for matching %q", score, pattern)),
	})
	return m
}

// Complete implements ports.LLMClient.
func (m *MockScoringClient) Complete(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	promptLower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if r.Pattern == "" || strings.Contains(promptLower, strings.ToLower(r.Pattern)) {
			if r.Err != nil {
				return "", r.Err
			}
			return r.Response, nil
		}
	}
	return ScoreReply(50, "default mock score"), nil
}

// GetModel implements ports.LLMClient.
func (m *MockScoringClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// Calls returns how many times Complete ran.
func (m *MockScoringClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockScoringClient)(nil)
