// Package llm provides a unified interface for calling scoring LLM providers
// with built-in support for timeouts, retry, circuit breaking, rate limiting,
// metrics, and tracing.
//
// Providers (OpenAI, Anthropic, Google) implement CoreLLM. Cross-cutting
// behavior is added by wrapping a CoreLLM in Middleware, so one scoring path
// can be assembled as a chain:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4.1-mini",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("primary"),
//	        llm.MetricsMiddleware(collector, "primary"),
//	        llm.RetryMiddleware(llm.DefaultRetryPolicy()),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.TimeoutMiddleware(10*time.Second),
//	    },
//	})
//
// The first middleware listed is the outermost.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// Middleware wraps any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt to the LLM provider and returns the response
	// text with input and output token counts.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the model the provider was created with.
	GetModel() string
}

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model specifies which LLM model to use for requests.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout bounds the underlying HTTP client. Per-attempt deadlines are
	// enforced separately by TimeoutMiddleware.
	Timeout time.Duration

	// Middleware is applied around the provider, first entry outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
type Middleware func(CoreLLM) CoreLLM

// Chain applies middleware to core so that the first element is outermost.
func Chain(core CoreLLM, middleware ...Middleware) CoreLLM {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return core
}

// Client implements the ports.LLMClient interface on top of a middleware
// wrapped CoreLLM.
type Client struct{ core CoreLLM }

var _ ports.LLMClient = (*Client)(nil)

// NewClient creates a new LLM client with the specified provider and
// configuration.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return NewClientFromCore(core, config.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM. Tests use it to put scripted
// cores behind the production middleware chain.
func NewClientFromCore(core CoreLLM, middleware ...Middleware) *Client {
	return &Client{core: Chain(core, middleware...)}
}

// Complete sends a prompt to the LLM and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends a prompt to the LLM and returns token usage along
// with the response.
func (c *Client) CompleteWithUsage(
	ctx context.Context,
	prompt string,
	options map[string]any,
) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// GetModel returns the currently configured model name from the underlying
// provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories maps provider type names to constructors. Providers
// register themselves from init.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider constructor under providerType.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// HasProvider reports whether a factory is registered for providerType.
func HasProvider(providerType string) bool {
	_, ok := providerFactories[providerType]
	return ok
}
