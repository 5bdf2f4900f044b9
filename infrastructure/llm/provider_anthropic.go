package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when configuration names no model.
const AnthropicDefaultModel = "claude-3-5-haiku-latest"

// anthropicMaxTemperature is the upper bound of the Messages API.
const anthropicMaxTemperature = 1.0

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements CoreLLM over the Anthropic Messages API.
type anthropicProvider struct {
	model  string
	client anthropic.Client
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// Retries are owned by RetryMiddleware so the breaker sees every attempt.
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		u, err := baseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithBaseURL(u))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	return &anthropicProvider{model: model, client: anthropic.NewClient(opts...)}, nil
}

// DoRequest sends one message and concatenates the text blocks of the reply.
// The Messages API has no JSON mode, so JSONMode relies on the system text.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	req := NewRequest(prompt, opts, p.model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(Clamp(*req.Temperature, MinTemperature, anthropicMaxTemperature))
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", 0, 0, statusError("anthropic", apiErr.StatusCode, err)
		}
		return "", 0, 0, transportError("anthropic", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	content := text.String()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	return content, tokenUsage(int(message.Usage.InputTokens), prompt), tokenUsage(int(message.Usage.OutputTokens), content), nil
}

func (p *anthropicProvider) GetModel() string { return p.model }
