package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when configuration names no model.
const OpenAIDefaultModel = "gpt-4.1-mini"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreLLM over the OpenAI chat completions API. Any
// OpenAI-compatible endpoint works through BaseURL.
type openAIProvider struct {
	model  string
	client *openai.Client
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		u, err := baseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.BaseURL = u
	}
	if config.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &openAIProvider{model: model, client: openai.NewClientWithConfig(cfg)}, nil
}

// DoRequest sends one chat completion and returns the first choice.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	req := NewRequest(prompt, opts, p.model)

	resp, err := p.client.CreateChatCompletion(ctx, chatRequest(req))
	if err != nil {
		return "", 0, 0, classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, ErrNoResponseChoice
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	return content, tokenUsage(resp.Usage.PromptTokens, prompt), tokenUsage(resp.Usage.CompletionTokens, content), nil
}

func (p *openAIProvider) GetModel() string { return p.model }

func chatRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.JSONMode {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, err)
	}
	return transportError("openai", err)
}
