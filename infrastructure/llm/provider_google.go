package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when configuration names no model.
const GoogleDefaultModel = "gemini-2.5-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM over the Gemini API with API key
// authentication.
type googleProvider struct {
	model  string
	client *genai.Client
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if strings.HasSuffix(strings.ToLower(config.APIKey), ".json") {
		return nil, errors.New("google provider takes an API key, not a credentials file")
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{APIKey: config.APIKey, Backend: genai.BackendGeminiAPI}
	if config.BaseURL != "" {
		u, err := baseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		cc.HTTPOptions.BaseURL = u
	}
	if config.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &googleProvider{model: model, client: client}, nil
}

// DoRequest sends one GenerateContent call and returns the reply text.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	req := NewRequest(prompt, opts, p.model)

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, generationConfig(req))
	if err != nil {
		return "", 0, 0, classifyGoogle(err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	var in, out int
	if u := resp.UsageMetadata; u != nil {
		in, out = int(u.PromptTokenCount), int(u.CandidatesTokenCount)
	}
	return content, tokenUsage(in, prompt), tokenUsage(out, content), nil
}

func (p *googleProvider) GetModel() string { return p.model }

func generationConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(req.MaxTokens, math.MaxInt32)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	return config
}

// classifyGoogle maps Gemini failures. Replies blocked by safety filters are
// reported as content policy failures, which are not retried.
func classifyGoogle(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if blockedBySafety(apiErr) {
			return NewProviderError("google", FailurePolicy, apiErr.Code, err)
		}
		return statusError("google", apiErr.Code, err)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return statusError("google", genaiErr.Code, err)
	}
	return transportError("google", err)
}

func blockedBySafety(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "safety") || strings.Contains(msg, "blocked")
}
