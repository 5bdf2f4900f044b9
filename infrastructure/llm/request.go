package llm

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Option keys understood by every provider. Callers pass them through the
// options map of ports.LLMClient.Complete.
const (
	OptModel       = "model"
	OptSystem      = "system"
	OptTemperature = "temperature"
	OptMaxTokens   = "max_tokens"
	OptJSONMode    = "json_mode"
)

// Sampling bounds. Providers with a narrower range clamp further.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0

	// DefaultMaxTokens caps generation when the caller does not say otherwise.
	// A score reply is a short JSON object, so this is generous.
	DefaultMaxTokens = 512
)

// Request is one completion in provider-neutral form.
type Request struct {
	Model  string
	System string
	Prompt string

	// Temperature is nil when the provider default should apply.
	Temperature *float64
	MaxTokens   int

	// JSONMode asks the provider to constrain the reply to a JSON object.
	// Providers without such a switch rely on the system instructions.
	JSONMode bool
}

// NewRequest builds a Request from the options map. Values of the wrong type
// are ignored and the temperature is clamped to [MinTemperature,
// MaxTemperature]. Unknown keys are ignored.
func NewRequest(prompt string, opts map[string]any, defaultModel string) Request {
	req := Request{Model: defaultModel, Prompt: prompt, MaxTokens: DefaultMaxTokens}

	if m, ok := opts[OptModel].(string); ok && m != "" {
		req.Model = m
	}
	if s, ok := opts[OptSystem].(string); ok {
		req.System = s
	}
	if n, ok := opts[OptMaxTokens].(int); ok && n > 0 {
		req.MaxTokens = n
	}
	if on, ok := opts[OptJSONMode].(bool); ok {
		req.JSONMode = on
	}
	if t, ok := floatOption(opts[OptTemperature]); ok {
		t = Clamp(t, MinTemperature, MaxTemperature)
		req.Temperature = &t
	}
	return req
}

func floatOption(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// tokenUsage returns the provider-reported count, or roughly four characters
// per token when the provider reported none.
func tokenUsage(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return len(text) / 4
}

// baseURL checks an endpoint override. Only absolute http(s) URLs are
// accepted.
func baseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: want an absolute http or https URL", raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}
