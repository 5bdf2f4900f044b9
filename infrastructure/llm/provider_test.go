package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_DoRequest(t *testing.T) {
	var req map[string]any
	srv := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4.1-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"score\": 72, \"explanation\": \"mostly right\"}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 41, "completion_tokens": 12, "total_tokens": 53}
	}`, &req)

	core, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", Model: "gpt-4.1-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, in, out, err := core.DoRequest(context.Background(), "Q: 2+2\nA: 4", map[string]any{
		"system":      "grade strictly",
		"temperature": 0.0,
		"json_mode":   true,
	})

	require.NoError(t, err)
	assert.Contains(t, resp, `"score": 72`)
	assert.Equal(t, 41, in)
	assert.Equal(t, 12, out)

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2, "system and user messages")
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])

	format, ok := req["response_format"].(map[string]any)
	require.True(t, ok, "json mode should request a JSON object")
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIProvider_ClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  FailureKind
		retryable bool
	}{
		{name: "unavailable", status: http.StatusServiceUnavailable, wantKind: FailureServer, retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: FailureRateLimit, retryable: true},
		{name: "bad key", status: http.StatusUnauthorized, wantKind: FailureAuth, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenAITestServer(t, tt.status, `{"error": {"message": "nope", "type": "server_error"}}`, nil)
			core, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", Model: "gpt-4.1-mini", BaseURL: srv.URL})
			require.NoError(t, err)

			_, _, _, err = core.DoRequest(context.Background(), "prompt", nil)

			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "expected ProviderError, got %v", err)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, `{"id": "x", "choices": [], "usage": {}}`, nil)
	core, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", Model: "gpt-4.1-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, _, err = core.DoRequest(context.Background(), "prompt", nil)

	assert.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestOpenAIProvider_RejectsBadBaseURL(t *testing.T) {
	_, err := newOpenAIProvider(ClientConfig{APIKey: "k", BaseURL: "ftp://example.com"})

	assert.ErrorContains(t, err, "invalid base URL")
}

func TestAnthropicProvider_DoRequest(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), "unexpected path %s", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "{\"score\": 55, \"explanation\": \"partial\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 9}
		}`))
	}))
	t.Cleanup(srv.Close)

	core, err := newAnthropicProvider(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, AnthropicDefaultModel, core.GetModel())

	resp, in, out, err := core.DoRequest(context.Background(), "prompt", map[string]any{"system": "grade"})

	require.NoError(t, err)
	assert.Contains(t, resp, `"score": 55`)
	assert.Equal(t, 30, in)
	assert.Equal(t, 9, out)
	assert.NotNil(t, req["system"], "system instructions travel separately")
}

func TestAnthropicProvider_ClassifiesErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "overloaded"}}`))
	}))
	t.Cleanup(srv.Close)

	core, err := newAnthropicProvider(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, _, err = core.DoRequest(context.Background(), "prompt", nil)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe), "expected ProviderError, got %v", err)
	assert.Equal(t, FailureServer, pe.Kind)
	assert.Equal(t, 1, calls, "SDK retries are disabled in favor of RetryMiddleware")
}

func TestGoogleProvider_RejectsCredentialFiles(t *testing.T) {
	_, err := newGoogleProvider(ClientConfig{APIKey: "/etc/creds/service-account.json"})

	assert.Error(t, err)
}
