package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOpenAITestServer(t *testing.T, status int, body string, capture *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			*capture = req
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{Model: "m"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")

	_, err = NewClient(&Config{Endpoint: "http://localhost"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")
}

func TestClient_GenerateResponse(t *testing.T) {
	var captured map[string]any
	server := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\": true}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 11, "completion_tokens": 4, "total_tokens": 15}
	}`, &captured)

	client, err := NewClient(&Config{Endpoint: server.URL + "/", Model: "test-model", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "the prompt", "the system", 0.2)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, result.Content)
	assert.Equal(t, 11, result.PromptTokens)
	assert.Equal(t, 4, result.CompletionTokens)
	assert.Equal(t, 15, result.TotalTokens)

	assert.Equal(t, "test-model", captured["model"])
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "the prompt", messages[1].(map[string]any)["content"])
}

func TestClient_GenerateResponse_NoChoices(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, `{"choices": [], "usage": {}}`, nil)

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "p", "s", 0)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeEmpty, GetErrorType(err))
}

func TestClient_GenerateResponse_ServerErrorIsRetryable(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusServiceUnavailable,
		`{"error": {"message": "upstream overloaded", "type": "server_error"}}`, nil)

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "p", "s", 0)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "test-model", llmErr.Model)
}

func TestClient_GenerateResponse_AuthErrorIsPermanent(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusUnauthorized,
		`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`, nil)

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "p", "s", 0)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
}

func TestClient_GenerateResponse_Truncated(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, `{
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "`+"```json\\n{\\\"questions\\\": [\\\"Who"+`"}, "finish_reason": "length"}],
		"usage": {"prompt_tokens": 11, "completion_tokens": 64, "total_tokens": 75}
	}`, nil)

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "test-model", MaxTokens: 64}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "p", "s", 0)
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, server.URL, client.GetEndpoint())
}
