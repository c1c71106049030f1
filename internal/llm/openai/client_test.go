package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/responder-tracker/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Model: "test-model"}, nil)
}

func TestCompleteBuildsRequest(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"a\":1} "},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	})

	resp, err := c.Complete(context.Background(), llm.ChatRequest{
		System:     "sys",
		User:       "usr",
		Schema:     map[string]any{"type": "object"},
		SchemaName: "responder_status",
		MaxTokens:  600,
		Params:     map[string]any{"temperature": 0.1},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, 0.1, got["temperature"])
	assert.Equal(t, float64(600), got["max_completion_tokens"])
	rf, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, "responder_status", js["name"])
	assert.Equal(t, true, js["strict"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
}

func TestCompleteFreeformOmitsOptionalFields(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	_, err := c.Complete(context.Background(), llm.ChatRequest{System: "s", User: "u"})
	require.NoError(t, err)
	assert.NotContains(t, got, "response_format")
	assert.NotContains(t, got, "max_completion_tokens")
}

func TestCompleteMapsCapabilityErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantParam string
		wantSO    bool
	}{
		{
			name:   "response format",
			body:   `{"error":{"message":"Invalid parameter: 'response_format' of type 'json_schema' is not supported with this model.","param":"response_format","code":null}}`,
			wantSO: true,
		},
		{
			name:      "max tokens",
			body:      `{"error":{"message":"Unsupported parameter: 'max_completion_tokens' is not supported with this model.","param":"max_completion_tokens","code":"unsupported_parameter"}}`,
			wantParam: llm.ParamMaxTokens,
		},
		{
			name:      "temperature",
			body:      `{"error":{"message":"Unsupported value: 'temperature' does not support 0.1 with this model.","param":"temperature","code":"unsupported_value"}}`,
			wantParam: "temperature",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Complete(context.Background(), llm.ChatRequest{System: "s", User: "u"})
			require.Error(t, err)

			if tt.wantSO {
				assert.ErrorIs(t, err, llm.ErrStructuredOutputUnsupported)
				return
			}
			var upe *llm.UnsupportedParamError
			require.True(t, errors.As(err, &upe))
			assert.Equal(t, tt.wantParam, upe.Param)
		})
	}
}

func TestCompleteOtherErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	})
	_, err := c.Complete(context.Background(), llm.ChatRequest{System: "s", User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai status 500")
	assert.NotErrorIs(t, err, llm.ErrStructuredOutputUnsupported)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err = c.Complete(context.Background(), llm.ChatRequest{System: "s", User: "u"})
	assert.Error(t, err)
}

func TestNewClientDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	c := NewClient(Config{}, nil)
	assert.Equal(t, "from-env", c.cfg.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", c.cfg.BaseURL)
	assert.Equal(t, "gpt-4o-mini", c.cfg.Model)
	assert.NotZero(t, c.httpClient.Timeout)
}
