package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/taskgraph/graph"
)

func newTestServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "boom", "type": "server_error"},
			})
			return
		}

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
		})
	}))
}

func TestGenerate(t *testing.T) {
	server := newTestServer(t, http.StatusOK, "a concise answer")
	defer server.Close()

	gen, err := New(Options{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "write one line")
	require.NoError(t, err)
	assert.Equal(t, "a concise answer", out)
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestGenerateServerErrorIsRetryable(t *testing.T) {
	server := newTestServer(t, http.StatusInternalServerError, "")
	defer server.Close()

	gen, err := New(Options{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "write one line")
	require.Error(t, err)
	assert.True(t, graph.IsRetryable(err))
}

func TestGenerateRateLimitIsRetryable(t *testing.T) {
	server := newTestServer(t, http.StatusTooManyRequests, "")
	defer server.Close()

	gen, err := New(Options{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "write one line")
	require.Error(t, err)
	assert.True(t, graph.IsRetryable(err))
}

func TestGenerateStructuredOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		format, ok := req["response_format"].(map[string]any)
		require.True(t, ok, "request carries no response_format")
		assert.Equal(t, "json_schema", format["type"])
		schema, ok := format["json_schema"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "outline", schema["name"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": `{"sections":[]}`},
				},
			},
		})
	}))
	defer server.Close()

	gen, err := New(Options{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/v1",
		SchemaName:     "outline",
		ResponseSchema: json.RawMessage(`{"type":"object","properties":{"sections":{"type":"array"}}}`),
	})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "outline the report")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sections":[]}`, out)
}

func TestGenerateBadRequestIsNotRetryable(t *testing.T) {
	server := newTestServer(t, http.StatusBadRequest, "")
	defer server.Close()

	gen, err := New(Options{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "write one line")
	require.Error(t, err)
	assert.False(t, graph.IsRetryable(err))
}
