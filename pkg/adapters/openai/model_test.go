package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/tabloop/pkg/adapters/openai"
	backend "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *openai.Model {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return openai.New("test-api-key", ts.URL+"/v1", openai.WithModel("gpt-4o"))
}

func TestModel_Call(t *testing.T) {
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req backend.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, 3072, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "What is the total?", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(backend.ChatCompletionResponse{
			Model: "gpt-4o",
			Choices: []backend.ChatCompletionChoice{{
				Message:      backend.ChatCompletionMessage{Role: "assistant", Content: "[Final Answer] 60"},
				FinishReason: backend.FinishReasonStop,
			}},
		})
	})

	out, err := model.Call(context.Background(), "What is the total?", 3072)
	require.NoError(t, err)
	assert.Equal(t, "[Final Answer] 60", out)
	assert.Equal(t, "gpt-4o", model.Name())
}

func TestModel_Call_APIError(t *testing.T) {
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Invalid API key",
				"type":    "invalid_request_error",
			},
		})
	})

	_, err := model.Call(context.Background(), "hi", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api call")
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestModel_Call_NoChoices(t *testing.T) {
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(backend.ChatCompletionResponse{Model: "gpt-4o"})
	})

	_, err := model.Call(context.Background(), "hi", 10)
	assert.ErrorIs(t, err, openai.ErrNoChoices)
}
