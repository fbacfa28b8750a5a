package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newTestServer(t *testing.T, handler func(t *testing.T, body map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(t, body)))
	}))
}

func TestNew_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGenerateContent_Text(t *testing.T) {
	server := newTestServer(t, func(t *testing.T, body map[string]any) any {
		assert.Equal(t, "test-model", body["model"])
		assert.InDelta(t, 0.5, body["temperature"], 1e-6)
		assert.EqualValues(t, 64, body["max_tokens"])

		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
		assert.Equal(t, "Merhaba", msgs[1].(map[string]any)["content"])

		return map[string]any{
			"id": "1", "object": "chat.completion", "model": "test-model",
			"choices": []any{map[string]any{
				"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": "Selam!"},
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		}
	})
	defer server.Close()

	llm, err := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithModel("test-model"))
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "Sen yardımcı bir asistansın."),
		llms.TextParts(llms.ChatMessageTypeHuman, "Merhaba"),
	}, llms.WithTemperature(0.5), llms.WithMaxTokens(64))
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Selam!", resp.Choices[0].Content)
	assert.Equal(t, "stop", resp.Choices[0].StopReason)
	assert.Equal(t, 5, resp.Choices[0].GenerationInfo["total_tokens"])
}

func TestGenerateContent_ToolRoundTrip(t *testing.T) {
	server := newTestServer(t, func(t *testing.T, body map[string]any) any {
		tools := body["tools"].([]any)
		require.Len(t, tools, 1)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		assert.Equal(t, "web_search", fn["name"])

		msgs := body["messages"].([]any)
		require.Len(t, msgs, 3)
		assistant := msgs[1].(map[string]any)
		assert.Equal(t, "assistant", assistant["role"])
		assert.Len(t, assistant["tool_calls"], 1)
		toolMsg := msgs[2].(map[string]any)
		assert.Equal(t, "tool", toolMsg["role"])
		assert.Equal(t, "call_1", toolMsg["tool_call_id"])

		return map[string]any{
			"choices": []any{map[string]any{
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []any{map[string]any{
						"id": "call_2", "type": "function",
						"function": map[string]any{"name": "web_search", "arguments": `{"input":"go"}`},
					}},
				},
			}},
		}
	})
	defer server.Close()

	llm, err := New(WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	history := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "search go"),
		{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{llms.ToolCall{
			ID: "call_1", Type: "function",
			FunctionCall: &llms.FunctionCall{Name: "web_search", Arguments: `{"input":"go"}`},
		}}},
		{Role: llms.ChatMessageTypeTool, Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: "call_1", Name: "web_search", Content: "results",
		}}},
	}
	resp, err := llm.GenerateContent(context.Background(), history, llms.WithTools([]llms.Tool{{
		Type:     "function",
		Function: &llms.FunctionDefinition{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}},
	}}), llms.WithToolChoice("auto"))
	require.NoError(t, err)
	require.Len(t, resp.Choices[0].ToolCalls, 1)
	assert.Equal(t, "call_2", resp.Choices[0].ToolCalls[0].ID)
	assert.Equal(t, `{"input":"go"}`, resp.Choices[0].ToolCalls[0].FunctionCall.Arguments)
}

func TestCreateEmbedding(t *testing.T) {
	server := newTestServer(t, func(t *testing.T, body map[string]any) any {
		assert.Equal(t, "embed-model", body["model"])
		return map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				map[string]any{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		}
	})
	defer server.Close()

	llm, err := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithEmbeddingModel("embed-model"))
	require.NoError(t, err)

	vecs, err := llm.CreateEmbedding(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestGenerateContent_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	llm, err := New(WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)
	_, err = llm.Call(context.Background(), "hi")
	assert.Error(t, err)
}
