package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/orchestrator-api/internal/domain/llm"
)

func TestDispatcher_Resolve(t *testing.T) {
	echo := NewEchoAdapter(nil)
	d := NewDispatcher(map[string]llm.Provider{"echo": echo, "missing": nil})

	got, err := d.Resolve("echo")
	require.NoError(t, err)
	assert.Same(t, echo, got)

	_, err = d.Resolve("missing")
	assert.ErrorIs(t, err, llm.ErrProvider)

	_, err = d.Resolve("vertex")
	assert.ErrorIs(t, err, llm.ErrProvider)
	assert.Equal(t, []string{"echo"}, d.Names())
}

func TestEchoAdapter(t *testing.T) {
	completion, err := NewEchoAdapter(nil).Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleAssistant, Content: "ok"},
			{Role: llm.RoleUser, Content: " second "},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Echo: second", completion.Content)
	assert.Positive(t, completion.PromptTokens)
	assert.Positive(t, completion.CompletionTokens)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEchoAdapter(nil).Complete(ctx, llm.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIAdapter_ToolRoundTrip(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "current_time", "arguments": "{\"timezone\":\"UTC\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(OpenAIConfig{BaseURL: server.URL + "/v1", APIKey: "sk-test", Timeout: 5 * time.Second})
	temperature := 0.2
	completion, err := adapter.Complete(context.Background(), llm.CompletionRequest{
		Model:       "gpt-4",
		Temperature: &temperature,
		MaxTokens:   64,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "what time is it?"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCallRequest{{ID: "call_0", Name: "current_time", Arguments: "{}"}}},
			{Role: llm.RoleTool, Content: "noon", ToolCallID: "call_0"},
		},
		Tools: []llm.ToolDefinition{{Name: "current_time", Description: "clock", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "call_1", completion.ToolCalls[0].ID)
	assert.Equal(t, "current_time", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"timezone":"UTC"}`, completion.ToolCalls[0].Arguments)
	assert.Equal(t, 12, completion.PromptTokens)
	assert.Equal(t, 7, completion.CompletionTokens)

	assert.Equal(t, "gpt-4", captured["model"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 3)
	toolMsg := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_0", toolMsg["tool_call_id"])
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "current_time", tools[0].(map[string]any)["function"].(map[string]any)["name"])
}

func TestOpenAIAdapter_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(OpenAIConfig{Name: "local", BaseURL: server.URL, Timeout: time.Second})
	_, err := adapter.Complete(context.Background(), llm.CompletionRequest{Model: "llama"})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrProvider)

	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "local", perr.Provider)
	assert.Equal(t, "llama", perr.Model)
}

func TestOpenAIAdapter_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	_, err := NewOpenAIAdapter(OpenAIConfig{BaseURL: server.URL}).Complete(context.Background(), llm.CompletionRequest{Model: "gpt-4"})
	assert.ErrorIs(t, err, llm.ErrProvider)
}
