package responses

import (
	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/stream"
	"jan-server/services/orchestrator-api/internal/domain/tool"
)

// ChatCompletion is the OpenAI shaped body returned for non streamed requests,
// extended with the orchestration details.
type ChatCompletion struct {
	ID                    string       `json:"id"`
	Object                string       `json:"object"`
	Created               int64        `json:"created"`
	Model                 string       `json:"model"`
	Provider              string       `json:"provider"`
	Choices               []ChatChoice `json:"choices"`
	Usage                 ChatUsage    `json:"usage"`
	ToolCalls             []tool.Call  `json:"tool_calls"`
	FallbackUsed          bool         `json:"fallback_used"`
	IterationLimitReached bool         `json:"iteration_limit_reached"`
	ContextOverflow       bool         `json:"context_overflow"`
	DroppedMessages       int          `json:"dropped_messages"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Cost             string `json:"cost"`
}

// NewChatCompletion maps an orchestrator response.
func NewChatCompletion(resp *orchestrator.Response) ChatCompletion {
	calls := resp.ToolCalls
	if calls == nil {
		calls = []tool.Call{}
	}
	return ChatCompletion{
		ID:       resp.ID,
		Object:   "chat.completion",
		Created:  resp.Created.Unix(),
		Model:    resp.Model,
		Provider: resp.Provider,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: resp.Content},
			FinishReason: resp.FinishReason,
		}},
		Usage: ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             resp.Usage.Cost.StringFixed(model.CostPrecision),
		},
		ToolCalls:             calls,
		FallbackUsed:          resp.FallbackUsed,
		IterationLimitReached: resp.IterationLimitReached,
		ContextOverflow:       resp.ContextOverflow,
		DroppedMessages:       resp.DroppedMessages,
	}
}

// ChatCompletionChunk is one server sent event of a streamed answer.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type ChunkDelta struct {
	Content string `json:"content"`
}

// NewChatCompletionChunk maps a stream chunk.
func NewChatCompletionChunk(chunk stream.Chunk) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      chunk.ID,
		Object:  "chat.completion.chunk",
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: []ChunkChoice{{
			Index:        0,
			Delta:        ChunkDelta{Content: chunk.Delta},
			FinishReason: chunk.FinishReason,
		}},
	}
}
