package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"jan-server/services/orchestrator-api/internal/domain/llm"
)

// OpenAIConfig configures an OpenAI compatible adapter.
type OpenAIConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OpenAIAdapter talks to any endpoint speaking the OpenAI chat completions API.
type OpenAIAdapter struct {
	name   string
	client *openai.Client
}

var _ llm.Provider = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter builds the adapter.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIAdapter{name: name, client: openai.NewClientWithConfig(clientCfg)}
}

// Complete sends one chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	resp, err := a.client.CreateChatCompletion(ctx, toOpenAIRequest(req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, llm.NewProviderError(a.name, req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewProviderError(a.name, req.Model, errors.New("no choices returned"))
	}
	return fromOpenAIResponse(resp), nil
}

func toOpenAIRequest(req llm.CompletionRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, m)
	}
	for _, def := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *llm.Completion {
	msg := resp.Choices[0].Message
	completion := &llm.Completion{
		Content:          msg.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, llm.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return completion
}
