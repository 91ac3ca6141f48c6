package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool carries a tool observation back to the model inside the tool loop.
	RoleTool Role = "tool"
)

// Message is one entry of a conversation. Treat it as immutable once created.
type Message struct {
	Role         Role
	Content      string
	ApproxTokens int
	ToolCallID   string
	ToolCalls    []ToolCallRequest
}

// ToolCallRequest is a model's request to run a tool. Arguments holds the raw JSON object.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CompletionRequest is the payload handed to a provider adapter.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	Tools       []ToolDefinition
}

// Completion is a single model turn: either a final answer or a set of tool calls.
// Token counts are zero when the provider does not report usage.
type Completion struct {
	Content          string
	ToolCalls        []ToolCallRequest
	PromptTokens     int
	CompletionTokens int
}

// WantsTools reports whether the model asked for at least one tool call.
func (c *Completion) WantsTools() bool {
	return c != nil && len(c.ToolCalls) > 0
}

// Provider is the opaque completion function of one model vendor.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Resolver returns the adapter registered for a provider name.
type Resolver interface {
	Resolve(provider string) (Provider, error)
}

// ErrProvider marks any upstream failure: network, auth, rate limit or an unknown provider.
var ErrProvider = errors.New("provider error")

// ProviderError wraps an adapter failure with the provider and model involved.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s (model %s) failed", e.Provider, e.Model)
	}
	return fmt.Sprintf("provider %s (model %s) failed: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider, model string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Err: err}
}
