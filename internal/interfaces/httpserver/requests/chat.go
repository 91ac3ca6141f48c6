package requests

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// NewValidator returns a validator that knows the chatrole and tier tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("chatrole", func(fl validator.FieldLevel) bool {
		switch llm.Role(fl.Field().String()) {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		_, err := usage.ParseTier(fl.Field().String())
		return err == nil
	})
	return v
}

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,chatrole"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model             string        `json:"model,omitempty"`
	Messages          []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Tools             []string      `json:"tools,omitempty" validate:"omitempty,dive,required"`
	MaxToolIterations int           `json:"max_tool_iterations,omitempty" validate:"gte=0,lte=50"`
	Temperature       *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens         int           `json:"max_tokens,omitempty" validate:"gte=0"`
	Stream            bool          `json:"stream,omitempty"`
	SessionID         string        `json:"session_id,omitempty" validate:"max=255"`
}

// ToDomain converts the request for the orchestrator.
func (r ChatCompletionRequest) ToDomain(requestID, userID string) orchestrator.Request {
	messages := make([]llm.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return orchestrator.Request{
		RequestID:         requestID,
		UserID:            userID,
		SessionID:         r.SessionID,
		Messages:          messages,
		Model:             strings.TrimSpace(r.Model),
		Tools:             r.Tools,
		MaxToolIterations: r.MaxToolIterations,
		Temperature:       r.Temperature,
		MaxTokens:         r.MaxTokens,
	}
}

// SetTierRequest is the body of PUT /v1/admin/quotas/:user_id.
type SetTierRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
}

// ValidationMessage flattens validator errors into one readable line.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
