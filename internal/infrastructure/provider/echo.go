package provider

import (
	"context"
	"strings"

	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/token"
)

// EchoAdapter answers with the last user message. It needs no network and
// serves local development and smoke tests.
type EchoAdapter struct {
	estimator token.Estimator
}

var _ llm.Provider = (*EchoAdapter)(nil)

func NewEchoAdapter(estimator token.Estimator) *EchoAdapter {
	if estimator == nil {
		estimator = token.Default
	}
	return &EchoAdapter{estimator: estimator}
}

func (a *EchoAdapter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	content := "Echo: " + strings.TrimSpace(last)
	return &llm.Completion{
		Content:          content,
		PromptTokens:     token.CountMessages(a.estimator, req.Messages),
		CompletionTokens: a.estimator.Estimate(content),
	}, nil
}
