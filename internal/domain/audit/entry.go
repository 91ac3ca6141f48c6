package audit

import (
	"context"
	"time"

	"jan-server/services/orchestrator-api/internal/domain/tool"
)

// Status is the terminal state of an audited request.
type Status string

const (
	StatusCompleted           Status = "completed"
	StatusIterationLimit      Status = "iteration_limit"
	StatusOutputRejected      Status = "output_rejected"
	StatusUpstreamUnavailable Status = "upstream_unavailable"
)

// Entry is the audit trail of one request, including its tool call trace.
type Entry struct {
	ID               string      `json:"id"`
	RequestID        string      `json:"request_id"`
	UserID           string      `json:"user_id"`
	SessionID        string      `json:"session_id,omitempty"`
	RequestedModel   string      `json:"requested_model,omitempty"`
	Model            string      `json:"model"`
	Provider         string      `json:"provider,omitempty"`
	Status           Status      `json:"status"`
	FinishReason     string      `json:"finish_reason,omitempty"`
	FallbackUsed     bool        `json:"fallback_used"`
	DroppedMessages  int         `json:"dropped_messages"`
	ContextOverflow  bool        `json:"context_overflow"`
	PromptTokens     int         `json:"prompt_tokens"`
	CompletionTokens int         `json:"completion_tokens"`
	ToolCalls        []tool.Call `json:"tool_calls"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Recorder persists audit entries. Failures are logged by the caller.
type Recorder interface {
	RecordAudit(ctx context.Context, entry Entry) error
}

// Repository reads back persisted entries.
type Repository interface {
	Recorder
	ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error)
}
