package dbschema

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/tool"
)

// AuditEntry stores the outcome of one request together with its tool trace.
type AuditEntry struct {
	ID               string         `gorm:"type:varchar(64);primaryKey"`
	RequestID        string         `gorm:"type:varchar(64);not null"`
	UserID           string         `gorm:"type:varchar(255);not null;index"`
	SessionID        string         `gorm:"type:varchar(255)"`
	RequestedModel   string         `gorm:"type:varchar(128)"`
	Model            string         `gorm:"type:varchar(128);not null"`
	Provider         string         `gorm:"type:varchar(64)"`
	Status           string         `gorm:"type:varchar(32);not null"`
	FinishReason     string         `gorm:"type:varchar(32)"`
	FallbackUsed     bool           `gorm:"not null;default:false"`
	DroppedMessages  int            `gorm:"not null;default:0"`
	ContextOverflow  bool           `gorm:"not null;default:false"`
	PromptTokens     int            `gorm:"not null;default:0"`
	CompletionTokens int            `gorm:"not null;default:0"`
	ToolCalls        datatypes.JSON `gorm:"type:jsonb"`
	Error            string         `gorm:"type:text"`
	CreatedAt        time.Time
}

// NewSchemaAuditEntry converts an audit entry into a row.
func NewSchemaAuditEntry(e audit.Entry) (*AuditEntry, error) {
	calls := e.ToolCalls
	if calls == nil {
		calls = []tool.Call{}
	}
	trace, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("marshal tool trace: %w", err)
	}
	return &AuditEntry{
		ID:               e.ID,
		RequestID:        e.RequestID,
		UserID:           e.UserID,
		SessionID:        e.SessionID,
		RequestedModel:   e.RequestedModel,
		Model:            e.Model,
		Provider:         e.Provider,
		Status:           string(e.Status),
		FinishReason:     e.FinishReason,
		FallbackUsed:     e.FallbackUsed,
		DroppedMessages:  e.DroppedMessages,
		ContextOverflow:  e.ContextOverflow,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		ToolCalls:        datatypes.JSON(trace),
		Error:            e.Error,
		CreatedAt:        e.CreatedAt,
	}, nil
}

// EtoD converts the row back to an audit entry.
func (e *AuditEntry) EtoD() (audit.Entry, error) {
	entry := audit.Entry{
		ID:               e.ID,
		RequestID:        e.RequestID,
		UserID:           e.UserID,
		SessionID:        e.SessionID,
		RequestedModel:   e.RequestedModel,
		Model:            e.Model,
		Provider:         e.Provider,
		Status:           audit.Status(e.Status),
		FinishReason:     e.FinishReason,
		FallbackUsed:     e.FallbackUsed,
		DroppedMessages:  e.DroppedMessages,
		ContextOverflow:  e.ContextOverflow,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		Error:            e.Error,
		CreatedAt:        e.CreatedAt,
	}
	if len(e.ToolCalls) > 0 {
		if err := json.Unmarshal(e.ToolCalls, &entry.ToolCalls); err != nil {
			return audit.Entry{}, fmt.Errorf("unmarshal tool trace: %w", err)
		}
	}
	return entry, nil
}
