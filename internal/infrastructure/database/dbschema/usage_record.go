package dbschema

import (
	"time"

	"github.com/shopspring/decimal"

	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// UsageRecord is one billed request.
type UsageRecord struct {
	ID               string          `gorm:"type:varchar(64);primaryKey"`
	RequestID        string          `gorm:"type:varchar(64);not null;index"`
	UserID           string          `gorm:"type:varchar(255);not null;index"`
	SessionID        string          `gorm:"type:varchar(255)"`
	Model            string          `gorm:"type:varchar(128);not null"`
	Provider         string          `gorm:"type:varchar(64);not null"`
	PromptTokens     int             `gorm:"not null"`
	CompletionTokens int             `gorm:"not null"`
	Cost             decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	CreatedAt        time.Time
}

func NewSchemaUsageRecord(r usage.Record) *UsageRecord {
	return &UsageRecord{
		ID:               r.ID,
		RequestID:        r.RequestID,
		UserID:           r.UserID,
		SessionID:        r.SessionID,
		Model:            r.Model,
		Provider:         r.Provider,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		Cost:             r.Cost,
		CreatedAt:        r.CreatedAt,
	}
}

func (r *UsageRecord) EtoD() usage.Record {
	return usage.Record{
		ID:               r.ID,
		RequestID:        r.RequestID,
		UserID:           r.UserID,
		SessionID:        r.SessionID,
		Model:            r.Model,
		Provider:         r.Provider,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		Cost:             r.Cost,
		CreatedAt:        r.CreatedAt,
	}
}
