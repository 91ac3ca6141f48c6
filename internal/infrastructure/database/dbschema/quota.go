package dbschema

import (
	"time"

	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// Quota is the persisted token counter of one user.
type Quota struct {
	UserID       string    `gorm:"type:varchar(255);primaryKey"`
	Tier         string    `gorm:"type:varchar(32);not null;default:'free'"`
	TokensUsed   int64     `gorm:"not null;default:0"`
	MonthlyLimit int64     `gorm:"not null"`
	PeriodStart  time.Time `gorm:"not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSchemaQuota converts a domain quota into a schema row.
func NewSchemaQuota(q usage.Quota) *Quota {
	return &Quota{
		UserID:       q.UserID,
		Tier:         string(q.Tier),
		TokensUsed:   q.TokensUsed,
		MonthlyLimit: q.MonthlyLimit,
		PeriodStart:  q.PeriodStart,
		UpdatedAt:    q.UpdatedAt,
	}
}

// EtoD converts the row back to the domain representation.
func (q *Quota) EtoD() *usage.Quota {
	if q == nil {
		return nil
	}
	return &usage.Quota{
		UserID:       q.UserID,
		Tier:         usage.Tier(q.Tier),
		TokensUsed:   q.TokensUsed,
		MonthlyLimit: q.MonthlyLimit,
		PeriodStart:  q.PeriodStart.UTC(),
		UpdatedAt:    q.UpdatedAt,
	}
}
