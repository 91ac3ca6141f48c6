package responses

import (
	"time"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// UsageSummary is the body of GET /v1/usage.
type UsageSummary struct {
	UserID        string  `json:"user_id"`
	Tier          string  `json:"tier"`
	TokensUsed    int64   `json:"tokens_used"`
	MonthlyLimit  int64   `json:"monthly_limit"`
	Remaining     int64   `json:"remaining"`
	PercentUsed   float64 `json:"percent_used"`
	OverageTokens int64   `json:"overage_tokens"`
	BaseCost      string  `json:"base_cost"`
	OverageCost   string  `json:"overage_cost"`
	Total         string  `json:"total"`
	PeriodStart   string  `json:"period_start"`
	PeriodEnd     string  `json:"period_end"`
}

func NewUsageSummary(s *usage.Summary) UsageSummary {
	return UsageSummary{
		UserID:        s.UserID,
		Tier:          string(s.Tier),
		TokensUsed:    s.TokensUsed,
		MonthlyLimit:  s.MonthlyLimit,
		Remaining:     s.Remaining,
		PercentUsed:   s.PercentUsed,
		OverageTokens: s.OverageTokens,
		BaseCost:      s.BaseCost.StringFixed(2),
		OverageCost:   s.OverageCost.StringFixed(4),
		Total:         s.Total.StringFixed(4),
		PeriodStart:   s.PeriodStart.Format(time.RFC3339),
		PeriodEnd:     s.PeriodEnd.Format(time.RFC3339),
	}
}

// QuotaResponse is returned by the admin quota endpoints.
type QuotaResponse struct {
	UserID       string `json:"user_id"`
	Tier         string `json:"tier"`
	TokensUsed   int64  `json:"tokens_used"`
	MonthlyLimit int64  `json:"monthly_limit"`
	PeriodStart  string `json:"period_start"`
}

func NewQuotaResponse(q *usage.Quota) QuotaResponse {
	return QuotaResponse{
		UserID:       q.UserID,
		Tier:         string(q.Tier),
		TokensUsed:   q.TokensUsed,
		MonthlyLimit: q.MonthlyLimit,
		PeriodStart:  q.PeriodStart.Format(time.RFC3339),
	}
}

// ResetResponse is returned by POST /v1/admin/quotas/reset.
type ResetResponse struct {
	Reset int64 `json:"reset"`
}

// AuditList is the body of GET /v1/admin/audit.
type AuditList struct {
	Object string        `json:"object"`
	Data   []audit.Entry `json:"data"`
}
