package usage

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a subscription level. It decides the monthly token limit.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// TierLimits are the monthly token limits of each tier.
var TierLimits = map[Tier]int64{
	TierFree:       100_000,
	TierPro:        1_000_000,
	TierEnterprise: 10_000_000,
}

// TierPricing is the monthly base price of each tier in USD.
var TierPricing = map[Tier]decimal.Decimal{
	TierFree:       decimal.Zero,
	TierPro:        decimal.RequireFromString("29.99"),
	TierEnterprise: decimal.RequireFromString("299.99"),
}

// OveragePricePerK is billed per 1K tokens used above the monthly limit.
var OveragePricePerK = decimal.RequireFromString("0.002")

// ParseTier normalises s into a known tier.
func ParseTier(s string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(s)))
	if tier == "" {
		return TierFree, nil
	}
	if _, ok := TierLimits[tier]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return tier, nil
}

// Limit returns the monthly token limit of the tier.
func (t Tier) Limit() int64 {
	if limit, ok := TierLimits[t]; ok {
		return limit
	}
	return TierLimits[TierFree]
}

// Quota is a user's token allowance for the current period.
type Quota struct {
	UserID       string    `json:"user_id"`
	Tier         Tier      `json:"tier"`
	TokensUsed   int64     `json:"tokens_used"`
	MonthlyLimit int64     `json:"monthly_limit"`
	PeriodStart  time.Time `json:"period_start"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Allows reports whether the quota admits another request.
func (q Quota) Allows() bool {
	return q.TokensUsed < q.MonthlyLimit
}

// Remaining is the number of tokens left, never negative.
func (q Quota) Remaining() int64 {
	if q.TokensUsed >= q.MonthlyLimit {
		return 0
	}
	return q.MonthlyLimit - q.TokensUsed
}

// PeriodEnd is when the quota resets.
func (q Quota) PeriodEnd() time.Time {
	return q.PeriodStart.AddDate(0, 1, 0)
}

// Expired reports whether the period has ended at now.
func (q Quota) Expired(now time.Time) bool {
	return !now.Before(q.PeriodEnd())
}

// PeriodStartFor returns the first instant of the month containing t, in UTC.
func PeriodStartFor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NewQuota seeds a quota for tier starting at the month of now.
func NewQuota(userID string, tier Tier, now time.Time) Quota {
	return Quota{
		UserID:       userID,
		Tier:         tier,
		MonthlyLimit: tier.Limit(),
		PeriodStart:  PeriodStartFor(now),
		UpdatedAt:    now,
	}
}

// Record is one billed unit of work.
type Record struct {
	ID               string          `json:"id"`
	RequestID        string          `json:"request_id"`
	UserID           string          `json:"user_id"`
	SessionID        string          `json:"session_id,omitempty"`
	Model            string          `json:"model"`
	Provider         string          `json:"provider"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	Cost             decimal.Decimal `json:"cost"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TotalTokens is prompt plus completion tokens.
func (r Record) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Summary is a user facing view of a quota and its bill.
type Summary struct {
	UserID        string          `json:"user_id"`
	Tier          Tier            `json:"tier"`
	TokensUsed    int64           `json:"tokens_used"`
	MonthlyLimit  int64           `json:"monthly_limit"`
	Remaining     int64           `json:"remaining"`
	PercentUsed   float64         `json:"percent_used"`
	OverageTokens int64           `json:"overage_tokens"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	OverageCost   decimal.Decimal `json:"overage_cost"`
	Total         decimal.Decimal `json:"total"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
}

// Summarize computes the bill of q.
func Summarize(q Quota) Summary {
	overage := q.TokensUsed - q.MonthlyLimit
	if overage < 0 {
		overage = 0
	}
	percent := 0.0
	if q.MonthlyLimit > 0 {
		percent, _ = decimal.NewFromInt(q.TokensUsed * 100).
			Div(decimal.NewFromInt(q.MonthlyLimit)).
			Round(2).
			Float64()
	}
	base := TierPricing[q.Tier]
	overageCost := decimal.NewFromInt(overage).
		Div(decimal.NewFromInt(1000)).
		Mul(OveragePricePerK).
		Round(4)
	return Summary{
		UserID:        q.UserID,
		Tier:          q.Tier,
		TokensUsed:    q.TokensUsed,
		MonthlyLimit:  q.MonthlyLimit,
		Remaining:     q.Remaining(),
		PercentUsed:   percent,
		OverageTokens: overage,
		BaseCost:      base,
		OverageCost:   overageCost,
		Total:         base.Add(overageCost).Round(4),
		PeriodStart:   q.PeriodStart,
		PeriodEnd:     q.PeriodEnd(),
	}
}
