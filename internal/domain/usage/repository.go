package usage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrQuotaNotFound means the user has no quota record. Admission denies it.
	ErrQuotaNotFound = errors.New("quota not found")
	// ErrQuotaExceeded means the user's tokens for the period are used up.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUnsupported is returned when the configured store lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported by quota store")
)

// QuotaStore is the externally owned quota counter.
type QuotaStore interface {
	GetQuota(ctx context.Context, userID string) (*Quota, error)
	AddUsage(ctx context.Context, userID string, tokens int64) error
}

// QuotaReserver is implemented by stores that can check and increment
// atomically. Reserve fails with ErrQuotaExceeded under the same predicate as
// Quota.Allows and otherwise adds tokens to the counter.
type QuotaReserver interface {
	Reserve(ctx context.Context, userID string, tokens int64) (*Quota, error)
	// Commit replaces a reservation with the actual usage.
	Commit(ctx context.Context, userID string, reserved, actual int64) error
	Release(ctx context.Context, userID string, reserved int64) error
}

// QuotaAdmin is implemented by stores that support operator actions.
type QuotaAdmin interface {
	SetTier(ctx context.Context, userID string, tier Tier, now time.Time) (*Quota, error)
	ResetExpired(ctx context.Context, now time.Time) (int64, error)
}

// UsageRecorder persists usage records for billing.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, record Record) error
}

// Pricer prices token counts for a model.
type Pricer interface {
	CostOf(model string, promptTokens, completionTokens int) decimal.Decimal
}
