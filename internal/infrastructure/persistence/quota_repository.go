package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/database/dbschema"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// QuotaRepository keeps quota counters in Postgres. Reservations lock the
// user's row so concurrent admissions cannot overshoot the limit.
type QuotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository constructs the repository.
func NewQuotaRepository(db *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

var (
	_ usage.QuotaStore    = (*QuotaRepository)(nil)
	_ usage.QuotaReserver = (*QuotaRepository)(nil)
	_ usage.QuotaAdmin    = (*QuotaRepository)(nil)
)

// GetQuota loads the quota of userID.
func (r *QuotaRepository) GetQuota(ctx context.Context, userID string) (*usage.Quota, error) {
	var row dbschema.Quota
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, r.mapError(ctx, err, "failed to load quota")
	}
	return row.EtoD(), nil
}

// AddUsage increments the counter without checking the limit.
func (r *QuotaRepository) AddUsage(ctx context.Context, userID string, tokens int64) error {
	return r.adjust(ctx, userID, tokens)
}

// Reserve checks and increments inside one transaction holding the row lock.
func (r *QuotaRepository) Reserve(ctx context.Context, userID string, tokens int64) (*usage.Quota, error) {
	var reserved *usage.Quota
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row dbschema.Quota
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&row).Error; err != nil {
			return err
		}
		if !row.EtoD().Allows() {
			return usage.ErrQuotaExceeded
		}
		row.TokensUsed += tokens
		row.UpdatedAt = time.Now().UTC()
		if err := tx.Model(&dbschema.Quota{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"tokens_used": row.TokensUsed, "updated_at": row.UpdatedAt}).Error; err != nil {
			return err
		}
		reserved = row.EtoD()
		return nil
	})
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			return nil, err
		}
		return nil, r.mapError(ctx, err, "failed to reserve quota")
	}
	return reserved, nil
}

// Commit replaces the reservation with the actual usage.
func (r *QuotaRepository) Commit(ctx context.Context, userID string, reserved, actual int64) error {
	return r.adjust(ctx, userID, actual-reserved)
}

// Release returns reserved tokens.
func (r *QuotaRepository) Release(ctx context.Context, userID string, reserved int64) error {
	return r.adjust(ctx, userID, -reserved)
}

func (r *QuotaRepository) adjust(ctx context.Context, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&dbschema.Quota{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"tokens_used": gorm.Expr("GREATEST(tokens_used + ?, 0)", delta),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return r.mapError(ctx, result.Error, "failed to update quota usage")
	}
	if result.RowsAffected == 0 {
		return r.mapError(ctx, gorm.ErrRecordNotFound, "failed to update quota usage")
	}
	return nil
}

// SetTier upserts the quota of userID. Existing usage is kept.
func (r *QuotaRepository) SetTier(ctx context.Context, userID string, tier usage.Tier, now time.Time) (*usage.Quota, error) {
	row := dbschema.NewSchemaQuota(usage.NewQuota(userID, tier, now))
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "monthly_limit", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, r.mapError(ctx, err, "failed to set quota tier")
	}

	var stored dbschema.Quota
	if err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, r.mapError(ctx, err, "failed to reload quota")
	}
	return stored.EtoD(), nil
}

// ResetExpired starts a new period for every quota whose period has ended.
func (r *QuotaRepository) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	start := usage.PeriodStartFor(now)
	result := r.db.WithContext(ctx).
		Model(&dbschema.Quota{}).
		Where("period_start < ?", start).
		Updates(map[string]any{
			"tokens_used":  0,
			"period_start": start,
			"updated_at":   now.UTC(),
		})
	if result.Error != nil {
		return 0, r.mapError(ctx, result.Error, "failed to reset expired quotas")
	}
	return result.RowsAffected, nil
}

func (r *QuotaRepository) mapError(ctx context.Context, err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"quota not found", usage.ErrQuotaNotFound, "3c1d6a52-8f4e-4b0a-9d27-5e6f7a8b9c01")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
		message, err, "4d2e7b63-9a5f-4c1b-8e38-6f7a8b9c0d12")
}
