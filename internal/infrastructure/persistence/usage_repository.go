package persistence

import (
	"context"

	"gorm.io/gorm"

	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/database/dbschema"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// UsageRepository appends billing records.
type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// RecordUsage inserts record.
func (r *UsageRepository) RecordUsage(ctx context.Context, record usage.Record) error {
	if err := r.db.WithContext(ctx).Create(dbschema.NewSchemaUsageRecord(record)).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to persist usage record", err, "5e3f8c74-ab60-4d2c-9f49-7a8b9c0d1e23")
	}
	return nil
}

// ListByUser returns the newest records of userID first.
func (r *UsageRepository) ListByUser(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	var rows []dbschema.UsageRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list usage records", err, "6f4a9d85-bc71-4e3d-a05a-8b9c0d1e2f34")
	}
	out := make([]usage.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
