package persistence

import (
	"context"

	"gorm.io/gorm"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/infrastructure/database/dbschema"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// AuditRepository stores request audit entries and their tool traces.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ audit.Repository = (*AuditRepository)(nil)

// RecordAudit inserts entry.
func (r *AuditRepository) RecordAudit(ctx context.Context, entry audit.Entry) error {
	row, err := dbschema.NewSchemaAuditEntry(entry)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map audit entry", err, "7a5b0e96-cd82-4f4e-b16b-9c0d1e2f3a45")
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to persist audit entry", err, "8b6c1fa7-de93-4a5f-827c-0d1e2f3a4b56")
	}
	return nil
}

// ListByUser returns the newest entries of userID first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error) {
	var rows []dbschema.AuditEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list audit entries", err, "9c7d20b8-efa4-4b60-938d-1e2f3a4b5c67")
	}
	out := make([]audit.Entry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].EtoD()
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
				"failed to map audit entry", err, "ad8e31c9-f0b5-4c71-a49e-2f3a4b5c6d78")
		}
		out = append(out, entry)
	}
	return out, nil
}
