package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// GormSyncLogRepository implements sync.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

var _ sync.SyncLogRepository = (*GormSyncLogRepository)(nil)

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Append persists a new log entry
func (r *GormSyncLogRepository) Append(ctx context.Context, entry *sync.SyncLog) error {
	var model models.SyncLogModel
	model.FromDomain(entry)
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListByScope lists recent entries for a scope, newest first
func (r *GormSyncLogRepository) ListByScope(ctx context.Context, scope string, limit int) ([]sync.SyncLog, error) {
	if limit < 1 {
		limit = 100
	}

	var logModels []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("scope = ?", scope).
		Order("created_at DESC").
		Limit(limit).
		Find(&logModels).Error; err != nil {
		return nil, err
	}

	logs := make([]sync.SyncLog, len(logModels))
	for i, model := range logModels {
		logs[i] = *model.ToDomain()
	}
	return logs, nil
}

// DeleteOlderThan removes entries created before the cutoff
func (r *GormSyncLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.SyncLogModel{})
	return result.RowsAffected, result.Error
}
