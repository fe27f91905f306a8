package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// GormTargetStore implements sync.TargetWriter on the target_records table.
// Rows are keyed by the source identity quad, so replaying a record after a
// partial failure overwrites the earlier row instead of duplicating it.
type GormTargetStore struct {
	db *gorm.DB
}

var _ sync.TargetWriter = (*GormTargetStore)(nil)

// NewGormTargetStore creates a new GormTargetStore
func NewGormTargetStore(db *gorm.DB) *GormTargetStore {
	return &GormTargetStore{db: db}
}

// Upsert writes the reconciled fields and returns the internal record id and
// whether the row was newly created.
func (s *GormTargetStore) Upsert(ctx context.Context, scope, targetType, sourceTable, sourceID string, fields map[string]any) (int64, bool, error) {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return 0, false, fmt.Errorf("persistence: failed to encode target fields: %w", err)
	}

	now := time.Now()

	var existing models.TargetRecordModel
	err = s.db.WithContext(ctx).
		Where("scope = ? AND target_type = ? AND source_table = ? AND source_id = ?",
			scope, targetType, sourceTable, sourceID).
		First(&existing).Error
	if err == nil {
		updateErr := s.db.WithContext(ctx).Model(&existing).
			Updates(map[string]any{"fields": string(encoded), "updated_at": now}).Error
		return existing.ID, false, updateErr
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, err
	}

	record := models.TargetRecordModel{
		Scope:       scope,
		TargetType:  targetType,
		SourceTable: sourceTable,
		SourceID:    sourceID,
		Fields:      string(encoded),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if !isDuplicateKey(err) {
			return 0, false, err
		}
		// A concurrent writer created the row between our read and insert;
		// fall back to updating it.
		if err := s.db.WithContext(ctx).
			Where("scope = ? AND target_type = ? AND source_table = ? AND source_id = ?",
				scope, targetType, sourceTable, sourceID).
			First(&existing).Error; err != nil {
			return 0, false, err
		}
		updateErr := s.db.WithContext(ctx).Model(&existing).
			Updates(map[string]any{"fields": string(encoded), "updated_at": now}).Error
		return existing.ID, false, updateErr
	}

	return record.ID, true, nil
}
