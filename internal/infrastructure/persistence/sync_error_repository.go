package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// GormSyncErrorRepository implements sync.SyncErrorRepository using GORM
type GormSyncErrorRepository struct {
	db *gorm.DB
}

var _ sync.SyncErrorRepository = (*GormSyncErrorRepository)(nil)

// NewGormSyncErrorRepository creates a new GormSyncErrorRepository
func NewGormSyncErrorRepository(db *gorm.DB) *GormSyncErrorRepository {
	return &GormSyncErrorRepository{db: db}
}

// ---------------------------------------------------------------------------
// SyncErrorReader implementation
// ---------------------------------------------------------------------------

// FindByID finds an entry by its ID
func (r *GormSyncErrorRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncError, error) {
	var model models.SyncErrorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrSyncErrorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySource finds the most recent entry for an external record, any state
func (r *GormSyncErrorRepository) FindBySource(ctx context.Context, scope, sourceTable, sourceID string) (*sync.SyncError, error) {
	var model models.SyncErrorModel
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND source_table = ? AND source_id = ?", scope, sourceTable, sourceID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrSyncErrorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPendingBySource finds the pending entry for an external record
func (r *GormSyncErrorRepository) FindPendingBySource(ctx context.Context, scope, sourceTable, sourceID string) (*sync.SyncError, error) {
	var model models.SyncErrorModel
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND source_table = ? AND source_id = ? AND state = ?",
			scope, sourceTable, sourceID, sync.SyncErrorStatePending.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrSyncErrorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List lists entries within a scope with optional filters
func (r *GormSyncErrorRepository) List(ctx context.Context, scope string, filter sync.SyncErrorFilter) ([]sync.SyncError, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncErrorModel{}).Where("scope = ?", scope)
	if filter.State != nil {
		query = query.Where("state = ?", filter.State.String())
	}
	if filter.Kind != nil {
		query = query.Where("kind = ?", filter.Kind.String())
	}
	if filter.SourceTable != "" {
		query = query.Where("source_table = ?", filter.SourceTable)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var entryModels []models.SyncErrorModel
	if err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&entryModels).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]sync.SyncError, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries, total, nil
}

// CountByState counts entries per state within a scope
func (r *GormSyncErrorRepository) CountByState(ctx context.Context, scope string) (map[sync.SyncErrorState]int64, error) {
	type stateCount struct {
		State string
		Count int64
	}

	var rows []stateCount
	if err := r.db.WithContext(ctx).Model(&models.SyncErrorModel{}).
		Select("state, count(*) as count").
		Where("scope = ?", scope).
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[sync.SyncErrorState]int64, len(rows))
	for _, row := range rows {
		counts[sync.SyncErrorState(row.State)] = row.Count
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// SyncErrorWriter implementation
// ---------------------------------------------------------------------------

// Create persists a new entry
func (r *GormSyncErrorRepository) Create(ctx context.Context, entry *sync.SyncError) error {
	var model models.SyncErrorModel
	model.FromDomain(entry)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Save updates an existing entry
func (r *GormSyncErrorRepository) Save(ctx context.Context, entry *sync.SyncError) error {
	var model models.SyncErrorModel
	model.FromDomain(entry)
	return r.db.WithContext(ctx).Save(&model).Error
}
