package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// GormIDMappingRepository implements sync.IDMappingRepository using GORM.
// Uniqueness of the (scope, source_table, source_id) triple is enforced by
// the composite unique index on id_mappings.
type GormIDMappingRepository struct {
	db *gorm.DB
}

var _ sync.IDMappingRepository = (*GormIDMappingRepository)(nil)

// NewGormIDMappingRepository creates a new GormIDMappingRepository
func NewGormIDMappingRepository(db *gorm.DB) *GormIDMappingRepository {
	return &GormIDMappingRepository{db: db}
}

// isDuplicateKey reports whether an error is a unique constraint violation.
// Falls back to message sniffing for drivers the dialector does not translate.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// ---------------------------------------------------------------------------
// IDMappingResolver implementation
// ---------------------------------------------------------------------------

// Resolve returns the internal id mapped to an external record
func (r *GormIDMappingRepository) Resolve(ctx context.Context, scope, sourceTable, sourceID string) (int64, error) {
	var model models.IDMappingModel
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND source_table = ? AND source_id = ?", scope, sourceTable, sourceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, sync.ErrMappingNotFound
		}
		return 0, err
	}
	return model.TargetID, nil
}

// FindBySource returns the full mapping row for an external record
func (r *GormIDMappingRepository) FindBySource(ctx context.Context, scope, sourceTable, sourceID string) (*sync.IDMapping, error) {
	var model models.IDMappingModel
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND source_table = ? AND source_id = ?", scope, sourceTable, sourceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByScope lists mappings within a scope, newest first
func (r *GormIDMappingRepository) FindByScope(ctx context.Context, scope string, sourceTable string, limit, offset int) ([]sync.IDMapping, error) {
	query := r.db.WithContext(ctx).Where("scope = ?", scope)
	if sourceTable != "" {
		query = query.Where("source_table = ?", sourceTable)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var mappingModels []models.IDMappingModel
	if err := query.Order("created_at DESC").Find(&mappingModels).Error; err != nil {
		return nil, err
	}

	mappings := make([]sync.IDMapping, len(mappingModels))
	for i, model := range mappingModels {
		mappings[i] = *model.ToDomain()
	}
	return mappings, nil
}

// CountByScope counts mappings within a scope
func (r *GormIDMappingRepository) CountByScope(ctx context.Context, scope string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.IDMappingModel{}).
		Where("scope = ?", scope).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// IDMappingWriter implementation
// ---------------------------------------------------------------------------

// Create persists a new mapping. The storage-level unique index is the only
// arbiter between racing creators.
func (r *GormIDMappingRepository) Create(ctx context.Context, mapping *sync.IDMapping) error {
	var model models.IDMappingModel
	model.FromDomain(mapping)

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s/%s/%s", sync.ErrDuplicateMapping, mapping.Scope, mapping.SourceTable, mapping.SourceID)
		}
		return err
	}
	return nil
}

// BulkCreate persists multiple mappings independently; duplicates are skipped
// and the number of created rows is returned.
func (r *GormIDMappingRepository) BulkCreate(ctx context.Context, mappings []*sync.IDMapping) (int, error) {
	created := 0
	for _, mapping := range mappings {
		if err := r.Create(ctx, mapping); err != nil {
			if errors.Is(err, sync.ErrDuplicateMapping) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
