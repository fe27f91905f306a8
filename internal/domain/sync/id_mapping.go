package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// IDMapping Entity
// ---------------------------------------------------------------------------

// IDMapping represents a durable correspondence between one external record
// and one internal record. The triple (scope, source table, source id) is
// unique; a mapping is created once when a record first reconciles and is
// read-only afterwards.
type IDMapping struct {
	// ID is the unique identifier of this mapping
	ID uuid.UUID
	// Scope is the account/project namespace of the mapping
	Scope string
	// SourceTable is the external resource name (e.g. "orders")
	SourceTable string
	// SourceID is the external record identifier
	SourceID string
	// TargetType is the internal entity type the record maps to
	TargetType string
	// TargetID is the internal record identifier
	TargetID int64
	// CreatedAt is when the mapping was created
	CreatedAt time.Time
}

// NewIDMapping creates a new ID mapping
func NewIDMapping(scope, sourceTable, sourceID, targetType string, targetID int64) (*IDMapping, error) {
	if scope == "" || sourceTable == "" || sourceID == "" {
		return nil, ErrMappingInvalidKey
	}
	if targetType == "" || targetID <= 0 {
		return nil, ErrMappingInvalidSpec
	}

	return &IDMapping{
		ID:          uuid.New(),
		Scope:       scope,
		SourceTable: sourceTable,
		SourceID:    sourceID,
		TargetType:  targetType,
		TargetID:    targetID,
		CreatedAt:   time.Now(),
	}, nil
}

// ---------------------------------------------------------------------------
// IDMappingRepository Interfaces
// ---------------------------------------------------------------------------

// IDMappingResolver defines the read side of the mapping table
type IDMappingResolver interface {
	// Resolve returns the internal id mapped to an external record.
	// Returns ErrMappingNotFound when no mapping exists; the caller decides
	// whether that is fatal.
	Resolve(ctx context.Context, scope, sourceTable, sourceID string) (int64, error)

	// FindBySource returns the full mapping row for an external record
	FindBySource(ctx context.Context, scope, sourceTable, sourceID string) (*IDMapping, error)

	// FindByScope lists mappings within a scope, newest first
	FindByScope(ctx context.Context, scope string, sourceTable string, limit, offset int) ([]IDMapping, error)

	// CountByScope counts mappings within a scope
	CountByScope(ctx context.Context, scope string) (int64, error)
}

// IDMappingWriter defines the write side of the mapping table
type IDMappingWriter interface {
	// Create persists a new mapping. Returns ErrDuplicateMapping when the
	// (scope, source table, source id) triple already exists; uniqueness is
	// enforced by a storage-level constraint, not an application lock, so
	// racing creators must treat the duplicate as informational.
	Create(ctx context.Context, mapping *IDMapping) error

	// BulkCreate persists multiple mappings with the same per-entry
	// uniqueness rule. Entries are written independently; partial success
	// is possible and the number of created rows is returned.
	BulkCreate(ctx context.Context, mappings []*IDMapping) (int, error)
}

// IDMappingRepository defines the full interface for mapping persistence
type IDMappingRepository interface {
	IDMappingResolver
	IDMappingWriter
}
