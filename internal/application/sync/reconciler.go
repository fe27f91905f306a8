package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// ReconcileResult is the outcome of a successful reconciliation
type ReconcileResult struct {
	// TargetID is the internal record id the source record maps to
	TargetID int64
	// Created is true when the target row was newly inserted, false when an
	// idempotent replay updated or rediscovered an existing row
	Created bool
}

// Reconciler transforms raw external records into internal records using the
// declared table mappings, resolving foreign keys through the ID mapping
// table. Failures are returned as ClassifiedErrors; the caller routes them.
type Reconciler struct {
	mappings *sync.MappingSet
	idmap    sync.IDMappingRepository
	target   sync.TargetWriter
	log      *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(mappings *sync.MappingSet, idmap sync.IDMappingRepository, target sync.TargetWriter, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		mappings: mappings,
		idmap:    idmap,
		target:   target,
		log:      log,
	}
}

// TransformAndInsert reconciles one source record into the target store.
//
// The record is rejected as a whole when a required foreign key cannot be
// resolved: partial records referencing nonexistent parents are never
// written. The target write is an upsert keyed by the source identity, so a
// replay after a partial failure is idempotent; a duplicate mapping raced in
// by a concurrent pass is swallowed as success.
func (r *Reconciler) TransformAndInsert(ctx context.Context, scope, sourceTable string, record sync.SourceRecord) (*ReconcileResult, error) {
	mapping, ok := r.mappings.ForTable(sourceTable)
	if !ok {
		return nil, sync.Classifyf(sync.ErrorKindTransform, "no table mapping declared for %q", sourceTable)
	}

	sourceID, ok := record.GetString(mapping.IDField)
	if !ok || sourceID == "" {
		return nil, sync.Classifyf(sync.ErrorKindValidation, "%s: record has no %q field", sourceTable, mapping.IDField)
	}

	fields, err := r.buildFields(ctx, scope, mapping, record)
	if err != nil {
		return nil, err
	}

	targetID, created, err := r.target.Upsert(ctx, scope, mapping.TargetType, sourceTable, sourceID, fields)
	if err != nil {
		return nil, sync.Wrap(sync.ErrorKindConstraint, fmt.Sprintf("%s/%s: target store rejected the write", sourceTable, sourceID), err)
	}

	if err := r.createMapping(ctx, scope, sourceTable, sourceID, mapping.TargetType, targetID); err != nil {
		return nil, err
	}

	return &ReconcileResult{TargetID: targetID, Created: created}, nil
}

// buildFields applies the field mappings to the source record
func (r *Reconciler) buildFields(ctx context.Context, scope string, mapping *sync.TableMapping, record sync.SourceRecord) (map[string]any, error) {
	fields := make(map[string]any, len(mapping.Fields))

	for _, f := range mapping.Fields {
		value, present := record[f.Source]
		if !present || value == nil {
			if f.Required {
				return nil, sync.Classifyf(sync.ErrorKindValidation, "%s: required field %q is missing", mapping.SourceTable, f.Source)
			}
			continue
		}

		if f.Transform != "" {
			fn, _ := sync.LookupTransform(f.Transform)
			transformed, err := fn(value)
			if err != nil {
				return nil, sync.Wrap(sync.ErrorKindTransform, fmt.Sprintf("%s: field %q", mapping.SourceTable, f.Source), err)
			}
			value = transformed
		}

		if f.Ref != nil {
			refID, ok := record.GetString(f.Source)
			if !ok {
				return nil, sync.Classifyf(sync.ErrorKindTransform, "%s: foreign key field %q is not scalar", mapping.SourceTable, f.Source)
			}
			targetID, err := r.idmap.Resolve(ctx, scope, f.Ref.SourceTable, refID)
			if err != nil {
				if errors.Is(err, sync.ErrMappingNotFound) {
					if f.Required {
						return nil, sync.Classifyf(sync.ErrorKindMissingDependency,
							"%s: parent %s/%s is not mapped yet", mapping.SourceTable, f.Ref.SourceTable, refID)
					}
					r.log.Warn("skipping unresolved optional foreign key",
						zap.String("scope", scope),
						zap.String("source_table", mapping.SourceTable),
						zap.String("field", f.Source),
						zap.String("ref_table", f.Ref.SourceTable),
						zap.String("ref_id", refID),
					)
					continue
				}
				return nil, sync.Wrap(sync.ErrorKindLookup, fmt.Sprintf("%s: resolving %s/%s", mapping.SourceTable, f.Ref.SourceTable, refID), err)
			}
			value = targetID
		}

		fields[f.Target] = value
	}

	return fields, nil
}

// createMapping records the source-to-target correspondence. A duplicate
// raced in by a concurrent pass or an earlier partial run is idempotent
// success, not a failure.
func (r *Reconciler) createMapping(ctx context.Context, scope, sourceTable, sourceID, targetType string, targetID int64) error {
	idMapping, err := sync.NewIDMapping(scope, sourceTable, sourceID, targetType, targetID)
	if err != nil {
		return sync.Wrap(sync.ErrorKindUnknown, "building id mapping", err)
	}

	if err := r.idmap.Create(ctx, idMapping); err != nil {
		if errors.Is(err, sync.ErrDuplicateMapping) {
			r.log.Debug("id mapping already exists",
				zap.String("scope", scope),
				zap.String("source_table", sourceTable),
				zap.String("source_id", sourceID),
			)
			return nil
		}
		return sync.Wrap(sync.ErrorKindUnknown, fmt.Sprintf("%s/%s: persisting id mapping", sourceTable, sourceID), err)
	}
	return nil
}
