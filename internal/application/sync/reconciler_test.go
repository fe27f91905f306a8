package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

func testMappings(t *testing.T) *sync.MappingSet {
	t.Helper()
	set, err := sync.NewMappingSet([]sync.TableMapping{
		{
			SourceTable: "customers",
			TargetType:  "res.partner",
			ListPath:    "/v1/customers",
			IDField:     "id",
			Fields: []sync.FieldMapping{
				{Source: "name", Target: "name", Required: true, Transform: "trim"},
				{Source: "email", Target: "email", Transform: "lower"},
			},
		},
		{
			SourceTable: "orders",
			TargetType:  "sale.order",
			ListPath:    "/v1/orders",
			IDField:     "id",
			Fields: []sync.FieldMapping{
				{Source: "number", Target: "name", Required: true},
				{Source: "total", Target: "amount_total", Transform: "decimal"},
				{Source: "customer_id", Target: "partner_id", Required: true, Ref: &sync.ForeignKeyRef{SourceTable: "customers"}},
			},
		},
	})
	require.NoError(t, err)
	return set
}

func newTestReconciler(t *testing.T) (*Reconciler, *memIDMappingRepo, *memTargetWriter) {
	t.Helper()
	idmap := newMemIDMappingRepo()
	target := newMemTargetWriter()
	return NewReconciler(testMappings(t), idmap, target, zap.NewNop()), idmap, target
}

func TestReconciler_TransformAndInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles a flat record and creates the mapping", func(t *testing.T) {
		r, idmap, target := newTestReconciler(t)

		result, err := r.TransformAndInsert(ctx, "acct-1", "customers", sync.SourceRecord{
			"id":    "42",
			"name":  "  Jane Smith ",
			"email": "Jane@Example.COM",
		})
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Positive(t, result.TargetID)

		targetID, err := idmap.Resolve(ctx, "acct-1", "customers", "42")
		require.NoError(t, err)
		assert.Equal(t, result.TargetID, targetID)

		fields := target.fields["acct-1/res.partner/customers/42"]
		assert.Equal(t, "Jane Smith", fields["name"])
		assert.Equal(t, "jane@example.com", fields["email"])
	})

	t.Run("replay upserts instead of duplicating", func(t *testing.T) {
		r, _, target := newTestReconciler(t)
		record := sync.SourceRecord{"id": "42", "name": "Jane"}

		first, err := r.TransformAndInsert(ctx, "acct-1", "customers", record)
		require.NoError(t, err)
		second, err := r.TransformAndInsert(ctx, "acct-1", "customers", record)
		require.NoError(t, err)

		assert.True(t, first.Created)
		assert.False(t, second.Created)
		assert.Equal(t, first.TargetID, second.TargetID)
		assert.Equal(t, 1, target.rowCount())
	})

	t.Run("unknown source table is a transform error", func(t *testing.T) {
		r, _, _ := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "payments", sync.SourceRecord{"id": "1"})
		assert.Equal(t, sync.ErrorKindTransform, sync.KindOf(err))
	})

	t.Run("record without id field is a validation error", func(t *testing.T) {
		r, _, _ := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "customers", sync.SourceRecord{"name": "Jane"})
		assert.Equal(t, sync.ErrorKindValidation, sync.KindOf(err))
	})

	t.Run("missing required field is a validation error", func(t *testing.T) {
		r, _, _ := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "customers", sync.SourceRecord{"id": "42"})
		assert.Equal(t, sync.ErrorKindValidation, sync.KindOf(err))
	})

	t.Run("bad transform input is a transform error", func(t *testing.T) {
		r, _, target := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "orders", sync.SourceRecord{
			"id":          "7",
			"number":      "SO-7",
			"total":       "ten dollars",
			"customer_id": "42",
		})
		assert.Equal(t, sync.ErrorKindTransform, sync.KindOf(err))
		assert.Zero(t, target.rowCount())
	})

	t.Run("target store failure is a constraint error", func(t *testing.T) {
		r, _, target := newTestReconciler(t)
		target.failAll = assert.AnError

		_, err := r.TransformAndInsert(ctx, "acct-1", "customers", sync.SourceRecord{"id": "42", "name": "Jane"})
		assert.Equal(t, sync.ErrorKindConstraint, sync.KindOf(err))
	})
}

func TestReconciler_ForeignKeys(t *testing.T) {
	ctx := context.Background()

	order999 := sync.SourceRecord{
		"id":          "999",
		"number":      "SO-999",
		"total":       "150.00",
		"customer_id": "42",
	}

	t.Run("order referencing unmapped customer is rejected whole", func(t *testing.T) {
		r, idmap, target := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "orders", order999)

		assert.Equal(t, sync.ErrorKindMissingDependency, sync.KindOf(err))
		// No partial row and no mapping may exist for the rejected child
		assert.Zero(t, target.rowCount())
		_, err = idmap.Resolve(ctx, "acct-1", "orders", "999")
		assert.ErrorIs(t, err, sync.ErrMappingNotFound)
	})

	t.Run("succeeds once the parent is mapped", func(t *testing.T) {
		r, idmap, target := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "orders", order999)
		require.Equal(t, sync.ErrorKindMissingDependency, sync.KindOf(err))

		customer, err := r.TransformAndInsert(ctx, "acct-1", "customers", sync.SourceRecord{"id": "42", "name": "Jane"})
		require.NoError(t, err)

		order, err := r.TransformAndInsert(ctx, "acct-1", "orders", order999)
		require.NoError(t, err)
		assert.True(t, order.Created)

		// The foreign key resolved to the parent's internal id
		fields := target.fields["acct-1/sale.order/orders/999"]
		assert.Equal(t, customer.TargetID, fields["partner_id"])
		assert.Equal(t, "150", fields["amount_total"])

		targetID, err := idmap.Resolve(ctx, "acct-1", "orders", "999")
		require.NoError(t, err)
		assert.Equal(t, order.TargetID, targetID)
	})

	t.Run("mappings are scoped per account", func(t *testing.T) {
		r, _, _ := newTestReconciler(t)

		_, err := r.TransformAndInsert(ctx, "acct-1", "customers", sync.SourceRecord{"id": "42", "name": "Jane"})
		require.NoError(t, err)

		// The same order under another scope must not see acct-1's mapping
		_, err = r.TransformAndInsert(ctx, "acct-2", "orders", order999)
		assert.Equal(t, sync.ErrorKindMissingDependency, sync.KindOf(err))
	})

	t.Run("optional unresolved reference is skipped", func(t *testing.T) {
		set, err := sync.NewMappingSet([]sync.TableMapping{
			{
				SourceTable: "customers",
				TargetType:  "res.partner",
				ListPath:    "/v1/customers",
				IDField:     "id",
				Fields:      []sync.FieldMapping{{Source: "name", Target: "name", Required: true}},
			},
			{
				SourceTable: "orders",
				TargetType:  "sale.order",
				ListPath:    "/v1/orders",
				IDField:     "id",
				Fields: []sync.FieldMapping{
					{Source: "number", Target: "name", Required: true},
					{Source: "customer_id", Target: "partner_id", Ref: &sync.ForeignKeyRef{SourceTable: "customers"}},
				},
			},
		})
		require.NoError(t, err)
		target := newMemTargetWriter()
		r := NewReconciler(set, newMemIDMappingRepo(), target, zap.NewNop())

		result, err := r.TransformAndInsert(ctx, "acct-1", "orders", sync.SourceRecord{
			"id":          "7",
			"number":      "SO-7",
			"customer_id": "42",
		})
		require.NoError(t, err)
		assert.True(t, result.Created)

		fields := target.fields["acct-1/sale.order/orders/7"]
		_, hasPartner := fields["partner_id"]
		assert.False(t, hasPartner)
	})
}
