package sync

import (
	"github.com/erp/marketsync/internal/domain/sync"
)

// DefaultTableMappings declares the marketplace resources synced out of the
// box and how their fields land in the internal store. Order matters:
// customers and products come before the orders that reference them, and
// order items come last.
func DefaultTableMappings() []sync.TableMapping {
	return []sync.TableMapping{
		{
			SourceTable: "customers",
			TargetType:  "customer",
			ListPath:    "/v1/customers",
			IDField:     "id",
			Fields: []sync.FieldMapping{
				{Source: "name", Target: "name", Required: true, Transform: "trim"},
				{Source: "email", Target: "email", Transform: "lower"},
				{Source: "phone", Target: "phone", Transform: "trim"},
				{Source: "country", Target: "country_code", Transform: "upper"},
				{Source: "created_at", Target: "external_created_at", Transform: "time_rfc3339"},
			},
		},
		{
			SourceTable: "products",
			TargetType:  "product",
			ListPath:    "/v1/products",
			IDField:     "id",
			Fields: []sync.FieldMapping{
				{Source: "sku", Target: "code", Required: true, Transform: "trim"},
				{Source: "title", Target: "name", Required: true, Transform: "trim"},
				{Source: "price", Target: "unit_price", Required: true, Transform: "decimal"},
				{Source: "currency", Target: "currency", Transform: "upper"},
				{Source: "stock", Target: "stock_quantity", Transform: "int"},
				{Source: "updated_at", Target: "external_updated_at", Transform: "time_rfc3339"},
			},
		},
		{
			SourceTable: "orders",
			TargetType:  "sales_order",
			ListPath:    "/v1/orders",
			IDField:     "id",
			Fields: []sync.FieldMapping{
				{Source: "number", Target: "order_number", Required: true, Transform: "trim"},
				{Source: "customer_id", Target: "customer_id", Required: true, Ref: &sync.ForeignKeyRef{SourceTable: "customers"}},
				{Source: "status", Target: "status", Transform: "lower"},
				{Source: "total", Target: "total_amount", Required: true, Transform: "decimal"},
				{Source: "currency", Target: "currency", Transform: "upper"},
				{Source: "placed_at", Target: "placed_at", Transform: "time_rfc3339"},
			},
		},
		{
			SourceTable: "order_items",
			TargetType:  "sales_order_item",
			ListPath:    "/v1/order_items",
			IDField:     "id",
			Fields: []sync.FieldMapping{
				{Source: "order_id", Target: "order_id", Required: true, Ref: &sync.ForeignKeyRef{SourceTable: "orders"}},
				{Source: "product_id", Target: "product_id", Required: true, Ref: &sync.ForeignKeyRef{SourceTable: "products"}},
				{Source: "quantity", Target: "quantity", Required: true, Transform: "int"},
				{Source: "unit_price", Target: "unit_price", Required: true, Transform: "decimal"},
			},
		},
	}
}

// DefaultMappingSet builds the validated mapping set for the default catalog
func DefaultMappingSet() (*sync.MappingSet, error) {
	return sync.NewMappingSet(DefaultTableMappings())
}
