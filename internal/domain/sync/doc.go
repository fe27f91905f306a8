// Package sync contains the domain model for marketplace account
// synchronization: connected accounts and their token lifecycle, the
// durable external-to-internal ID mapping table, the dead letter queue
// of failed reconciliations, and the declarative table mappings the
// reconciliation engine executes.
//
// Following the Ports & Adapters pattern, this package defines the
// repository and gateway interfaces; concrete implementations live in
// the infrastructure layer.
package sync
