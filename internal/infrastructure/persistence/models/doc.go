// Package models contains GORM-specific persistence models that map to
// database tables. They are separate from the domain entities in
// internal/domain/sync so the domain layer stays free of ORM concerns;
// each model carries the GORM annotations and a ToDomain/FromDomain pair.
package models
