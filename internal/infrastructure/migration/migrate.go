// Package migration runs the sync schema migrations through golang-migrate.
// cmd/migrate is the only caller; the server never migrates on boot.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator applies file-based SQL migrations against postgres
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New wraps an open database connection in a Migrator reading migration
// pairs from dir
func New(db *sql.DB, dir string, log *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("open migration source %s: %w", dir, err)
	}

	return &Migrator{m: m, log: log}, nil
}

// Up applies every pending migration
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			g.log.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	g.reportVersion("Schema migrated")
	return nil
}

// Down rolls back every applied migration
func (g *Migrator) Down() error {
	if err := g.m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			g.log.Info("No applied migrations to roll back")
			return nil
		}
		return fmt.Errorf("roll back migrations: %w", err)
	}
	g.log.Info("Schema rolled back to empty")
	return nil
}

// Steps applies n migrations forward, or -n backward
func (g *Migrator) Steps(n int) error {
	if err := g.m.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			g.log.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("apply %d migration steps: %w", n, err)
	}
	g.reportVersion("Schema stepped")
	return nil
}

// GoTo migrates up or down until the schema sits at version
func (g *Migrator) GoTo(version uint) error {
	if err := g.m.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			g.log.Info("Schema already at requested version", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("migrate to version %d: %w", version, err)
	}
	g.reportVersion("Schema migrated to version")
	return nil
}

// Version reports the current schema version. A fresh database reports
// version 0 and no error.
func (g *Migrator) Version() (uint, bool, error) {
	version, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force stamps the schema version without running any SQL. Only useful for
// clearing a dirty flag after a failed migration was repaired by hand.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return fmt.Errorf("force schema version %d: %w", version, err)
	}
	g.log.Warn("Schema version forced without running SQL", zap.Int("version", version))
	return nil
}

// Drop removes every object in the connected database
func (g *Migrator) Drop() error {
	if err := g.m.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	g.log.Warn("All database objects dropped")
	return nil
}

// Close releases the source and database handles
func (g *Migrator) Close() error {
	sourceErr, dbErr := g.m.Close()
	if sourceErr != nil {
		return fmt.Errorf("close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database handle: %w", dbErr)
	}
	return nil
}

func (g *Migrator) reportVersion(msg string) {
	version, dirty, err := g.m.Version()
	if err != nil {
		g.log.Info(msg)
		return
	}
	g.log.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
}
