package centraldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/centraldb/migrations"
)

// runMigrations brings the central database schema up to date using
// golang-migrate's advisory-locked Up(), the same pattern the teacher
// uses for its own Postgres metadata store.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("centraldb: open for migration: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("centraldb: ping for migration: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "nimbusio_central",
	})
	if err != nil {
		return fmt.Errorf("centraldb: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("centraldb: create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("centraldb: create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("centraldb: migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("centraldb: read migration version: %w", err)
	}
	if dirty {
		logger.Warn("centraldb schema is in a dirty state", "version", version)
	}

	return nil
}
