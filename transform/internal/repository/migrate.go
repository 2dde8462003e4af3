package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/riliasov/chilekids-etl-pipeline/transform/migrations"
)

// Migration directions.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// MigrationURL returns the golang-migrate database URL for opts.
func MigrationURL(opts Options) string {
	if strings.EqualFold(opts.Type, TypeSQLite) {
		return "sqlite://" + opts.Path
	}
	return opts.URL
}

// Migrate applies the embedded migrations for opts.Type in the given
// direction. Being already at the target version is not an error.
func Migrate(opts Options, direction string) error {
	dir := TypePostgres
	if strings.EqualFold(opts.Type, TypeSQLite) {
		dir = TypeSQLite
	}
	if direction != MigrateUp && direction != MigrateDown {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, MigrationURL(opts))
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == MigrateUp {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
