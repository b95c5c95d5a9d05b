package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

const migrationsTable = "syncore_schema_migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the embedded schema migrations on a dedicated connection.
func Migrate(ctx context.Context, dsn string, logger libLog.Logger) error {
	logger = libLog.OrNop(logger)

	db, err := dbOpenFn("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %s", sanitizeSensitiveError(err))
	}

	return runMigrations(ctx, db, logger)
}

func runMigrations(ctx context.Context, db *sql.DB, logger libLog.Logger) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		_ = db.Close()

		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = source.Close()
		_ = db.Close()

		return fmt.Errorf("create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()

		return fmt.Errorf("create migration instance: %w", err)
	}

	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Log(ctx, libLog.LevelWarn, "closing migration instance failed",
				libLog.Any("source_error", srcErr), libLog.Any("database_error", dbErr))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log(ctx, libLog.LevelDebug, "no new migrations found")
			return nil
		}

		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Log(ctx, libLog.LevelInfo, "migrations applied")

	return nil
}
