package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloo-solutions/newsvec/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// RunMigrations applies all pending up migrations and returns the resulting
// schema version.
func RunMigrations(databaseURL string, logger *zap.Logger) (uint, error) {
	return apply(databaseURL, logger, "up", (*migrate.Migrate).Up)
}

// RollbackMigrations reverts every applied migration.
func RollbackMigrations(databaseURL string, logger *zap.Logger) (uint, error) {
	return apply(databaseURL, logger, "down", (*migrate.Migrate).Down)
}

func apply(databaseURL string, logger *zap.Logger, direction string, step func(*migrate.Migrate) error) (uint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	stepErr := step(m)
	if stepErr != nil && !errors.Is(stepErr, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply %s migrations: %w", direction, stepErr)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("migrations: no version applied", zap.String("direction", direction))
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}

	if errors.Is(stepErr, migrate.ErrNoChange) {
		logger.Info("migrations: database is up to date", zap.Uint("version", version))
	} else {
		logger.Info("migrations: applied successfully",
			zap.String("direction", direction),
			zap.Uint("version", version),
		)
	}
	return version, nil
}
