package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/migrations"
)

// Store types accepted by RunMigrations.
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// RunMigrations applies the embedded migrations for dbType to db.
// It is idempotent: only pending migrations are executed.
func RunMigrations(db *sql.DB, dbType string, logger *zap.Logger) error {
	var (
		driver migratedb.Driver
		err    error
	)
	switch dbType {
	case TypePostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case TypeSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported database type %q", dbType)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(migrations.FS, dbType)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbType, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Closing m would close db, which the caller owns.
	defer func() {
		if srcErr := src.Close(); srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("type", dbType))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("type", dbType),
		zap.Uint("version", newVersion))
	return nil
}
