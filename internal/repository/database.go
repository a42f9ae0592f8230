package repository

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewDB opens the relational store. dbType is "sqlite" (path) or "postgres" (URL).
func NewDB(dbType, dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	driverName, err := driverFor(dbType)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("Connected to database",
		zap.String("type", dbType),
		zap.String("driver", driverName))
	return db, nil
}

// MigrateDB creates the run history tables.
func MigrateDB(db *sqlx.DB, dbType string, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var driver database.Driver
	switch dbType {
	case "postgres":
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to get database instance for migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbType, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migration was run successfully")
	return nil
}

func driverFor(dbType string) (string, error) {
	switch dbType {
	case "sqlite", "":
		return "sqlite", nil
	case "postgres":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}
