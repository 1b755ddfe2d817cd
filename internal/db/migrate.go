package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaStatus is the migration state recorded in schema_migrations.
type SchemaStatus struct {
	Version uint
	Dirty   bool
	// Applied is false when no migration has ever run.
	Applied bool
}

// migrateURL rewrites a postgres:// URL to the scheme registered by the
// golang-migrate pgx/v5 driver.
func migrateURL(databaseURL string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix), nil
		}
	}
	return "", fmt.Errorf("unsupported database URL scheme (want postgres:// or postgresql://)")
}

func newMigrator(databaseURL string) (*migrate.Migrate, source.Driver, error) {
	dsn, err := migrateURL(databaseURL)
	if err != nil {
		return nil, nil, err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, src, nil
}

func closeMigrator(m *migrate.Migrate, logger *zap.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("close migration source", zap.Error(srcErr))
	}
	if dbErr != nil {
		logger.Warn("close migration database", zap.Error(dbErr))
	}
}

// latestVersion walks the embedded source to its last migration.
func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("read first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migration after %d: %w", v, err)
		}
		v = next
	}
}

// RunMigrations applies pending up migrations. Existing rows are kept.
func RunMigrations(databaseURL string, logger *zap.Logger) error {
	m, _, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema already up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}

// ResetSchema drops the requests table with everything in it and recreates
// it empty. Running it repeatedly yields the same empty schema.
func ResetSchema(databaseURL string, logger *zap.Logger) error {
	m, src, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	latest, err := latestVersion(src)
	if err != nil {
		return err
	}

	// Down scripts only use IF EXISTS, so forcing the latest version lets
	// them run whether the table came from a previous migration, a dirty
	// run, or was created by hand.
	if err := m.Force(int(latest)); err != nil {
		return fmt.Errorf("force schema version %d: %w", latest, err)
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("drop schema: %w", err)
	}
	logger.Info("schema dropped")

	if err := m.Up(); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	logger.Info("schema created", zap.Uint("version", latest))
	return nil
}

// Status reports the current migration version.
func Status(databaseURL string, logger *zap.Logger) (SchemaStatus, error) {
	m, _, err := newMigrator(databaseURL)
	if err != nil {
		return SchemaStatus{}, err
	}
	defer closeMigrator(m, logger)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaStatus{}, nil
	}
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("read schema version: %w", err)
	}
	return SchemaStatus{Version: version, Dirty: dirty, Applied: true}, nil
}
