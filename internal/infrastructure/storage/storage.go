package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage/migrations"
)

const defaultPageSize = 20

// Open creates the repository selected by cfg.Driver and brings its schema up to date.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.DatabasePath, logger)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// runMigrations applies every pending goose migration in fsys against db.
func runMigrations(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS, logger *slog.Logger) error {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration", r.Duration,
		)
	}
	return nil
}

// sqliteMigrations and postgresMigrations are split so each store can be migrated alone.
func sqliteMigrations() fs.FS   { return migrations.SQLite() }
func postgresMigrations() fs.FS { return migrations.Postgres() }

// likePattern builds a case-insensitive substring pattern, escaping LIKE wildcards.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(search)) + "%"
}
