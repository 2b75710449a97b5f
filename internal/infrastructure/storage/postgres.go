package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore provides PostgreSQL access for merchants and sync runs
// through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and runs migrations
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	// goose works on database/sql; borrow the pool for the duration of the migration
	db := stdlib.OpenDBFromPool(pool)
	migrateErr := runMigrations(ctx, goose.DialectPostgres, db, postgresMigrations(), logger)
	_ = db.Close()
	if migrateErr != nil {
		pool.Close()
		return nil, migrateErr
	}

	logger.Info("database connection pool created")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanPgMerchant(row pgx.Row) (*Merchant, error) {
	m := &Merchant{}
	var status string
	var lastSynced *time.Time
	if err := row.Scan(&m.ID, &m.MID, &m.Name, &status, &m.CreatedAt, &m.UpdatedAt, &lastSynced); err != nil {
		return nil, err
	}
	m.Status = MerchantStatus(status)
	m.LastSyncedAt = lastSynced
	return m, nil
}

// FindByMID looks up a merchant by its exact MID
func (s *PostgresStore) FindByMID(ctx context.Context, mid string) (*Merchant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE mid = $1`, mid)

	m, err := scanPgMerchant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find merchant %s: %w", mid, err)
	}
	return m, nil
}

// UpsertMerchant inserts a new merchant or overwrites name and status of an existing one
func (s *PostgresStore) UpsertMerchant(ctx context.Context, mid, name string, status MerchantStatus) error {
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
	INSERT INTO merchants (mid, name, status, created_at, updated_at, last_synced_at)
	VALUES ($1, $2, $3, $4, $4, $4)
	ON CONFLICT (mid) DO UPDATE SET
		name = EXCLUDED.name,
		status = EXCLUDED.status,
		updated_at = EXCLUDED.updated_at,
		last_synced_at = EXCLUDED.last_synced_at
	`, mid, name, string(status), now)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant %s: %w", mid, err)
	}
	return nil
}

// UpdateMerchant applies a manual edit without touching last_synced_at
func (s *PostgresStore) UpdateMerchant(ctx context.Context, mid, name string, status MerchantStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE merchants SET name = $1, status = $2, updated_at = $3 WHERE mid = $4`,
		name, string(status), time.Now().UTC(), mid)
	if err != nil {
		return fmt.Errorf("failed to update merchant %s: %w", mid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMerchants returns a page of merchants, newest first
func (s *PostgresStore) ListMerchants(ctx context.Context, filters MerchantFilters) (*MerchantListResult, error) {
	var conditions []string
	var args []any

	if filters.Status != "" {
		args = append(args, filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, likePattern(filters.Search))
		n := len(args)
		conditions = append(conditions,
			fmt.Sprintf(`(LOWER(mid) LIKE $%d ESCAPE '\' OR LOWER(name) LIKE $%d ESCAPE '\')`, n, n))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM merchants"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count merchants: %w", err)
	}

	limit := normalizeLimit(filters.Limit, defaultPageSize)
	offset := normalizeOffset(filters.Offset)
	query := fmt.Sprintf("SELECT %s FROM merchants%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		merchantColumns, where, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}
	defer rows.Close()

	merchants := make([]*Merchant, 0)
	for rows.Next() {
		m, err := scanPgMerchant(rows)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &MerchantListResult{
		Merchants:  merchants,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// GetMerchantStats returns totals by status and the most recent sync time
func (s *PostgresStore) GetMerchantStats(ctx context.Context) (*MerchantStats, error) {
	stats := &MerchantStats{}

	err := s.pool.QueryRow(ctx, `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'active'),
		COUNT(*) FILTER (WHERE status = 'inactive'),
		MAX(last_synced_at)
	FROM merchants
	`).Scan(&stats.TotalMerchants, &stats.ActiveMerchants, &stats.InactiveMerchants, &stats.LastSyncDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant stats: %w", err)
	}
	return stats, nil
}

// StartSyncRun records the start of a sync run
func (s *PostgresStore) StartSyncRun(ctx context.Context, triggeredBy string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_runs (triggered_by, started_at, status) VALUES ($1, $2, $3) RETURNING id`,
		triggeredBy, time.Now().UTC(), RunStatusRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start sync run: %w", err)
	}
	return id, nil
}

// CompleteSyncRun records the outcome of a finished sync run
func (s *PostgresStore) CompleteSyncRun(ctx context.Context, runID int64, counts SyncRunCounts) error {
	_, err := s.pool.Exec(ctx, `
	UPDATE sync_runs
	SET completed_at = $1, status = $2,
	    merchants_fetched = $3, merchants_created = $4, merchants_updated = $5,
	    merchants_skipped = $6, merchants_failed = $7, duration_ms = $8
	WHERE id = $9
	`, time.Now().UTC(), completedStatus(counts.Failed),
		counts.Fetched, counts.Created, counts.Updated,
		counts.Skipped, counts.Failed, counts.Duration.Milliseconds(),
		runID)
	if err != nil {
		return fmt.Errorf("failed to complete sync run %d: %w", runID, err)
	}
	return nil
}

// FailSyncRun marks a sync run as failed
func (s *PostgresStore) FailSyncRun(ctx context.Context, runID int64, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET completed_at = $1, status = $2, error_message = $3 WHERE id = $4`,
		time.Now().UTC(), RunStatusFailed, reason, runID)
	if err != nil {
		return fmt.Errorf("failed to fail sync run %d: %w", runID, err)
	}
	return nil
}

func scanPgSyncRun(row pgx.Row) (*SyncRun, error) {
	run := &SyncRun{}
	err := row.Scan(
		&run.ID, &run.TriggeredBy, &run.StartedAt, &run.CompletedAt, &run.Status,
		&run.MerchantsFetched, &run.MerchantsCreated, &run.MerchantsUpdated,
		&run.MerchantsSkipped, &run.MerchantsFailed, &run.DurationMs, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListSyncRuns returns the most recent sync runs
func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT $1`,
		normalizeLimit(limit, defaultPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]SyncRun, 0)
	for rows.Next() {
		run, err := scanPgSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetSyncRun retrieves a sync run by ID
func (s *PostgresStore) GetSyncRun(ctx context.Context, runID int64) (*SyncRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE id = $1`, runID)

	run, err := scanPgSyncRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run %d: %w", runID, err)
	}
	return run, nil
}
