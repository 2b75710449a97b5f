package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLiteStore provides SQLite database access for merchants and sync runs.
// It implements the Repository interface.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that SQLiteStore implements Repository
var _ Repository = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and runs migrations
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := runMigrations(ctx, goose.DialectSQLite3, db, sqliteMigrations(), logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const merchantColumns = `id, mid, name, status, created_at, updated_at, last_synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMerchant(row rowScanner) (*Merchant, error) {
	m := &Merchant{}
	var status string
	var lastSynced sql.NullTime
	if err := row.Scan(&m.ID, &m.MID, &m.Name, &status, &m.CreatedAt, &m.UpdatedAt, &lastSynced); err != nil {
		return nil, err
	}
	m.Status = MerchantStatus(status)
	if lastSynced.Valid {
		t := lastSynced.Time
		m.LastSyncedAt = &t
	}
	return m, nil
}

// FindByMID looks up a merchant by its exact MID
func (s *SQLiteStore) FindByMID(ctx context.Context, mid string) (*Merchant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE mid = ?`, mid)

	m, err := scanMerchant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find merchant %s: %w", mid, err)
	}
	return m, nil
}

// UpsertMerchant inserts a new merchant or overwrites name and status of an existing one
func (s *SQLiteStore) UpsertMerchant(ctx context.Context, mid, name string, status MerchantStatus) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO merchants (mid, name, status, created_at, updated_at, last_synced_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(mid) DO UPDATE SET
		name = excluded.name,
		status = excluded.status,
		updated_at = excluded.updated_at,
		last_synced_at = excluded.last_synced_at
	`, mid, name, string(status), now, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant %s: %w", mid, err)
	}
	return nil
}

// UpdateMerchant applies a manual edit without touching last_synced_at
func (s *SQLiteStore) UpdateMerchant(ctx context.Context, mid, name string, status MerchantStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE merchants SET name = ?, status = ?, updated_at = ? WHERE mid = ?`,
		name, string(status), time.Now().UTC(), mid)
	if err != nil {
		return fmt.Errorf("failed to update merchant %s: %w", mid, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMerchants returns a page of merchants, newest first
func (s *SQLiteStore) ListMerchants(ctx context.Context, filters MerchantFilters) (*MerchantListResult, error) {
	var conditions []string
	var args []any

	if filters.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.Search != "" {
		conditions = append(conditions, `(LOWER(mid) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\')`)
		pattern := likePattern(filters.Search)
		args = append(args, pattern, pattern)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM merchants"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count merchants: %w", err)
	}

	limit := normalizeLimit(filters.Limit, defaultPageSize)
	offset := normalizeOffset(filters.Offset)
	query := "SELECT " + merchantColumns + " FROM merchants" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}
	defer rows.Close()

	merchants := make([]*Merchant, 0)
	for rows.Next() {
		m, err := scanMerchant(rows)
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
func (s *SQLiteStore) GetMerchantStats(ctx context.Context) (*MerchantStats, error) {
	stats := &MerchantStats{}

	err := s.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'inactive' THEN 1 ELSE 0 END), 0)
	FROM merchants
	`).Scan(&stats.TotalMerchants, &stats.ActiveMerchants, &stats.InactiveMerchants)
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant stats: %w", err)
	}

	// MAX() loses the column type in SQLite, so read the newest row instead
	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
	SELECT last_synced_at FROM merchants
	WHERE last_synced_at IS NOT NULL
	ORDER BY last_synced_at DESC LIMIT 1
	`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last sync date: %w", err)
	}
	if last.Valid {
		t := last.Time
		stats.LastSyncDate = &t
	}

	return stats, nil
}

// StartSyncRun records the start of a sync run
func (s *SQLiteStore) StartSyncRun(ctx context.Context, triggeredBy string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (triggered_by, started_at, status) VALUES (?, ?, ?)`,
		triggeredBy, time.Now().UTC(), RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to start sync run: %w", err)
	}
	return res.LastInsertId()
}

// CompleteSyncRun records the outcome of a finished sync run
func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, runID int64, counts SyncRunCounts) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE sync_runs
	SET completed_at = ?, status = ?,
	    merchants_fetched = ?, merchants_created = ?, merchants_updated = ?,
	    merchants_skipped = ?, merchants_failed = ?, duration_ms = ?
	WHERE id = ?
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
func (s *SQLiteStore) FailSyncRun(ctx context.Context, runID int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET completed_at = ?, status = ?, error_message = ? WHERE id = ?`,
		time.Now().UTC(), RunStatusFailed, reason, runID)
	if err != nil {
		return fmt.Errorf("failed to fail sync run %d: %w", runID, err)
	}
	return nil
}

const syncRunColumns = `id, triggered_by, started_at, completed_at, status,
	merchants_fetched, merchants_created, merchants_updated,
	merchants_skipped, merchants_failed, duration_ms, error_message`

func scanSyncRun(row rowScanner) (*SyncRun, error) {
	run := &SyncRun{}
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.TriggeredBy, &run.StartedAt, &completedAt, &run.Status,
		&run.MerchantsFetched, &run.MerchantsCreated, &run.MerchantsUpdated,
		&run.MerchantsSkipped, &run.MerchantsFailed, &run.DurationMs, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// ListSyncRuns returns the most recent sync runs
func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		normalizeLimit(limit, defaultPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]SyncRun, 0)
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetSyncRun retrieves a sync run by ID
func (s *SQLiteStore) GetSyncRun(ctx context.Context, runID int64) (*SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, runID)

	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run %d: %w", runID, err)
	}
	return run, nil
}
