package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expectedMigrationCount is the number of migrations we expect to have
// Note: goose adds a version 0 entry when initializing, so total count is migrations + 1
const expectedMigrationCount = 2
const gooseVersionCount = expectedMigrationCount + 1

// TestMigrations_FreshDatabase tests running migrations on a fresh database
func TestMigrations_FreshDatabase(t *testing.T) {
	store := newTestStore(t)

	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM goose_db_version WHERE is_applied = 1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, gooseVersionCount, count)
}

// TestMigrations_Idempotency tests that reopening a database does not re-run migrations
func TestMigrations_Idempotency(t *testing.T) {
	ctx := context.Background()
	dbPath := createTempDB(t)

	store, err := NewSQLiteStore(ctx, dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpsertMerchant(ctx, "MID-1", "Coffee Co", StatusActive))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(ctx, dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	var count int
	err = store.db.QueryRow("SELECT COUNT(*) FROM goose_db_version WHERE is_applied = 1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, gooseVersionCount, count)

	m, err := store.FindByMID(ctx, "MID-1")
	require.NoError(t, err)
	require.NotNil(t, m, "data should survive reopening")
}

// TestMigrations_Schema tests that the expected tables exist
func TestMigrations_Schema(t *testing.T) {
	store := newTestStore(t)

	for _, table := range []string{"merchants", "sync_runs", "goose_db_version"} {
		err := store.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(new(int))
		assert.NoError(t, err, "%s table should exist", table)
	}
}

func TestMigrations_UniqueMID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.db.Exec(`INSERT INTO merchants (mid, name, status, created_at, updated_at) VALUES ('A', 'a', 'active', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = store.db.Exec(`INSERT INTO merchants (mid, name, status, created_at, updated_at) VALUES ('A', 'b', 'active', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "mid must be unique")
}

// createTempDB returns a database path inside a per-test temp directory
func createTempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), createTempDB(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
