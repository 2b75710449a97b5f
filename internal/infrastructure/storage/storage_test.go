package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/config"
)

func TestSQLiteStore_FindByMID_Absent(t *testing.T) {
	store := newTestStore(t)

	m, err := store.FindByMID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSQLiteStore_UpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertMerchant(ctx, "M1", "Coffee Co", StatusActive))

	created, err := store.FindByMID(ctx, "M1")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Coffee Co", created.Name)
	assert.Equal(t, StatusActive, created.Status)
	require.NotNil(t, created.LastSyncedAt)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.UpsertMerchant(ctx, "M1", "Coffee Company", StatusInactive))

	updated, err := store.FindByMID(ctx, "M1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, created.ID, updated.ID, "upsert must not create a second row")
	assert.Equal(t, "Coffee Company", updated.Name)
	assert.Equal(t, StatusInactive, updated.Status)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt), "created_at is preserved")
	require.NotNil(t, updated.LastSyncedAt)
	assert.True(t, updated.LastSyncedAt.After(*created.LastSyncedAt), "last_synced_at advances")

	result, err := store.ListMerchants(ctx, MerchantFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)
}

func TestSQLiteStore_UpdateMerchant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertMerchant(ctx, "M1", "Coffee Co", StatusActive))
	before, err := store.FindByMID(ctx, "M1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateMerchant(ctx, "M1", "Renamed", StatusInactive))

	after, err := store.FindByMID(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", after.Name)
	assert.Equal(t, StatusInactive, after.Status)
	assert.True(t, before.LastSyncedAt.Equal(*after.LastSyncedAt), "manual edits don't count as a sync")

	err = store.UpdateMerchant(ctx, "nope", "x", StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListMerchants_PaginationAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.UpsertMerchant(ctx, fmt.Sprintf("M%d", i), fmt.Sprintf("Shop %d", i), StatusActive))
	}

	page, err := store.ListMerchants(ctx, MerchantFilters{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	require.Len(t, page.Merchants, 2)
	assert.Equal(t, "M5", page.Merchants[0].MID, "newest first")
	assert.Equal(t, "M4", page.Merchants[1].MID)

	last, err := store.ListMerchants(ctx, MerchantFilters{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, last.Merchants, 1)
	assert.Equal(t, "M1", last.Merchants[0].MID)

	defaults, err := store.ListMerchants(ctx, MerchantFilters{})
	require.NoError(t, err)
	assert.Equal(t, 20, defaults.Limit)

	negative, err := store.ListMerchants(ctx, MerchantFilters{Limit: 2, Offset: -10})
	require.NoError(t, err)
	require.Len(t, negative.Merchants, 2)
	assert.Equal(t, "M5", negative.Merchants[0].MID)
	assert.Equal(t, 0, negative.Offset)
}

func TestSQLiteStore_ListMerchants_Filters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertMerchant(ctx, "ABC-1", "Blue Bottle", StatusActive))
	require.NoError(t, store.UpsertMerchant(ctx, "XYZ-2", "Corner Deli", StatusInactive))
	require.NoError(t, store.UpsertMerchant(ctx, "100%_OFF", "Discount Barn", StatusActive))

	byStatus, err := store.ListMerchants(ctx, MerchantFilters{Status: "inactive"})
	require.NoError(t, err)
	require.Len(t, byStatus.Merchants, 1)
	assert.Equal(t, "XYZ-2", byStatus.Merchants[0].MID)

	byName, err := store.ListMerchants(ctx, MerchantFilters{Search: "bottle"})
	require.NoError(t, err)
	require.Len(t, byName.Merchants, 1)
	assert.Equal(t, "ABC-1", byName.Merchants[0].MID)

	byMID, err := store.ListMerchants(ctx, MerchantFilters{Search: "xyz"})
	require.NoError(t, err)
	require.Len(t, byMID.Merchants, 1)

	wildcard, err := store.ListMerchants(ctx, MerchantFilters{Search: "%_"})
	require.NoError(t, err)
	require.Len(t, wildcard.Merchants, 1, "LIKE wildcards are matched literally")
	assert.Equal(t, "100%_OFF", wildcard.Merchants[0].MID)

	combined, err := store.ListMerchants(ctx, MerchantFilters{Status: "active", Search: "deli"})
	require.NoError(t, err)
	assert.Empty(t, combined.Merchants)
	assert.Equal(t, int64(0), combined.TotalCount)
}

func TestSQLiteStore_GetMerchantStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	empty, err := store.GetMerchantStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalMerchants)
	assert.Nil(t, empty.LastSyncDate)

	require.NoError(t, store.UpsertMerchant(ctx, "M1", "One", StatusActive))
	require.NoError(t, store.UpsertMerchant(ctx, "M2", "Two", StatusActive))
	require.NoError(t, store.UpsertMerchant(ctx, "M3", "Three", StatusInactive))

	stats, err := store.GetMerchantStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalMerchants)
	assert.Equal(t, int64(2), stats.ActiveMerchants)
	assert.Equal(t, int64(1), stats.InactiveMerchants)
	require.NotNil(t, stats.LastSyncDate)

	m3, err := store.FindByMID(ctx, "M3")
	require.NoError(t, err)
	assert.True(t, stats.LastSyncDate.Equal(*m3.LastSyncedAt))
}

func TestSQLiteStore_SyncRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	okID, err := store.StartSyncRun(ctx, "cli")
	require.NoError(t, err)

	run, err := store.GetSyncRun(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, store.CompleteSyncRun(ctx, okID, SyncRunCounts{
		Fetched: 3, Created: 2, Updated: 1, Duration: 1500 * time.Millisecond,
	}))

	run, err = store.GetSyncRun(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.MerchantsFetched)
	assert.Equal(t, 2, run.MerchantsCreated)
	assert.Equal(t, 1, run.MerchantsUpdated)
	assert.Equal(t, int64(1500), run.DurationMs)
	assert.NotNil(t, run.CompletedAt)

	partialID, err := store.StartSyncRun(ctx, "api")
	require.NoError(t, err)
	require.NoError(t, store.CompleteSyncRun(ctx, partialID, SyncRunCounts{Fetched: 2, Created: 1, Failed: 1}))

	failedID, err := store.StartSyncRun(ctx, "scheduler")
	require.NoError(t, err)
	require.NoError(t, store.FailSyncRun(ctx, failedID, "upstream login failed"))

	runs, err := store.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, failedID, runs[0].ID)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, "upstream login failed", runs[0].ErrorMessage)
	assert.Equal(t, RunStatusCompletedWithErrors, runs[1].Status)

	_, err = store.GetSyncRun(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestOpen_SQLite(t *testing.T) {
	repo, err := Open(context.Background(), config.StorageConfig{
		Driver:       config.DriverSQLite,
		DatabasePath: createTempDB(t),
	}, nil)
	require.NoError(t, err)
	defer repo.Close()

	assert.NoError(t, repo.Ping(context.Background()))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%coffee%", likePattern("Coffee"))
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
}
