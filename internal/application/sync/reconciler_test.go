package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/merchant-sync-backend/internal/adapters/privvy"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// stubFetcher returns fixed records or an error
type stubFetcher struct {
	records []privvy.MerchantRecord
	err     error
	calls   int
}

func (f *stubFetcher) FetchMerchants(_ context.Context) ([]privvy.MerchantRecord, error) {
	f.calls++
	return f.records, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func scenarioRecords() []privvy.MerchantRecord {
	return []privvy.MerchantRecord{
		{MID: "M1", MerchName: "A", CustomerStatus: "active"},
		{MID: "", MerchName: "B"},
		{MID: "M2", LegalName: "C Legal", CustomerStatus: "inactive"},
	}
}

func TestReconciler_EmptyUpstream(t *testing.T) {
	repo := storage.NewMockRepository()
	r := NewReconciler(&stubFetcher{}, repo, testLogger())

	result, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, repo.UpsertCalls)
}

func TestReconciler_Scenario(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	r := NewReconciler(&stubFetcher{records: scenarioRecords()}, repo, testLogger())

	first, err := r.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Fetched)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 1, first.Skipped)

	m1, err := repo.FindByMID(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, "A", m1.Name)
	assert.Equal(t, storage.StatusActive, m1.Status)

	m2, err := repo.FindByMID(ctx, "M2")
	require.NoError(t, err)
	assert.Equal(t, "C Legal", m2.Name)
	assert.Equal(t, storage.StatusInactive, m2.Status)

	second, err := r.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, second.Fetched)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, repo.Count())
}

func TestReconciler_Scenario_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "sync.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	r := NewReconciler(&stubFetcher{records: scenarioRecords()}, store, testLogger(), WithRunRecorder(store))

	first, err := r.Run(ctx, Options{TriggeredBy: "cli"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	before, err := store.FindByMID(ctx, "M1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := r.Run(ctx, Options{TriggeredBy: "cli"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)

	after, err := store.FindByMID(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, after.LastSyncedAt.After(*before.LastSyncedAt), "every upsert advances last_synced_at")

	runs, err := store.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, storage.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].MerchantsUpdated)
	assert.Equal(t, 1, runs[0].MerchantsSkipped)
}

func TestReconciler_BlankAndWhitespaceMIDsAreSkipped(t *testing.T) {
	repo := storage.NewMockRepository()
	r := NewReconciler(&stubFetcher{records: []privvy.MerchantRecord{
		{MID: "   ", MerchName: "Spaces"},
		{MID: "", MerchName: "Empty"},
		{MID: " M1 ", MerchName: "Trimmed"},
	}}, repo, testLogger())

	result, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.LessOrEqual(t, result.Created+result.Updated, result.Fetched)

	m, err := repo.FindByMID(context.Background(), "M1")
	require.NoError(t, err)
	require.NotNil(t, m, "MIDs are stored trimmed")
}

func TestReconciler_DuplicateMIDUpsertedOnce(t *testing.T) {
	repo := storage.NewMockRepository()
	r := NewReconciler(&stubFetcher{records: []privvy.MerchantRecord{
		{MID: "M1", MerchName: "First"},
		{MID: "M1", MerchName: "Second"},
	}}, repo, testLogger())

	result, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, repo.UpsertCalls)
	assert.Equal(t, "First", repo.LastUpserted.Name)
}

func TestReconciler_NameAndStatusResolution(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	r := NewReconciler(&stubFetcher{records: []privvy.MerchantRecord{
		{MID: "A", MerchName: "Acme", LegalName: "Acme Legal", CustomerStatus: "Suspended - Pending Review"},
		{MID: "B", LegalName: "Acme Legal", CustomerStatus: "Active"},
		{MID: "C"},
	}}, repo, testLogger())

	_, err := r.Run(ctx, Options{})
	require.NoError(t, err)

	a, _ := repo.FindByMID(ctx, "A")
	b, _ := repo.FindByMID(ctx, "B")
	c, _ := repo.FindByMID(ctx, "C")

	assert.Equal(t, "Acme", a.Name)
	assert.Equal(t, storage.StatusInactive, a.Status)
	assert.Equal(t, "Acme Legal", b.Name)
	assert.Equal(t, storage.StatusActive, b.Status)
	assert.Equal(t, "Unknown Merchant", c.Name)
	assert.Equal(t, storage.StatusActive, c.Status)
}

func TestReconciler_FetchFailuresAbort(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		phase string
	}{
		{"auth", &privvy.AuthError{Err: errors.New("401")}, "authentication"},
		{"fetch", &privvy.FetchError{Err: errors.New("500")}, "fetch"},
		{"unclassified", errors.New("connection reset"), "fetch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := storage.NewMockRepository()
			r := NewReconciler(&stubFetcher{err: tt.err}, repo, testLogger(), WithRunRecorder(repo))

			result, err := r.Run(context.Background(), Options{TriggeredBy: "api"})
			require.Error(t, err)
			assert.Nil(t, result, "no partial result on failure")
			assert.Equal(t, 0, repo.UpsertCalls)

			var phased interface{ Phase() string }
			require.True(t, errors.As(err, &phased))
			assert.Equal(t, tt.phase, phased.Phase())

			runs, _ := repo.ListSyncRuns(context.Background(), 1)
			require.Len(t, runs, 1)
			assert.Equal(t, storage.RunStatusFailed, runs[0].Status)
			assert.Contains(t, runs[0].ErrorMessage, err.Error())
		})
	}
}

func TestReconciler_AccumulatesUpsertFailures(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.UpsertErrByMID["M2"] = errors.New("disk full")
	r := NewReconciler(&stubFetcher{records: []privvy.MerchantRecord{
		{MID: "M1", MerchName: "One"},
		{MID: "M2", MerchName: "Two"},
		{MID: "M3", MerchName: "Three"},
	}}, repo, testLogger(), WithRunRecorder(repo))

	result, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"M2"}, result.FailedMIDs)

	run, err := repo.GetSyncRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompletedWithErrors, run.Status)
}

func TestReconciler_FailFast(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.UpsertErrByMID["M2"] = errors.New("disk full")
	r := NewReconciler(&stubFetcher{records: []privvy.MerchantRecord{
		{MID: "M1", MerchName: "One"},
		{MID: "M2", MerchName: "Two"},
		{MID: "M3", MerchName: "Three"},
	}}, repo, testLogger())

	result, err := r.Run(context.Background(), Options{FailFast: true})
	require.Error(t, err)
	assert.Nil(t, result)

	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	assert.Equal(t, "M2", upsertErr.MID)
	assert.Equal(t, "upsert", upsertErr.Op)
	assert.Equal(t, "upsert", upsertErr.Phase())
	assert.Equal(t, 1, repo.Count(), "records after the failure are not processed")
}

func TestReconciler_LookupFailure(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.FindErr = errors.New("db locked")
	r := NewReconciler(&stubFetcher{records: []privvy.MerchantRecord{{MID: "M1"}}}, repo, testLogger())

	result, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, repo.UpsertCalls)
}

func TestReconciler_CancelledContext(t *testing.T) {
	repo := storage.NewMockRepository()
	r := NewReconciler(&stubFetcher{records: scenarioRecords()}, repo, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, repo.UpsertCalls)
}

func TestReconciler_DurationAndProgress(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(2300 * time.Millisecond)}
	clock := func() time.Time {
		t := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return t
	}

	var phases []string
	r := NewReconciler(&stubFetcher{records: scenarioRecords()}, storage.NewMockRepository(), testLogger(), WithClock(clock))
	result, err := r.Run(context.Background(), Options{
		OnProgress: func(p Progress) {
			if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
				phases = append(phases, p.Phase)
			}
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2300*time.Millisecond, result.Duration)
	assert.Equal(t, []string{PhaseFetching, PhaseReconciling}, phases)
}

func TestResult_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Result{Fetched: 3, Created: 2, Duration: 2340 * time.Millisecond})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"merchantsFetched": 3,
		"merchantsCreated": 2,
		"merchantsUpdated": 0,
		"merchantsSkipped": 0,
		"merchantsFailed": 0,
		"duration": "2.3s"
	}`, string(data))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.0s", FormatDuration(0))
	assert.Equal(t, "2.3s", FormatDuration(2300*time.Millisecond))
	assert.Equal(t, "61.0s", FormatDuration(61*time.Second))
}
