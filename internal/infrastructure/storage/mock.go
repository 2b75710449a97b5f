package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated.
type MockRepository struct {
	mu        sync.Mutex
	merchants map[string]*Merchant
	syncRuns  map[int64]*SyncRun
	nextID    int64
	nextRunID int64

	// Hooks for test assertions
	UpsertCalls        int
	LastUpserted       *Merchant
	FindCalls          int
	StartSyncRunCalled bool

	// Error injection for testing error paths
	FindErr            error
	UpsertErr          error
	UpsertErrByMID     map[string]error
	UpdateErr          error
	ListErr            error
	StatsErr           error
	StartSyncRunErr    error
	CompleteSyncRunErr error
	PingErr            error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		merchants:      make(map[string]*Merchant),
		syncRuns:       make(map[int64]*SyncRun),
		UpsertErrByMID: make(map[string]error),
		nextID:         1,
		nextRunID:      1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// Ping returns PingErr
func (m *MockRepository) Ping(_ context.Context) error {
	return m.PingErr
}

// Seed stores a merchant directly, bypassing upsert bookkeeping.
func (m *MockRepository) Seed(mid, name string, status MerchantStatus) *Merchant {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	merchant := &Merchant{
		ID:        m.nextID,
		MID:       mid,
		Name:      name,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextID++
	m.merchants[mid] = merchant
	copied := *merchant
	return &copied
}

// Count returns the number of stored merchants
func (m *MockRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.merchants)
}

// FindByMID returns a copy of the stored merchant, or nil when absent
func (m *MockRepository) FindByMID(_ context.Context, mid string) (*Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FindCalls++
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	merchant, ok := m.merchants[mid]
	if !ok {
		return nil, nil
	}
	copied := *merchant
	return &copied, nil
}

// UpsertMerchant creates or overwrites the merchant keyed by mid
func (m *MockRepository) UpsertMerchant(_ context.Context, mid, name string, status MerchantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if err := m.UpsertErrByMID[mid]; err != nil {
		return err
	}

	now := time.Now().UTC()
	merchant, ok := m.merchants[mid]
	if !ok {
		merchant = &Merchant{ID: m.nextID, MID: mid, CreatedAt: now}
		m.nextID++
		m.merchants[mid] = merchant
	}
	merchant.Name = name
	merchant.Status = status
	merchant.UpdatedAt = now
	merchant.LastSyncedAt = &now

	copied := *merchant
	m.LastUpserted = &copied
	return nil
}

// UpdateMerchant edits an existing merchant
func (m *MockRepository) UpdateMerchant(_ context.Context, mid, name string, status MerchantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	merchant, ok := m.merchants[mid]
	if !ok {
		return ErrNotFound
	}
	merchant.Name = name
	merchant.Status = status
	merchant.UpdatedAt = time.Now().UTC()
	return nil
}

// ListMerchants filters, orders by newest first, then paginates
func (m *MockRepository) ListMerchants(_ context.Context, filters MerchantFilters) (*MerchantListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	search := strings.ToLower(filters.Search)
	matching := make([]*Merchant, 0)
	for _, merchant := range m.merchants {
		if filters.Status != "" && string(merchant.Status) != filters.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(merchant.MID), search) &&
			!strings.Contains(strings.ToLower(merchant.Name), search) {
			continue
		}
		copied := *merchant
		matching = append(matching, &copied)
	}

	// IDs are assigned in creation order
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].ID > matching[j].ID
	})

	limit := normalizeLimit(filters.Limit, defaultPageSize)
	offset := normalizeOffset(filters.Offset)
	total := len(matching)
	start := min(offset, total)
	end := min(start+limit, total)

	return &MerchantListResult{
		Merchants:  matching[start:end],
		TotalCount: int64(total),
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// GetMerchantStats computes stats over the in-memory merchants
func (m *MockRepository) GetMerchantStats(_ context.Context) (*MerchantStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StatsErr != nil {
		return nil, m.StatsErr
	}

	stats := &MerchantStats{}
	for _, merchant := range m.merchants {
		stats.TotalMerchants++
		switch merchant.Status {
		case StatusActive:
			stats.ActiveMerchants++
		case StatusInactive:
			stats.InactiveMerchants++
		}
		if merchant.LastSyncedAt != nil &&
			(stats.LastSyncDate == nil || merchant.LastSyncedAt.After(*stats.LastSyncDate)) {
			t := *merchant.LastSyncedAt
			stats.LastSyncDate = &t
		}
	}
	return stats, nil
}

// StartSyncRun creates a new running sync run and returns its ID
func (m *MockRepository) StartSyncRun(_ context.Context, triggeredBy string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartSyncRunCalled = true
	if m.StartSyncRunErr != nil {
		return 0, m.StartSyncRunErr
	}

	id := m.nextRunID
	m.nextRunID++
	m.syncRuns[id] = &SyncRun{
		ID:          id,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
		Status:      RunStatusRunning,
	}
	return id, nil
}

// CompleteSyncRun records counts on the run
func (m *MockRepository) CompleteSyncRun(_ context.Context, runID int64, counts SyncRunCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CompleteSyncRunErr != nil {
		return m.CompleteSyncRunErr
	}
	run, ok := m.syncRuns[runID]
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = completedStatus(counts.Failed)
	run.MerchantsFetched = counts.Fetched
	run.MerchantsCreated = counts.Created
	run.MerchantsUpdated = counts.Updated
	run.MerchantsSkipped = counts.Skipped
	run.MerchantsFailed = counts.Failed
	run.DurationMs = counts.Duration.Milliseconds()
	return nil
}

// FailSyncRun marks the run as failed
func (m *MockRepository) FailSyncRun(_ context.Context, runID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.syncRuns[runID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = RunStatusFailed
	run.ErrorMessage = reason
	return nil
}

// ListSyncRuns returns runs newest first
func (m *MockRepository) ListSyncRuns(_ context.Context, limit int) ([]SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]SyncRun, 0, len(m.syncRuns))
	for _, r := range m.syncRuns {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ID > runs[j].ID
	})

	limit = normalizeLimit(limit, defaultPageSize)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetSyncRun returns a copy of the run or ErrNotFound
func (m *MockRepository) GetSyncRun(_ context.Context, runID int64) (*SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.syncRuns[runID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}
