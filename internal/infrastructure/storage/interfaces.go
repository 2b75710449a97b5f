package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a merchant or sync run doesn't exist.
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	MerchantRepository
	SyncRunRepository
	Ping(ctx context.Context) error
	Close() error
}

// MerchantRepository handles local merchant state. Writes are last-write-wins.
type MerchantRepository interface {
	// FindByMID returns the merchant with the given MID, or (nil, nil) when absent
	FindByMID(ctx context.Context, mid string) (*Merchant, error)

	// UpsertMerchant inserts or updates a merchant and stamps last_synced_at
	UpsertMerchant(ctx context.Context, mid, name string, status MerchantStatus) error

	// UpdateMerchant applies a manual edit; returns ErrNotFound for an unknown MID
	UpdateMerchant(ctx context.Context, mid, name string, status MerchantStatus) error

	// ListMerchants returns merchants matching the filters, newest first
	ListMerchants(ctx context.Context, filters MerchantFilters) (*MerchantListResult, error)

	// GetMerchantStats returns aggregate counts
	GetMerchantStats(ctx context.Context) (*MerchantStats, error)
}

// MerchantFilters defines filters for listing merchants
type MerchantFilters struct {
	Status string // Exact status match (empty = all)
	Search string // Case-insensitive substring of mid or name (empty = all)
	Limit  int    // Max results (0 = default 20)
	Offset int    // Pagination offset
}

// MerchantListResult contains paginated merchant results
type MerchantListResult struct {
	Merchants  []*Merchant `json:"merchants"`
	TotalCount int64       `json:"total_count"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// SyncRunRepository handles sync run tracking
type SyncRunRepository interface {
	// StartSyncRun records the start of a sync run and returns the run ID
	StartSyncRun(ctx context.Context, triggeredBy string) (int64, error)

	// CompleteSyncRun records the outcome counts of a finished run
	CompleteSyncRun(ctx context.Context, runID int64, counts SyncRunCounts) error

	// FailSyncRun marks a run as failed with the given reason
	FailSyncRun(ctx context.Context, runID int64, reason string) error

	// ListSyncRuns returns recent sync runs, newest first
	ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)

	// GetSyncRun retrieves a sync run by ID; returns ErrNotFound when absent
	GetSyncRun(ctx context.Context, runID int64) (*SyncRun, error)
}

// SyncRunCounts are the outcome tallies of one reconciliation run
type SyncRunCounts struct {
	Fetched  int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Sync run statuses
const (
	RunStatusRunning             = "running"
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
	RunStatusFailed              = "failed"
)

// SyncRun represents a sync run record
type SyncRun struct {
	ID               int64      `json:"id"`
	TriggeredBy      string     `json:"triggered_by"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	MerchantsFetched int        `json:"merchants_fetched"`
	MerchantsCreated int        `json:"merchants_created"`
	MerchantsUpdated int        `json:"merchants_updated"`
	MerchantsSkipped int        `json:"merchants_skipped"`
	MerchantsFailed  int        `json:"merchants_failed"`
	DurationMs       int64      `json:"duration_ms"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// completedStatus picks the final status for a run from its failure count
func completedStatus(failed int) string {
	if failed > 0 {
		return RunStatusCompletedWithErrors
	}
	return RunStatusCompleted
}

// normalizeLimit applies the default page size
func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	return max(offset, 0)
}
