// Package sync reconciles the upstream merchant list into local storage.
//
// A run fetches every merchant from the provider, then walks the records in
// the order received: records without a MID are skipped, the display name
// and status are resolved, and each merchant is upserted. Whether a record
// counts as created or updated depends on whether its MID existed before
// the upsert. Running twice against an unchanged provider creates nothing
// the second time.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eshaffer321/merchant-sync-backend/internal/adapters/privvy"
	"github.com/eshaffer321/merchant-sync-backend/internal/domain/merchant"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/merchant-sync-backend/internal/observability/metrics"
)

// Fetcher retrieves the complete upstream merchant list
type Fetcher interface {
	FetchMerchants(ctx context.Context) ([]privvy.MerchantRecord, error)
}

// Reconciler runs merchant syncs
type Reconciler struct {
	fetcher Fetcher
	store   storage.MerchantRepository
	runs    storage.SyncRunRepository
	logger  *slog.Logger
	metrics *metrics.SyncMetrics
	now     func() time.Time
}

// Option customizes a Reconciler
type Option func(*Reconciler)

// WithRunRecorder records each run in the sync run history
func WithRunRecorder(runs storage.SyncRunRepository) Option {
	return func(r *Reconciler) { r.runs = runs }
}

// WithMetrics records run outcomes on m
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler
func NewReconciler(fetcher Fetcher, store storage.MerchantRepository, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one full sync.
//
// It fails with *privvy.AuthError or *privvy.FetchError when the merchant list
// cannot be retrieved, in which case no record is touched. Per-record storage
// failures are counted in the result unless opts.FailFast is set, in which
// case the first one is returned as *UpsertError.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Result, error) {
	start := r.now()
	runID := r.startRun(ctx, opts.TriggeredBy)

	r.logger.Info("starting merchant sync", "run_id", runID, "triggered_by", opts.TriggeredBy)
	report(opts, Progress{Phase: PhaseFetching})

	records, err := r.fetcher.FetchMerchants(ctx)
	if err != nil {
		err = classifyFetchError(err)
		r.finishFailed(ctx, runID, start, err)
		return nil, err
	}

	result := &Result{RunID: runID, Fetched: len(records)}
	report(opts, Progress{Phase: PhaseReconciling, Total: len(records)})

	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			r.finishFailed(ctx, runID, start, err)
			return nil, err
		}

		if err := r.reconcile(ctx, rec, seen, result); err != nil {
			if opts.FailFast {
				r.finishFailed(ctx, runID, start, err)
				return nil, err
			}
			r.logger.Warn("failed to store merchant", "mid", err.MID, "error", err.Err)
			result.Failed++
			result.FailedMIDs = append(result.FailedMIDs, err.MID)
		}

		report(opts, Progress{Phase: PhaseReconciling, Processed: i + 1, Total: len(records)})
	}

	result.Duration = r.now().Sub(start)
	r.finishCompleted(ctx, runID, result)

	r.logger.Info("merchant sync completed",
		"run_id", runID,
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", FormatDuration(result.Duration),
	)
	return result, nil
}

// reconcile applies one upstream record. A nil return means the record was
// stored or deliberately skipped.
func (r *Reconciler) reconcile(ctx context.Context, rec privvy.MerchantRecord, seen map[string]bool, result *Result) *UpsertError {
	mid := merchant.NormalizeMID(rec.MID.String())
	if mid == "" {
		r.logger.Debug("skipping merchant without MID", "name", rec.MerchName.String())
		result.Skipped++
		return nil
	}
	if seen[mid] {
		r.logger.Warn("skipping duplicate MID in upstream payload", "mid", mid)
		result.Skipped++
		return nil
	}
	seen[mid] = true

	name := merchant.ResolveName(rec.MerchName.String(), rec.LegalName.String())
	status := merchant.ResolveStatus(rec.CustomerStatus.String())

	existing, err := r.store.FindByMID(ctx, mid)
	if err != nil {
		return &UpsertError{MID: mid, Op: "lookup", Err: err}
	}

	if err := r.store.UpsertMerchant(ctx, mid, name, status); err != nil {
		return &UpsertError{MID: mid, Op: "upsert", Err: err}
	}

	if existing == nil {
		r.logger.Debug("created merchant", "mid", mid, "name", name, "status", status)
		result.Created++
	} else {
		r.logger.Debug("updated merchant", "mid", mid, "name", name, "status", status)
		result.Updated++
	}
	return nil
}

// classifyFetchError keeps auth and fetch errors as they are and wraps anything else as a fetch failure
func classifyFetchError(err error) error {
	var authErr *privvy.AuthError
	var fetchErr *privvy.FetchError
	if errors.As(err, &authErr) || errors.As(err, &fetchErr) {
		return err
	}
	return &privvy.FetchError{Err: err}
}

func report(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}
