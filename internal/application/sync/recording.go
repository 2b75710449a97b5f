package sync

import (
	"context"
	"time"

	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/merchant-sync-backend/internal/observability/metrics"
)

// Run history and metrics for the reconciler. History writes are best
// effort: a failure is logged and never fails the sync itself.

// startRun records the start of a run; 0 means no history is kept
func (r *Reconciler) startRun(ctx context.Context, triggeredBy string) int64 {
	if r.runs == nil {
		return 0
	}
	if triggeredBy == "" {
		triggeredBy = "manual"
	}
	id, err := r.runs.StartSyncRun(ctx, triggeredBy)
	if err != nil {
		r.logger.Error("failed to record sync run start", "error", err)
		return 0
	}
	return id
}

func (r *Reconciler) finishCompleted(ctx context.Context, runID int64, result *Result) {
	r.metrics.RecordRun(result.Duration, true)
	r.metrics.RecordRecords(metrics.OutcomeCreated, result.Created)
	r.metrics.RecordRecords(metrics.OutcomeUpdated, result.Updated)
	r.metrics.RecordRecords(metrics.OutcomeSkipped, result.Skipped)
	r.metrics.RecordRecords(metrics.OutcomeFailed, result.Failed)

	if r.runs == nil || runID == 0 {
		return
	}
	err := r.runs.CompleteSyncRun(context.WithoutCancel(ctx), runID, storage.SyncRunCounts{
		Fetched:  result.Fetched,
		Created:  result.Created,
		Updated:  result.Updated,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		Duration: result.Duration,
	})
	if err != nil {
		r.logger.Error("failed to record sync run completion", "run_id", runID, "error", err)
	}
}

func (r *Reconciler) finishFailed(ctx context.Context, runID int64, start time.Time, cause error) {
	r.metrics.RecordRun(r.now().Sub(start), false)
	r.logger.Error("merchant sync failed", "run_id", runID, "error", cause)

	if r.runs == nil || runID == 0 {
		return
	}
	// The run context may already be cancelled
	if err := r.runs.FailSyncRun(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
		r.logger.Error("failed to record sync run failure", "run_id", runID, "error", err)
	}
}
