package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appsync "github.com/eshaffer321/merchant-sync-backend/internal/application/sync"
)

// ErrSyncInProgress is returned when a sync is requested while another one is running.
var ErrSyncInProgress = errors.New("a merchant sync is already in progress")

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("sync job not found")

// SyncStatus represents the current state of a sync job.
type SyncStatus string

const (
	StatusPending   SyncStatus = "pending"
	StatusRunning   SyncStatus = "running"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
	StatusCancelled SyncStatus = "cancelled"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress updates
	// before being considered stale.
	DefaultJobStaleThreshold = 30 * time.Minute

	// DefaultJobMaxDuration is the maximum time a job can run before being
	// forcefully marked as failed.
	DefaultJobMaxDuration = 2 * time.Hour

	// DefaultJobRetention is how long finished jobs stay queryable
	DefaultJobRetention = 24 * time.Hour
)

// Trigger sources recorded on sync runs
const (
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
	TriggerScheduler = "scheduler"
)

// Runner performs one reconciliation run.
type Runner interface {
	Run(ctx context.Context, opts appsync.Options) (*appsync.Result, error)
}

// SyncRequest holds parameters for starting a sync.
type SyncRequest struct {
	FailFast    bool
	TriggeredBy string
}

// SyncProgress holds real-time progress information.
type SyncProgress struct {
	CurrentPhase       string // "pending", "fetching", "reconciling", "completed", "failed", "cancelled"
	TotalMerchants     int
	ProcessedMerchants int
	LastUpdate         time.Time
}

// SyncJob represents a running or completed sync job.
type SyncJob struct {
	ID          string
	Status      SyncStatus
	Request     SyncRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    SyncProgress
	Result      *appsync.Result
	Error       error
	cancelFunc  context.CancelFunc
}

// snapshot copies the job so callers can read it without holding the lock
func (j *SyncJob) snapshot() *SyncJob {
	c := *j
	c.cancelFunc = nil
	return &c
}

// SyncService manages sync operations. Only one sync runs per process at a time.
type SyncService struct {
	runner   Runner
	logger   *slog.Logger
	failFast bool

	// Job management
	jobs      map[string]*SyncJob
	jobsMutex sync.RWMutex
	jobsWG    sync.WaitGroup

	runLock sync.Mutex

	// Background loops (cleanup and scheduler)
	stopOnce sync.Once
	stop     chan struct{}
	loops    sync.WaitGroup
}

// NewSyncService creates a new sync service.
func NewSyncService(runner Runner, logger *slog.Logger, failFast bool) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		runner:   runner,
		logger:   logger,
		failFast: failFast,
		jobs:     make(map[string]*SyncJob),
		stop:     make(chan struct{}),
	}
}

// RunNow runs a sync synchronously and returns its result.
func (s *SyncService) RunNow(ctx context.Context, triggeredBy string) (*appsync.Result, error) {
	if !s.runLock.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.runLock.Unlock()

	return s.runner.Run(ctx, appsync.Options{
		FailFast:    s.failFast,
		TriggeredBy: triggeredBy,
	})
}

// StartSync starts a new sync job asynchronously.
// Note: The passed context is NOT used as the parent for the background job.
// Background sync jobs use context.Background() to avoid being cancelled when
// the HTTP request completes. Use CancelSync() to cancel a running job.
func (s *SyncService) StartSync(_ context.Context, req SyncRequest) (string, error) {
	if !s.runLock.TryLock() {
		return "", ErrSyncInProgress
	}

	if req.TriggeredBy == "" {
		req.TriggeredBy = TriggerAPI
	}

	jobID := uuid.NewString()
	jobCtx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	job := &SyncJob{
		ID:         jobID,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  now,
		cancelFunc: cancel,
		Progress:   SyncProgress{CurrentPhase: "pending", LastUpdate: now},
	}

	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	s.jobsWG.Add(1)
	go s.runSyncJob(jobCtx, job)

	s.logger.Info("sync job started", "job_id", jobID, "triggered_by", req.TriggeredBy)
	return jobID, nil
}

// GetSyncJob retrieves a snapshot of a sync job by ID.
func (s *SyncService) GetSyncJob(jobID string) (*SyncJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.snapshot(), nil
}

// ListActiveSyncJobs returns all running or pending jobs.
func (s *SyncService) ListActiveSyncJobs() []*SyncJob {
	return s.listJobs(func(j *SyncJob) bool {
		return j.Status == StatusPending || j.Status == StatusRunning
	})
}

// ListSyncJobs returns all known jobs, newest first.
func (s *SyncService) ListSyncJobs() []*SyncJob {
	return s.listJobs(func(*SyncJob) bool { return true })
}

func (s *SyncService) listJobs(keep func(*SyncJob) bool) []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if keep(job) {
			jobs = append(jobs, job.snapshot())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// CancelSync cancels a running sync job.
func (s *SyncService) CancelSync(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	job.Progress.CurrentPhase = "cancelled"
	job.Progress.LastUpdate = now

	s.logger.Info("sync job cancelled", "job_id", jobID)
	return nil
}

// runSyncJob executes the sync job in a background goroutine.
func (s *SyncService) runSyncJob(ctx context.Context, job *SyncJob) {
	defer s.jobsWG.Done()
	defer s.runLock.Unlock()

	s.updateJobStatus(job.ID, StatusRunning)

	result, err := s.runner.Run(ctx, appsync.Options{
		FailFast:    job.Request.FailFast || s.failFast,
		TriggeredBy: job.Request.TriggeredBy,
		OnProgress: func(p appsync.Progress) {
			s.updateJobProgress(job.ID, p)
		},
	})

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Already marked as cancelled in CancelSync
			return
		}
		s.failJob(job.ID, err)
		return
	}

	s.completeJob(job.ID, result)
}

// updateJobStatus updates a job's status unless it already finished.
func (s *SyncService) updateJobStatus(jobID string, status SyncStatus) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && job.Status == StatusPending {
		job.Status = status
		job.Progress.LastUpdate = time.Now()
	}
}

// updateJobProgress updates job progress from the reconciler callback.
func (s *SyncService) updateJobProgress(jobID string, p appsync.Progress) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && job.Status == StatusRunning {
		job.Progress.CurrentPhase = p.Phase
		job.Progress.TotalMerchants = p.Total
		job.Progress.ProcessedMerchants = p.Processed
		job.Progress.LastUpdate = time.Now()
	}
}

// completeJob marks a job as completed with results.
func (s *SyncService) completeJob(jobID string, result *appsync.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != StatusRunning {
		return
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	job.Progress.CurrentPhase = "completed"
	job.Progress.TotalMerchants = result.Fetched
	job.Progress.ProcessedMerchants = result.Fetched
	job.Progress.LastUpdate = now

	s.logger.Info("sync job completed",
		"job_id", jobID,
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed,
	)
}

// failJob marks a job as failed with an error.
func (s *SyncService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != StatusRunning {
		return
	}

	now := time.Now()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Error = err
	job.Progress.CurrentPhase = "failed"
	job.Progress.LastUpdate = now

	s.logger.Error("sync job failed", "job_id", jobID, "error", err)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (s *SyncService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, job := range s.jobs {
		if job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old sync jobs", "removed", removed)
	}
	return removed
}

// MarkStaleJobsAsFailed finds jobs that appear to be stuck and marks them as failed.
// A job is considered stale if it has been running longer than maxDuration, or
// its Progress.LastUpdate is older than staleThreshold. The job's context is
// cancelled; its goroutine releases the run lock when it returns.
func (s *SyncService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0

	for id, job := range s.jobs {
		if job.Status != StatusRunning && job.Status != StatusPending {
			continue
		}

		reason := staleReason(job, now, staleThreshold, maxDuration)
		if reason == "" {
			continue
		}

		if job.cancelFunc != nil {
			job.cancelFunc()
		}

		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = fmt.Errorf("job marked as stale: %s", reason)
		job.Progress.CurrentPhase = "failed"
		job.Progress.LastUpdate = now

		s.logger.Warn("marked stale job as failed",
			"job_id", id,
			"reason", reason,
			"started_at", job.StartedAt,
		)
		marked++
	}

	return marked
}

// IsJobStale checks if a specific job is considered stale.
func (s *SyncService) IsJobStale(jobID string, staleThreshold, maxDuration time.Duration) bool {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false
	}
	if job.Status != StatusRunning && job.Status != StatusPending {
		return false
	}
	return staleReason(job, time.Now(), staleThreshold, maxDuration) != ""
}

func staleReason(job *SyncJob, now time.Time, staleThreshold, maxDuration time.Duration) string {
	if elapsed := now.Sub(job.StartedAt); elapsed > maxDuration {
		return fmt.Sprintf("exceeded max duration of %v (started %v ago)", maxDuration, elapsed.Round(time.Second))
	}
	if idle := now.Sub(job.Progress.LastUpdate); idle > staleThreshold {
		return fmt.Sprintf("no progress update for %v (threshold: %v)", idle.Round(time.Second), staleThreshold)
	}
	return ""
}

// StartBackgroundCleanup periodically marks stale jobs as failed and drops
// finished jobs older than DefaultJobRetention. It stops with Stop.
func (s *SyncService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.loop(checkInterval, func() {
		if n := s.MarkStaleJobsAsFailed(DefaultJobStaleThreshold, DefaultJobMaxDuration); n > 0 {
			s.logger.Info("marked stale jobs as failed", "count", n)
		}
		s.CleanupOldJobs(DefaultJobRetention)
	})
	s.logger.Info("background job cleanup started", "check_interval", checkInterval)
}

// StartScheduler runs a sync every interval until Stop is called.
// A tick that finds a sync already running is skipped.
func (s *SyncService) StartScheduler(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.loop(interval, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		if _, err := s.RunNow(ctx, TriggerScheduler); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Debug("scheduled sync skipped, another sync is running")
				return
			}
			s.logger.Error("scheduled sync failed", "error", err)
		}
	})
	s.logger.Info("sync scheduler started", "interval", interval)
}

func (s *SyncService) loop(interval time.Duration, fn func()) {
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Stop halts background loops, cancels running jobs and waits for them to exit.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.loops.Wait()

	s.jobsMutex.Lock()
	now := time.Now()
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			job.cancelFunc()
			job.Status = StatusCancelled
			job.CompletedAt = &now
			job.Progress.CurrentPhase = "cancelled"
		}
	}
	s.jobsMutex.Unlock()

	s.jobsWG.Wait()
}
