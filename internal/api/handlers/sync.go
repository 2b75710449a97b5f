package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
	"github.com/eshaffer321/merchant-sync-backend/internal/application/service"
)

// SyncHandler handles background sync job requests.
type SyncHandler struct {
	*Base
	syncService *service.SyncService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncService *service.SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		Base:        NewBase(logger),
		syncService: syncService,
	}
}

// StartSync handles POST /api/sync - starts a new sync job. The body is optional.
func (h *SyncHandler) StartSync(c *gin.Context) {
	var req dto.StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	jobID, err := h.syncService.StartSync(c.Request.Context(), service.SyncRequest{
		FailFast:    req.FailFast,
		TriggeredBy: service.TriggerAPI,
	})
	if errors.Is(err, service.ErrSyncInProgress) {
		h.WriteError(c, http.StatusConflict, dto.SyncConflictError())
		return
	}
	if err != nil {
		h.WriteInternalError(c, "failed to start sync job", err)
		return
	}

	h.WriteJSON(c, http.StatusAccepted, "Sync job started", dto.StartSyncResponse{
		JobID:  jobID,
		Status: string(service.StatusPending),
	})
}

// GetSyncStatus handles GET /api/sync/:jobId
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	job, err := h.syncService.GetSyncJob(c.Param("jobId"))
	if err != nil {
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("sync job"))
		return
	}

	h.WriteJSON(c, http.StatusOK, "Sync job retrieved successfully", toSyncJobResponse(job))
}

// ListActiveSyncs handles GET /api/sync/active
func (h *SyncHandler) ListActiveSyncs(c *gin.Context) {
	h.WriteJSON(c, http.StatusOK, "Active sync jobs retrieved successfully",
		toSyncJobList(h.syncService.ListActiveSyncJobs()))
}

// ListAllSyncs handles GET /api/sync
func (h *SyncHandler) ListAllSyncs(c *gin.Context) {
	h.WriteJSON(c, http.StatusOK, "Sync jobs retrieved successfully",
		toSyncJobList(h.syncService.ListSyncJobs()))
}

// CancelSync handles DELETE /api/sync/:jobId
func (h *SyncHandler) CancelSync(c *gin.Context) {
	err := h.syncService.CancelSync(c.Param("jobId"))
	if errors.Is(err, service.ErrJobNotFound) {
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("sync job"))
		return
	}
	if err != nil {
		h.WriteError(c, http.StatusConflict, dto.NewAPIError("cancel_failed", err.Error()))
		return
	}

	h.WriteJSON(c, http.StatusOK, "Sync job cancelled successfully", nil)
}

func toSyncJobList(jobs []*service.SyncJob) dto.SyncJobListResponse {
	resp := dto.SyncJobListResponse{
		Jobs:  make([]dto.SyncJobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, toSyncJobResponse(job))
	}
	return resp
}

// toSyncJobResponse converts a service model to an API response.
func toSyncJobResponse(job *service.SyncJob) dto.SyncJobResponse {
	resp := dto.SyncJobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		TriggeredBy: job.Request.TriggeredBy,
		FailFast:    job.Request.FailFast,
		StartedAt:   job.StartedAt.Format(time.RFC3339),
		Progress: dto.SyncProgressResponse{
			CurrentPhase:       job.Progress.CurrentPhase,
			TotalMerchants:     job.Progress.TotalMerchants,
			ProcessedMerchants: job.Progress.ProcessedMerchants,
			LastUpdate:         job.Progress.LastUpdate.Format(time.RFC3339),
		},
	}

	if job.CompletedAt != nil {
		completedAt := job.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}
	if job.Result != nil {
		resp.Result = job.Result
	}
	if job.Error != nil {
		msg := job.Error.Error()
		resp.Error = &msg
	}
	return resp
}
