package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// RunsHandler handles sync run history requests.
type RunsHandler struct {
	*Base
	runs storage.SyncRunRepository
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs storage.SyncRunRepository, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(logger),
		runs: runs,
	}
}

// List handles GET /api/runs?limit=
func (h *RunsHandler) List(c *gin.Context) {
	limit := ParseIntQuery(c, "limit", dto.DefaultRunListLimit)
	if limit <= 0 {
		limit = dto.DefaultRunListLimit
	}

	runs, err := h.runs.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		h.WriteInternalError(c, "failed to list sync runs", err)
		return
	}

	resp := dto.SyncRunListResponse{
		Runs:  make([]dto.SyncRunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toSyncRunResponse(run))
	}

	h.WriteJSON(c, http.StatusOK, "Sync runs retrieved successfully", resp)
}

// Get handles GET /api/runs/:id
func (h *RunsHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.runs.GetSyncRun(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("sync run"))
		return
	}
	if err != nil {
		h.WriteInternalError(c, "failed to load sync run", err)
		return
	}

	h.WriteJSON(c, http.StatusOK, "Sync run retrieved successfully", toSyncRunResponse(*run))
}

// toSyncRunResponse converts a storage SyncRun to an API response.
func toSyncRunResponse(run storage.SyncRun) dto.SyncRunResponse {
	resp := dto.SyncRunResponse{
		ID:               run.ID,
		TriggeredBy:      run.TriggeredBy,
		StartedAt:        run.StartedAt.Format(time.RFC3339),
		Status:           run.Status,
		MerchantsFetched: run.MerchantsFetched,
		MerchantsCreated: run.MerchantsCreated,
		MerchantsUpdated: run.MerchantsUpdated,
		MerchantsSkipped: run.MerchantsSkipped,
		MerchantsFailed:  run.MerchantsFailed,
		DurationMs:       run.DurationMs,
		ErrorMessage:     run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		completedAt := run.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}
	return resp
}
