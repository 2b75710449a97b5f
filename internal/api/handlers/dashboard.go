package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// StatsSource provides the merchant aggregates shown on the dashboard.
type StatsSource interface {
	GetMerchantStats(ctx context.Context) (*storage.MerchantStats, error)
}

// DashboardHandler serves /dashboard/stats.
type DashboardHandler struct {
	health           *HealthHandler
	stats            StatsSource
	privvyConfigured bool
}

// NewDashboardHandler creates a dashboard handler. privvyConfigured reflects
// whether upstream credentials were supplied.
func NewDashboardHandler(health *HealthHandler, stats StatsSource, privvyConfigured bool) *DashboardHandler {
	return &DashboardHandler{health: health, stats: stats, privvyConfigured: privvyConfigured}
}

// Stats handles GET /dashboard/stats.
func (h *DashboardHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	db := h.health.checkDB(ctx)
	resp := dto.DashboardStatsResponse{
		SystemHealth: dto.SystemHealth{
			Status:    "healthy",
			Database:  databaseState(db),
			PrivvyAPI: "not_configured",
		},
	}
	if h.privvyConfigured {
		resp.SystemHealth.PrivvyAPI = "configured"
	}

	if db.Status != dto.StatusUp {
		resp.SystemHealth.Status = "degraded"
		h.health.WriteJSON(c, http.StatusOK, "Dashboard statistics retrieved successfully", resp)
		return
	}

	stats, err := h.stats.GetMerchantStats(ctx)
	if err != nil {
		h.health.WriteInternalError(c, "failed to load merchant stats", err)
		return
	}

	resp.Merchants = dto.DashboardMerchants{
		Total:    stats.TotalMerchants,
		Active:   stats.ActiveMerchants,
		Inactive: stats.InactiveMerchants,
	}
	resp.SyncStatus.LastMerchantSync = stats.LastSyncDate

	h.health.WriteJSON(c, http.StatusOK, "Dashboard statistics retrieved successfully", resp)
}
