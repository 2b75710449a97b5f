package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
)

// pingTimeout bounds the database check behind the health endpoints.
const pingTimeout = 2 * time.Second

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
	db     Pinger
	driver string
}

// NewHealthHandler creates a new health handler. driver is reported in the
// db component details.
func NewHealthHandler(db Pinger, driver string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{Base: NewBase(logger), db: db, driver: driver}
}

// Health handles GET /health and GET /dashboard/health.
func (h *HealthHandler) Health(c *gin.Context) {
	db := h.checkDB(c.Request.Context())

	resp := dto.HealthResponse{
		Status:     dto.StatusUp,
		Timestamp:  time.Now().UTC(),
		Message:    "Merchant sync service is running",
		Components: dto.HealthComponents{DB: db},
	}

	status := http.StatusOK
	if db.Status != dto.StatusUp {
		resp.Status = dto.StatusDown
		resp.Message = "Database is unreachable"
		status = http.StatusServiceUnavailable
	}

	h.WriteJSON(c, status, "Health status retrieved successfully", resp)
}

func (h *HealthHandler) checkDB(ctx context.Context) dto.ComponentHealth {
	details := map[string]string{"database": h.driver}
	if h.db == nil {
		return dto.ComponentHealth{Status: dto.StatusDown, Details: details}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("database ping failed", "error", err)
		return dto.ComponentHealth{Status: dto.StatusDown, Details: details}
	}
	return dto.ComponentHealth{Status: dto.StatusUp, Details: details}
}

// databaseState maps a ping result to the dashboard wording.
func databaseState(c dto.ComponentHealth) string {
	if c.Status == dto.StatusUp {
		return "connected"
	}
	return "disconnected"
}
