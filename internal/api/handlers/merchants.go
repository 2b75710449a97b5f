package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/adapters/privvy"
	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
	"github.com/eshaffer321/merchant-sync-backend/internal/application/service"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// MerchantsHandler handles merchant-related HTTP requests.
type MerchantsHandler struct {
	*Base
	merchants *service.MerchantService
	syncs     *service.SyncService
}

// NewMerchantsHandler creates a new merchants handler.
// If syncs is nil, POST /api/merchants/sync answers 503.
func NewMerchantsHandler(merchants *service.MerchantService, syncs *service.SyncService, logger *slog.Logger) *MerchantsHandler {
	return &MerchantsHandler{
		Base:      NewBase(logger),
		merchants: merchants,
		syncs:     syncs,
	}
}

// List handles GET /api/merchants?page=&size=&status=&search=
func (h *MerchantsHandler) List(c *gin.Context) {
	page, err := h.merchants.ListMerchants(c.Request.Context(), service.MerchantQuery{
		Page:   ParseIntQuery(c, "page", 0),
		Size:   ParseIntQuery(c, "size", service.DefaultPageSize),
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			h.WriteError(c, http.StatusBadRequest, dto.ValidationError(verr.Error()))
			return
		}
		h.WriteInternalError(c, "failed to list merchants", err)
		return
	}

	resp := dto.MerchantPageResponse{
		Content:          make([]dto.MerchantResponse, 0, len(page.Content)),
		TotalElements:    page.TotalElements,
		TotalPages:       page.TotalPages,
		Size:             page.Size,
		Number:           page.Number,
		First:            page.First,
		Last:             page.Last,
		NumberOfElements: page.NumberOfElements,
	}
	for _, m := range page.Content {
		resp.Content = append(resp.Content, dto.NewMerchantResponse(m))
	}

	h.WriteJSON(c, http.StatusOK, "Merchants retrieved successfully", resp)
}

// Get handles GET /api/merchants/:mid
func (h *MerchantsHandler) Get(c *gin.Context) {
	m, err := h.merchants.GetMerchant(c.Request.Context(), c.Param("mid"))
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("merchant"))
		return
	}
	if err != nil {
		h.WriteInternalError(c, "failed to load merchant", err)
		return
	}

	h.WriteJSON(c, http.StatusOK, "Merchant retrieved successfully", dto.NewMerchantResponse(m))
}

// Update handles PUT /api/merchants/:mid
func (h *MerchantsHandler) Update(c *gin.Context) {
	var req dto.UpdateMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("invalid request body: "+err.Error()))
		return
	}

	m, err := h.merchants.UpdateMerchant(c.Request.Context(), c.Param("mid"), service.MerchantUpdate{
		Name:   req.Name,
		Status: req.Status,
	})

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError(verr.Error()))
		return
	case errors.Is(err, storage.ErrNotFound):
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("merchant"))
		return
	case err != nil:
		h.WriteInternalError(c, "failed to update merchant", err)
		return
	}

	h.WriteJSON(c, http.StatusOK, "Merchant updated successfully", dto.NewMerchantResponse(m))
}

// Stats handles GET /api/merchants/stats
func (h *MerchantsHandler) Stats(c *gin.Context) {
	stats, err := h.merchants.GetMerchantStats(c.Request.Context())
	if err != nil {
		h.WriteInternalError(c, "failed to load merchant stats", err)
		return
	}

	h.WriteJSON(c, http.StatusOK, "Merchant statistics retrieved successfully", dto.NewMerchantStatsResponse(stats))
}

// Sync handles POST /api/merchants/sync - runs a sync and waits for it.
func (h *MerchantsHandler) Sync(c *gin.Context) {
	if h.syncs == nil {
		h.WriteError(c, http.StatusServiceUnavailable, dto.NewAPIError(dto.ErrCodeInternalError, "merchant sync is not configured"))
		return
	}

	result, err := h.syncs.RunNow(c.Request.Context(), service.TriggerAPI)
	if err != nil {
		status, apiErr := syncErrorResponse(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("merchant sync failed", "error", err)
		}
		h.WriteError(c, status, apiErr)
		return
	}

	h.WriteJSON(c, http.StatusOK, "Merchant sync completed", result)
}

// syncErrorResponse maps a failed run to its HTTP status and error body.
func syncErrorResponse(err error) (int, dto.APIError) {
	var authErr *privvy.AuthError
	var fetchErr *privvy.FetchError

	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict, dto.SyncConflictError()
	case errors.As(err, &authErr):
		return http.StatusBadGateway, dto.NewAPIError(dto.ErrCodeUpstreamAuthFailed, err.Error())
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, dto.NewAPIError(dto.ErrCodeUpstreamFetchFailed, err.Error())
	default:
		return http.StatusInternalServerError, dto.NewAPIError(dto.ErrCodeInternalError, err.Error())
	}
}
