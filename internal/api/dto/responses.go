package dto

import (
	"time"

	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}

// Fail wraps an APIError in a failed envelope.
func Fail(err APIError) Response {
	return Response{Success: false, Message: err.Message, Error: &err}
}

// Component statuses
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// HealthResponse is returned by /health and /dashboard/health.
type HealthResponse struct {
	Status     string           `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
	Message    string           `json:"message"`
	Components HealthComponents `json:"components"`
}

// HealthComponents lists the dependencies checked by the health endpoint.
type HealthComponents struct {
	DB ComponentHealth `json:"db"`
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// MerchantResponse is a merchant as exposed by the API.
type MerchantResponse struct {
	ID           int64      `json:"id"`
	MID          string     `json:"mid"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
}

// NewMerchantResponse converts a stored merchant.
func NewMerchantResponse(m *storage.Merchant) MerchantResponse {
	return MerchantResponse{
		ID:           m.ID,
		MID:          m.MID,
		Name:         m.Name,
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		LastSyncedAt: m.LastSyncedAt,
	}
}

// MerchantPageResponse is one page of merchants.
type MerchantPageResponse struct {
	Content          []MerchantResponse `json:"content"`
	TotalElements    int64              `json:"totalElements"`
	TotalPages       int                `json:"totalPages"`
	Size             int                `json:"size"`
	Number           int                `json:"number"`
	First            bool               `json:"first"`
	Last             bool               `json:"last"`
	NumberOfElements int                `json:"numberOfElements"`
}

// MerchantStatsResponse holds aggregate merchant counts.
type MerchantStatsResponse struct {
	TotalMerchants    int64      `json:"totalMerchants"`
	ActiveMerchants   int64      `json:"activeMerchants"`
	InactiveMerchants int64      `json:"inactiveMerchants"`
	LastSyncDate      *time.Time `json:"lastSyncDate"`
}

// NewMerchantStatsResponse converts stored stats.
func NewMerchantStatsResponse(s *storage.MerchantStats) MerchantStatsResponse {
	return MerchantStatsResponse{
		TotalMerchants:    s.TotalMerchants,
		ActiveMerchants:   s.ActiveMerchants,
		InactiveMerchants: s.InactiveMerchants,
		LastSyncDate:      s.LastSyncDate,
	}
}

// DashboardStatsResponse is returned by /dashboard/stats.
type DashboardStatsResponse struct {
	Merchants    DashboardMerchants `json:"merchants"`
	SyncStatus   DashboardSync      `json:"syncStatus"`
	SystemHealth SystemHealth       `json:"systemHealth"`
}

// DashboardMerchants are the merchant totals shown on the dashboard.
type DashboardMerchants struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// DashboardSync holds the last sync timestamps.
type DashboardSync struct {
	LastMerchantSync *time.Time `json:"lastMerchantSync"`
}

// SystemHealth summarizes dependency status for the dashboard.
type SystemHealth struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	PrivvyAPI string `json:"privvyApi"`
}

// SyncRunResponse represents a sync run in API responses.
type SyncRunResponse struct {
	ID               int64   `json:"id"`
	TriggeredBy      string  `json:"triggered_by"`
	StartedAt        string  `json:"started_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
	Status           string  `json:"status"`
	MerchantsFetched int     `json:"merchants_fetched"`
	MerchantsCreated int     `json:"merchants_created"`
	MerchantsUpdated int     `json:"merchants_updated"`
	MerchantsSkipped int     `json:"merchants_skipped"`
	MerchantsFailed  int     `json:"merchants_failed"`
	DurationMs       int64   `json:"duration_ms"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// SyncRunListResponse is a list of sync runs.
type SyncRunListResponse struct {
	Runs  []SyncRunResponse `json:"runs"`
	Count int               `json:"count"`
}

// StartSyncResponse is returned when a sync job is accepted.
type StartSyncResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// SyncJobResponse represents a sync job's status.
type SyncJobResponse struct {
	JobID       string               `json:"job_id"`
	Status      string               `json:"status"`
	TriggeredBy string               `json:"triggered_by"`
	FailFast    bool                 `json:"fail_fast"`
	StartedAt   string               `json:"started_at"`
	CompletedAt *string              `json:"completed_at,omitempty"`
	Progress    SyncProgressResponse `json:"progress"`
	Result      any                  `json:"result,omitempty"`
	Error       *string              `json:"error,omitempty"`
}

// SyncProgressResponse represents real-time progress.
type SyncProgressResponse struct {
	CurrentPhase       string `json:"current_phase"`
	TotalMerchants     int    `json:"total_merchants"`
	ProcessedMerchants int    `json:"processed_merchants"`
	LastUpdate         string `json:"last_update"`
}

// SyncJobListResponse lists sync jobs.
type SyncJobListResponse struct {
	Jobs  []SyncJobResponse `json:"jobs"`
	Count int               `json:"count"`
}
