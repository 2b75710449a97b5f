package dto

// UpdateMerchantRequest is the body of PUT /api/merchants/:mid.
// Omitted fields keep their current value.
type UpdateMerchantRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status" binding:"omitempty,oneof=active inactive ACTIVE INACTIVE"`
}

// StartSyncRequest is the optional body of POST /api/sync.
type StartSyncRequest struct {
	FailFast bool `json:"fail_fast"`
}

// DefaultRunListLimit is used when /api/runs has no usable limit.
const DefaultRunListLimit = 20
