package storage

import "time"

// MerchantStatus is the normalized local status of a merchant
type MerchantStatus string

const (
	StatusActive   MerchantStatus = "active"
	StatusInactive MerchantStatus = "inactive"
)

// Valid reports whether s is one of the known statuses
func (s MerchantStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Merchant is the local record of an upstream merchant, keyed by MID
type Merchant struct {
	ID           int64          `json:"id"`
	MID          string         `json:"mid"`
	Name         string         `json:"name"`
	Status       MerchantStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
}

// MerchantStats contains aggregate merchant statistics
type MerchantStats struct {
	TotalMerchants    int64      `json:"total_merchants"`
	ActiveMerchants   int64      `json:"active_merchants"`
	InactiveMerchants int64      `json:"inactive_merchants"`
	LastSyncDate      *time.Time `json:"last_sync_date,omitempty"`
}
