// Package merchant holds the rules for turning an upstream merchant record
// into local merchant fields.
//
// Name precedence:
//   - MerchName (doing-business-as name)
//   - legalName
//   - "Unknown Merchant"
//
// A candidate counts as missing when it is absent, null, empty, or only
// whitespace, so a blank MerchName falls through to legalName rather than
// being stored as an empty name.
//
// Status is inactive when the free-text customer status mentions "inactive"
// or "suspended" anywhere, case-insensitive. Everything else, including a
// missing status, is active. The match is a substring match on purpose:
// "Suspended - Pending Review" must classify as inactive.
package merchant

import (
	"strings"

	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// UnknownName is used when the upstream record carries no usable name.
const UnknownName = "Unknown Merchant"

var inactiveMarkers = []string{"inactive", "suspended"}

// ResolveName returns the first non-blank candidate, in order, or UnknownName.
func ResolveName(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return UnknownName
}

// ResolveStatus maps the upstream customer status to a local status.
func ResolveStatus(customerStatus string) storage.MerchantStatus {
	lower := strings.ToLower(customerStatus)
	for _, marker := range inactiveMarkers {
		if strings.Contains(lower, marker) {
			return storage.StatusInactive
		}
	}
	return storage.StatusActive
}

// NormalizeMID trims surrounding whitespace; an empty result means the record has no key.
func NormalizeMID(mid string) string {
	return strings.TrimSpace(mid)
}
