package sync

import "fmt"

// UpsertError is a per-record storage failure during reconciliation.
type UpsertError struct {
	MID string
	Op  string // "lookup" or "upsert"
	Err error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("failed to %s merchant %s: %v", e.Op, e.MID, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// Phase names the sync phase the error belongs to
func (e *UpsertError) Phase() string { return "upsert" }
