package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phases reported through Options.OnProgress
const (
	PhaseFetching    = "fetching"
	PhaseReconciling = "reconciling"
)

// Progress is a snapshot of a run in flight
type Progress struct {
	Phase     string
	Processed int
	Total     int
}

// Options holds per-run settings
type Options struct {
	// FailFast aborts the run on the first record that cannot be stored.
	// Otherwise failures are counted and the run continues.
	FailFast bool

	// TriggeredBy is recorded on the sync run (cli, api, scheduler)
	TriggeredBy string

	// OnProgress, if set, is called as the run advances
	OnProgress func(Progress)
}

// Result holds sync results
type Result struct {
	RunID      int64
	Fetched    int
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	FailedMIDs []string
	Duration   time.Duration
}

// FormatDuration renders d as seconds with one decimal, e.g. "2.3s"
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

type resultJSON struct {
	MerchantsFetched int      `json:"merchantsFetched"`
	MerchantsCreated int      `json:"merchantsCreated"`
	MerchantsUpdated int      `json:"merchantsUpdated"`
	MerchantsSkipped int      `json:"merchantsSkipped"`
	MerchantsFailed  int      `json:"merchantsFailed"`
	FailedMIDs       []string `json:"failedMids,omitempty"`
	Duration         string   `json:"duration"`
}

// MarshalJSON renders the result in the API's camelCase shape
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		MerchantsFetched: r.Fetched,
		MerchantsCreated: r.Created,
		MerchantsUpdated: r.Updated,
		MerchantsSkipped: r.Skipped,
		MerchantsFailed:  r.Failed,
		FailedMIDs:       r.FailedMIDs,
		Duration:         FormatDuration(r.Duration),
	})
}
