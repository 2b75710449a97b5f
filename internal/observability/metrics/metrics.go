// Package metrics provides Prometheus instrumentation for merchant syncs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "merchant_sync"

// Outcome labels for merchant_sync_records_total.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// SyncMetrics holds the instruments for sync runs and upstream calls.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	recordsTotal  *prometheus.CounterVec
	loginsTotal   *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

// NewSyncMetrics creates and registers the sync instruments on reg.
// If reg is nil, it returns nil (no-op metrics).
func NewSyncMetrics(reg prometheus.Registerer) (*SyncMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &SyncMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of sync runs by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Merchant records processed by outcome",
		}, []string{"outcome"}),
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_logins_total",
			Help:      "Logins against the upstream provider by result",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Duration of merchant list fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.runsTotal, m.runDuration, m.recordsTotal, m.loginsTotal, m.fetchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordRun records a finished sync run
func (m *SyncMetrics) RecordRun(duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(result(success)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// RecordRecords adds n records with the given outcome
func (m *SyncMetrics) RecordRecords(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordLogin records an upstream login attempt
func (m *SyncMetrics) RecordLogin(success bool) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(result(success)).Inc()
}

// RecordFetch records the duration of a merchant list fetch
func (m *SyncMetrics) RecordFetch(duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(duration.Seconds())
}
