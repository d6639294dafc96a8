// Package perfmon implements the Performance Monitor: non-blocking
// metric ingestion with a buffered flush, rolling aggregates per
// agent and system-wide, and anomaly-triggered alerts with a
// time-boxed lifecycle.
package perfmon

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

const (
	flushBatchSize = 100
	flushInterval  = 60 * time.Second

	latencyWarnThreshold = 10 * time.Second

	// failureRateWindow and minFailureRateSamples implement the rolling
	// failure-rate estimator: use the last 24h of success-rate samples,
	// but if that window has fewer than minFailureRateSamples
	// executions, fall back to the most recent minFailureRateSamples
	// regardless of age, so an infrequently-used agent still gets a
	// judgeable rate instead of being silently skipped.
	failureRateWindow     = 24 * time.Hour
	minFailureRateSamples = 10
	failureRateThreshold  = 0.5

	alertSweepInterval = 30 * time.Second
	alertRetention     = 7 * 24 * time.Hour
)

// Store is the persistence surface the monitor needs.
type Store interface {
	RecordMetrics(ctx context.Context, samples []types.MetricSample) error
	MetricValues(ctx context.Context, agentID string, kind types.MetricKind, since time.Time) ([]float64, error)
	RecentMetricValues(ctx context.Context, agentID string, kind types.MetricKind, limit int) ([]float64, error)
	DistinctMetricKinds(ctx context.Context, agentID string, since time.Time) ([]types.MetricKind, error)
	SaveAlert(ctx context.Context, a *types.Alert) error
	ListActiveAlerts(ctx context.Context) ([]*types.Alert, error)
	DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Monitor buffers incoming samples and flushes them to the store in
// batches, off the ingestion caller's goroutine.
type Monitor struct {
	store Store

	mu     sync.Mutex
	buffer []types.MetricSample

	alertsMu     sync.Mutex
	activeAlerts map[string]*types.Alert // id -> alert, mirrors store for fast lookup

	flushCh chan struct{}
}

// New constructs a Monitor. Call Run in a goroutine to start its
// background flush and alert-sweep loops.
func New(store Store) *Monitor {
	return &Monitor{
		store:        store,
		activeAlerts: make(map[string]*types.Alert),
		flushCh:      make(chan struct{}, 1),
	}
}

// Record ingests one sample without blocking on storage. The sample
// is appended to an in-memory buffer; Run's flush loop drains it.
func (m *Monitor) Record(sample types.MetricSample) {
	sample.AgentID = EnsureAgentUUID(sample.AgentID)
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.buffer = append(m.buffer, sample)
	full := len(m.buffer) >= flushBatchSize
	m.mu.Unlock()

	if full {
		select {
		case m.flushCh <- struct{}{}:
		default:
		}
	}
}

// RecordAgentExecution is the high-level entry point used by the
// orchestrator after a subtask finishes: it records latency and a
// success/failure sample, then checks both for an immediate anomaly.
func (m *Monitor) RecordAgentExecution(ctx context.Context, agentID string, latency time.Duration, success bool, cost float64) {
	agentID = EnsureAgentUUID(agentID)
	now := time.Now().UTC()

	m.Record(types.MetricSample{AgentID: agentID, Kind: types.MetricLatency, Value: float64(latency.Milliseconds()), Timestamp: now})
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	m.Record(types.MetricSample{AgentID: agentID, Kind: types.MetricSuccessRate, Value: successVal, Timestamp: now})
	if cost > 0 {
		m.Record(types.MetricSample{AgentID: agentID, Kind: types.MetricCost, Value: cost, Timestamp: now})
	}

	if latency > latencyWarnThreshold {
		m.raise(ctx, types.Alert{
			Title:    "agent latency exceeded threshold",
			Message:  agentID + " execution took longer than 10s",
			Severity: types.SeverityWarning,
			Source:   "perfmon",
			SourceID: agentID,
		})
	}

	m.checkFailureRate(ctx, agentID)
}

func (m *Monitor) checkFailureRate(ctx context.Context, agentID string) {
	since := time.Now().UTC().Add(-failureRateWindow)
	values, err := m.store.MetricValues(ctx, agentID, types.MetricSuccessRate, since)
	if err != nil {
		log.Printf("[perfmon] failure-rate lookup for %s: %v", agentID, err)
		return
	}

	if len(values) < minFailureRateSamples {
		recent, err := m.store.RecentMetricValues(ctx, agentID, types.MetricSuccessRate, minFailureRateSamples)
		if err != nil {
			log.Printf("[perfmon] failure-rate backfill for %s: %v", agentID, err)
			return
		}
		values = recent
	}
	if len(values) < minFailureRateSamples {
		return // fewer than minFailureRateSamples executions recorded at all
	}

	var failures int
	for _, v := range values {
		if v == 0 {
			failures++
		}
	}
	rate := float64(failures) / float64(len(values))
	if rate > failureRateThreshold {
		m.raise(ctx, types.Alert{
			Title:    "agent failure rate elevated",
			Message:  agentID + " failure rate exceeded 50% over its recent execution history",
			Severity: types.SeverityError,
			Source:   "perfmon",
			SourceID: agentID,
		})
	}
}

// Flush drains the in-memory buffer to the store.
func (m *Monitor) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := m.store.RecordMetrics(ctx, batch); err != nil {
		log.Printf("[perfmon] flush failed, %d samples dropped: %v", len(batch), err)
		return err
	}
	return nil
}

// Run drives the buffered flush and alert-sweep loops until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()
	sweepTicker := time.NewTicker(alertSweepInterval)
	defer sweepTicker.Stop()

	log.Println("[perfmon] monitor started")
	for {
		select {
		case <-ctx.Done():
			m.Flush(context.Background())
			log.Println("[perfmon] monitor stopped")
			return
		case <-flushTicker.C:
			m.Flush(ctx)
		case <-m.flushCh:
			m.Flush(ctx)
		case <-sweepTicker.C:
			m.sweepAlerts(ctx)
		}
	}
}

func (m *Monitor) sweepAlerts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-alertRetention)
	n, err := m.store.DeleteResolvedAlertsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[perfmon] alert gc: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[perfmon] gc'd %d resolved alerts older than %s", n, alertRetention)
	}
}
