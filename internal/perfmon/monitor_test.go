package perfmon

import (
	"context"
	"testing"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

// fakeStore is an in-memory Store good enough to exercise the
// failure-rate estimator and alert lifecycle without a real database.
type fakeStore struct {
	samples []types.MetricSample
	alerts  map[string]*types.Alert
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: make(map[string]*types.Alert)}
}

func (s *fakeStore) RecordMetrics(ctx context.Context, batch []types.MetricSample) error {
	s.samples = append(s.samples, batch...)
	return nil
}

func (s *fakeStore) MetricValues(ctx context.Context, agentID string, kind types.MetricKind, since time.Time) ([]float64, error) {
	var out []float64
	for _, m := range s.samples {
		if m.AgentID == agentID && m.Kind == kind && !m.Timestamp.Before(since) {
			out = append(out, m.Value)
		}
	}
	return out, nil
}

func (s *fakeStore) RecentMetricValues(ctx context.Context, agentID string, kind types.MetricKind, limit int) ([]float64, error) {
	var matching []types.MetricSample
	for _, m := range s.samples {
		if m.AgentID == agentID && m.Kind == kind {
			matching = append(matching, m)
		}
	}
	if len(matching) > limit {
		matching = matching[len(matching)-limit:]
	}
	out := make([]float64, len(matching))
	for i, m := range matching {
		out[i] = m.Value
	}
	return out, nil
}

func (s *fakeStore) DistinctMetricKinds(ctx context.Context, agentID string, since time.Time) ([]types.MetricKind, error) {
	seen := make(map[types.MetricKind]struct{})
	var out []types.MetricKind
	for _, m := range s.samples {
		if m.AgentID == agentID && !m.Timestamp.Before(since) {
			if _, ok := seen[m.Kind]; !ok {
				seen[m.Kind] = struct{}{}
				out = append(out, m.Kind)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) SaveAlert(ctx context.Context, a *types.Alert) error {
	s.alerts[a.ID] = a
	return nil
}

func (s *fakeStore) ListActiveAlerts(ctx context.Context) ([]*types.Alert, error) {
	var out []*types.Alert
	for _, a := range s.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func record(agentID string, ago time.Duration, success bool) types.MetricSample {
	v := 0.0
	if success {
		v = 1.0
	}
	return types.MetricSample{AgentID: agentID, Kind: types.MetricSuccessRate, Value: v, Timestamp: time.Now().UTC().Add(-ago)}
}

func TestCheckFailureRateBelowMinimumSamplesSkips(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	agentID := EnsureAgentUUID("agent-1")
	for i := 0; i < 3; i++ {
		store.samples = append(store.samples, record(agentID, time.Minute, false))
	}
	m.checkFailureRate(context.Background(), agentID)
	if len(store.alerts) != 0 {
		t.Fatalf("expected no alert with fewer than the minimum sample count, got %d", len(store.alerts))
	}
}

func TestCheckFailureRateBackfillsFromOlderExecutions(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	agentID := EnsureAgentUUID("agent-2")
	// All 10 executions are older than the 24h primary window, so the
	// estimator must fall back to the most recent minFailureRateSamples
	// regardless of age.
	for i := 0; i < 10; i++ {
		store.samples = append(store.samples, record(agentID, 48*time.Hour, false))
	}
	m.checkFailureRate(context.Background(), agentID)
	if len(store.alerts) != 1 {
		t.Fatalf("expected a failure-rate alert backfilled from older executions, got %d", len(store.alerts))
	}
}

func TestCheckFailureRateWithinWindowAndBelowThreshold(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	agentID := EnsureAgentUUID("agent-3")
	for i := 0; i < 10; i++ {
		store.samples = append(store.samples, record(agentID, time.Hour, true))
	}
	m.checkFailureRate(context.Background(), agentID)
	if len(store.alerts) != 0 {
		t.Fatalf("expected no alert when failure rate is 0, got %d", len(store.alerts))
	}
}
