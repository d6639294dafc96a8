package perfmon

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

// GetAgentPerformance computes the rolling aggregate for an agent
// over the trailing windowHours.
func (m *Monitor) GetAgentPerformance(ctx context.Context, agentID string, windowHours int) (*types.AgentPerformance, error) {
	agentID = EnsureAgentUUID(agentID)
	since := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)

	kinds, err := m.store.DistinctMetricKinds(ctx, agentID, since)
	if err != nil {
		return nil, err
	}

	out := &types.AgentPerformance{
		AgentID:     agentID,
		WindowHours: windowHours,
		Metrics:     make(map[types.MetricKind]types.Aggregate, len(kinds)),
	}
	for _, k := range kinds {
		values, err := m.store.MetricValues(ctx, agentID, k, since)
		if err != nil {
			return nil, err
		}
		out.Metrics[k] = computeAggregate(values)
	}
	return out, nil
}

// GetSystemPerformance computes the rolling aggregate over the
// system-wide sentinel agent's metrics.
func (m *Monitor) GetSystemPerformance(ctx context.Context, windowHours int) (*types.SystemPerformance, error) {
	perf, err := m.GetAgentPerformance(ctx, SystemAgentID(), windowHours)
	if err != nil {
		return nil, err
	}

	sys := &types.SystemPerformance{
		WindowHours: windowHours,
		Metrics:     perf.Metrics,
	}
	if agg, ok := perf.Metrics[types.MetricCost]; ok {
		sys.CostSummary = agg.Mean * float64(agg.Count)
	}
	return sys, nil
}

func computeAggregate(values []float64) types.Aggregate {
	if len(values) == 0 {
		return types.Aggregate{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sqDiff float64
	for _, v := range sorted {
		d := v - mean
		sqDiff += d * d
	}
	stddev := math.Sqrt(sqDiff / float64(len(sorted)))

	return types.Aggregate{
		Count:  len(sorted),
		Mean:   mean,
		Median: median(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		StdDev: stddev,
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
