package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/conclave-run/conclave/internal/types"
)

// errorPenalty is subtracted from an agent's score when its status is
// AgentError, clamped so a scoring strategy never returns a
// non-positive score for a candidate that is otherwise eligible.
const errorPenalty = 0.5

// scoreFloor is the minimum score a candidate can receive after the
// error penalty is applied.
const scoreFloor = 0.1

// performanceWindowHours bounds the perfmon lookup behind the
// performance_optimized strategy.
const performanceWindowHours = 24

// LoadSnapshot reports how many subtasks are currently assigned to an
// agent, fed back into the load_balanced strategy by the delegation
// planner as it walks a decomposition's subtasks in order.
type LoadSnapshot map[string]int

// Candidate is a scored agent returned by SelectForTask.
type Candidate struct {
	Agent *types.Agent
	Score float64
}

// PerfSource resolves an agent's rolling performance aggregate for the
// performance_optimized strategy. Satisfied by *perfmon.Monitor.
type PerfSource interface {
	GetAgentPerformance(ctx context.Context, agentID string, windowHours int) (*types.AgentPerformance, error)
}

// SetPerfSource attaches the Performance Monitor backing the
// performance_optimized strategy. Call once, before serving selections
// under that strategy; without it, performance_optimized falls back to
// treating every agent as having no recorded history.
func (r *Registry) SetPerfSource(p PerfSource) {
	r.perf = p
}

// SelectForTask scores every agent offering at least one of
// requiredCaps under strategy and returns them best-first. Ties break
// lexicographically by agent name so selection is deterministic.
func (r *Registry) SelectForTask(ctx context.Context, requiredCaps []string, domain string, strategy types.DelegationStrategy, load LoadSnapshot) ([]Candidate, error) {
	if len(requiredCaps) == 0 {
		requiredCaps = []string{"general"}
	}
	pool := r.poolForCapabilities(requiredCaps)
	if len(pool) == 0 {
		return nil, nil
	}

	score, err := scorerFor(strategy)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(pool))
	for _, a := range pool {
		s := score(ctx, r, a, requiredCaps, domain, load)
		if a.Status == types.AgentError {
			s -= errorPenalty
			if s < scoreFloor {
				s = scoreFloor
			}
		}
		out = append(out, Candidate{Agent: a, Score: s})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Agent.Name < out[j].Agent.Name
	})
	return out, nil
}

// poolForCapabilities resolves the capability index to agent snapshots.
// A decomposition routes many subtasks through the same capability set
// in a tight loop, so the result is cached briefly under scoreCache;
// the cache's own short TTL bounds how stale an agent's status can be
// in a cached pool.
func (r *Registry) poolForCapabilities(requiredCaps []string) []*types.Agent {
	key := poolCacheKey(requiredCaps)
	if cached, ok := r.scoreCache.Get(key); ok {
		return cached.([]*types.Agent)
	}

	r.mu.RLock()
	seen := make(map[string]struct{})
	var pool []*types.Agent
	for _, cap := range requiredCaps {
		for id := range r.capIndex[cap] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			cp := *r.agents[id]
			pool = append(pool, &cp)
		}
	}
	r.mu.RUnlock()

	r.scoreCache.SetDefault(key, pool)
	return pool
}

func poolCacheKey(requiredCaps []string) string {
	sorted := append([]string(nil), requiredCaps...)
	sort.Strings(sorted)
	return "pool:" + strings.Join(sorted, ",")
}

type scorerFunc func(ctx context.Context, r *Registry, a *types.Agent, requiredCaps []string, domain string, load LoadSnapshot) float64

func scorerFor(strategy types.DelegationStrategy) (scorerFunc, error) {
	switch strategy {
	case types.DelegateCapabilityMatch:
		return scoreCapabilityMatch, nil
	case types.DelegateDomainExpert:
		return scoreDomainExpert, nil
	case types.DelegateLoadBalanced:
		return scoreLoadBalanced, nil
	case types.DelegateCostOptimized:
		return scoreCostOptimized, nil
	case types.DelegatePerformanceOptimized:
		return scorePerformanceOptimized, nil
	default:
		return nil, fmt.Errorf("registry: unknown delegation strategy %q", strategy)
	}
}

// capabilityOverlap counts the required capabilities an agent covers.
func capabilityOverlap(a *types.Agent, requiredCaps []string) int {
	matched := 0
	for _, c := range requiredCaps {
		if a.HasCapability(c) {
			matched++
		}
	}
	return matched
}

// scoreCapabilityMatch rewards agents that cover more of the required
// capability set: |A ∩ R| × 0.5 + 1.
func scoreCapabilityMatch(_ context.Context, _ *Registry, a *types.Agent, requiredCaps []string, _ string, _ LoadSnapshot) float64 {
	return float64(capabilityOverlap(a, requiredCaps))*0.5 + 1
}

// scoreDomainExpert has a flat base score of 1, plus 0.3 for an exact
// domain tag match; it does not factor in capability overlap.
func scoreDomainExpert(_ context.Context, _ *Registry, a *types.Agent, _ []string, domain string, _ LoadSnapshot) float64 {
	base := 1.0
	if domain != "" && a.Domain == domain {
		base += 0.3
	}
	return base
}

// scoreLoadBalanced prefers agents with fewer currently assigned
// subtasks: 1 / (current_load + 1).
func scoreLoadBalanced(_ context.Context, _ *Registry, a *types.Agent, _ []string, _ string, load LoadSnapshot) float64 {
	return 1.0 / (float64(load[a.ID]) + 1)
}

// scoreCostOptimized prefers cheaper agents: 1 / (cost_per_request +
// 0.001), read from agent config's "cost_per_request" key when
// present. Agents without a declared cost are treated as cost 0, the
// cheapest possible.
func scoreCostOptimized(_ context.Context, _ *Registry, a *types.Agent, _ []string, _ string, _ LoadSnapshot) float64 {
	cost := 0.0
	if v, ok := a.Config["cost_per_request"]; ok {
		var parsed float64
		if _, err := fmt.Sscanf(v, "%f", &parsed); err == nil && parsed >= 0 {
			cost = parsed
		}
	}
	return 1.0 / (cost + 0.001)
}

// scorePerformanceOptimized blends an agent's rolling success rate
// with its average latency: success_rate × 0.5 + 1000 /
// (avg_latency_ms + 1) × 0.2. Agents with no recorded performance
// history (no PerfSource attached, or no samples yet) score as if
// success_rate=0 and avg_latency_ms=0, the most conservative reading.
func scorePerformanceOptimized(ctx context.Context, r *Registry, a *types.Agent, _ []string, _ string, _ LoadSnapshot) float64 {
	var successRate, avgLatencyMS float64
	if r.perf != nil {
		perf, err := r.perf.GetAgentPerformance(ctx, a.ID, performanceWindowHours)
		if err == nil && perf != nil {
			if agg, ok := perf.Metrics[types.MetricSuccessRate]; ok {
				successRate = agg.Mean
			}
			if agg, ok := perf.Metrics[types.MetricLatency]; ok {
				avgLatencyMS = agg.Mean
			}
		}
	}
	return successRate*0.5 + 1000/(avgLatencyMS+1)*0.2
}
