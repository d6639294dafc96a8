package orchestrator

import (
	"context"
	"fmt"

	"github.com/conclave-run/conclave/internal/registry"
	"github.com/conclave-run/conclave/internal/types"
)

// durationSlack scales the slowest subtask's expected duration up to
// account for scheduling and dispatch overhead not modeled per-subtask.
const durationSlack = 1.2

// Selector is the registry surface delegation planning needs.
type Selector interface {
	SelectForTask(ctx context.Context, requiredCaps []string, domain string, strategy types.DelegationStrategy, load registry.LoadSnapshot) ([]registry.Candidate, error)
}

// BuildDelegationPlan walks a decomposition's subtasks in topological
// order and assigns each one the best-scoring agent, feeding the
// running per-agent load back into the next subtask's scoring so
// load_balanced actually balances across the decomposition instead of
// scoring every subtask against an empty load map.
func BuildDelegationPlan(ctx context.Context, selector Selector, d *types.TaskDecomposition, strategy types.DelegationStrategy, domain string) (*types.DelegationPlan, error) {
	ordered, err := TopologicalOrder(d.Subtasks)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: delegation plan: %w", err)
	}

	plan := &types.DelegationPlan{
		TaskID:           d.TaskID,
		Strategy:         strategy,
		Assignments:      make(map[string]string, len(d.Subtasks)),
		LoadDistribution: make(map[string]int),
	}

	load := make(registry.LoadSnapshot)
	var slowestMS int64

	for _, st := range ordered {
		candidates, err := selector.SelectForTask(ctx, st.RequiredCapabilities, domain, strategy, load)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: select agent for subtask %s: %w", st.ID, err)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("orchestrator: no agent available for subtask %s (capabilities=%v)", st.ID, st.RequiredCapabilities)
		}

		chosen := candidates[0].Agent
		plan.Assignments[st.ID] = chosen.ID
		plan.LoadDistribution[chosen.ID]++
		load[chosen.ID]++

		plan.EstimatedCost += types.ComplexityCost[st.EstimatedComplexity]
		if ms := int64(types.ComplexityDurationMS[st.EstimatedComplexity]); ms > slowestMS {
			slowestMS = ms
		}
	}

	plan.EstimatedDurationMS = int64(float64(slowestMS) * durationSlack)

	return plan, nil
}
