package orchestrator

import (
	"context"
	"testing"

	"github.com/conclave-run/conclave/internal/registry"
	"github.com/conclave-run/conclave/internal/types"
)

// fakeSelector always hands back a single fixed agent, recording the
// first required capability of each call in the order calls arrive.
type fakeSelector struct {
	agentID string
	seen    []string
}

func (f *fakeSelector) SelectForTask(ctx context.Context, requiredCaps []string, domain string, strategy types.DelegationStrategy, load registry.LoadSnapshot) ([]registry.Candidate, error) {
	if len(requiredCaps) > 0 {
		f.seen = append(f.seen, requiredCaps[0])
	}
	return []registry.Candidate{{Agent: &types.Agent{ID: f.agentID, Name: f.agentID}, Score: 1}}, nil
}

func TestBuildDelegationPlanDurationIsMaxTimesSlack(t *testing.T) {
	d := &types.TaskDecomposition{
		TaskID: "t1",
		Subtasks: []*types.Subtask{
			{ID: "s1", EstimatedComplexity: types.ComplexityLow},
			{ID: "s2", EstimatedComplexity: types.ComplexityHigh, Dependencies: []string{"s1"}},
			{ID: "s3", EstimatedComplexity: types.ComplexityMedium, Dependencies: []string{"s1"}},
		},
	}

	sel := &fakeSelector{agentID: "a1"}
	plan, err := BuildDelegationPlan(context.Background(), sel, d, types.DelegateCapabilityMatch, "")
	if err != nil {
		t.Fatalf("BuildDelegationPlan: %v", err)
	}

	want := int64(float64(types.ComplexityDurationMS[types.ComplexityHigh]) * durationSlack)
	if plan.EstimatedDurationMS != want {
		t.Fatalf("want duration %d (max complexity x slack), got %d", want, plan.EstimatedDurationMS)
	}

	wantCost := types.ComplexityCost[types.ComplexityLow] + types.ComplexityCost[types.ComplexityHigh] + types.ComplexityCost[types.ComplexityMedium]
	if plan.EstimatedCost != wantCost {
		t.Fatalf("want cost %v, got %v", wantCost, plan.EstimatedCost)
	}
}

func TestBuildDelegationPlanWalksTopologicalOrder(t *testing.T) {
	d := &types.TaskDecomposition{
		TaskID: "t1",
		Subtasks: []*types.Subtask{
			{ID: "s2", Dependencies: []string{"s1"}, RequiredCapabilities: []string{"s2"}},
			{ID: "s1", RequiredCapabilities: []string{"s1"}},
		},
	}

	sel := &fakeSelector{agentID: "a1"}
	plan, err := BuildDelegationPlan(context.Background(), sel, d, types.DelegateCapabilityMatch, "")
	if err != nil {
		t.Fatalf("BuildDelegationPlan: %v", err)
	}
	if plan.Assignments["s1"] != "a1" || plan.Assignments["s2"] != "a1" {
		t.Fatalf("unexpected assignments: %+v", plan.Assignments)
	}
	if len(sel.seen) != 2 || sel.seen[0] != "s1" || sel.seen[1] != "s2" {
		t.Fatalf("want selection order [s1 s2], got %v", sel.seen)
	}
}

func TestBuildDelegationPlanRejectsCycle(t *testing.T) {
	d := &types.TaskDecomposition{
		TaskID: "t1",
		Subtasks: []*types.Subtask{
			{ID: "s1", Dependencies: []string{"s2"}},
			{ID: "s2", Dependencies: []string{"s1"}},
		},
	}

	sel := &fakeSelector{agentID: "a1"}
	if _, err := BuildDelegationPlan(context.Background(), sel, d, types.DelegateCapabilityMatch, ""); err == nil {
		t.Fatal("expected an error for a cyclic decomposition")
	}
}
