package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

type fakeExecutor struct {
	fail map[string]bool
}

func (f *fakeExecutor) Execute(ctx context.Context, agentID string, st *types.Subtask) (map[string]interface{}, error) {
	if f.fail[st.ID] {
		return nil, fmt.Errorf("boom")
	}
	return map[string]interface{}{"subtask": st.ID}, nil
}

func decomp(subtasks ...*types.Subtask) *types.TaskDecomposition {
	return &types.TaskDecomposition{TaskID: "t1", Subtasks: subtasks}
}

func planFor(subtasks []*types.Subtask) *types.DelegationPlan {
	p := &types.DelegationPlan{Assignments: make(map[string]string)}
	for _, st := range subtasks {
		p.Assignments[st.ID] = "agent-1"
	}
	return p
}

func TestExecuteDAGHappyPath(t *testing.T) {
	subtasks := []*types.Subtask{
		{ID: "a", Status: types.SubtaskPending},
		{ID: "b", Status: types.SubtaskPending, Dependencies: []string{"a"}},
	}
	d := decomp(subtasks...)
	agg, err := ExecuteDAG(context.Background(), d, planFor(subtasks), &fakeExecutor{}, 2)
	if err != nil {
		t.Fatalf("ExecuteDAG: %v", err)
	}
	if agg.SubtasksSuccessful != 2 || agg.SubtasksFailed != 0 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if len(agg.CombinedResults) != 2 {
		t.Fatalf("want 2 combined results, got %d", len(agg.CombinedResults))
	}
}

func TestExecuteDAGPropagatesFailure(t *testing.T) {
	subtasks := []*types.Subtask{
		{ID: "a", Status: types.SubtaskPending},
		{ID: "b", Status: types.SubtaskPending, Dependencies: []string{"a"}},
		{ID: "c", Status: types.SubtaskPending, Dependencies: []string{"b"}},
	}
	d := decomp(subtasks...)
	exec := &fakeExecutor{fail: map[string]bool{"a": true}}
	agg, err := ExecuteDAG(context.Background(), d, planFor(subtasks), exec, 2)
	if err != nil {
		t.Fatalf("ExecuteDAG: %v", err)
	}
	if agg.SubtasksFailed != 3 {
		t.Fatalf("want all 3 subtasks failed by propagation, got %d", agg.SubtasksFailed)
	}
	if subtasks[1].Error == "" || subtasks[2].Error == "" {
		t.Fatalf("dependents should carry a propagation error")
	}
}

func TestExecuteDAGCancellation(t *testing.T) {
	subtasks := []*types.Subtask{{ID: "a", Status: types.SubtaskPending}}
	d := decomp(subtasks...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	agg, err := ExecuteDAG(ctx, d, planFor(subtasks), &slowExecutor{}, 1)
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > cancelGrace+5*time.Second {
		t.Fatalf("cancellation took too long: %s", time.Since(start))
	}
	if agg.SubtasksFailed != 1 {
		t.Fatalf("cancelled subtask should be recorded as failed")
	}
}

type slowExecutor struct{}

func (slowExecutor) Execute(ctx context.Context, agentID string, st *types.Subtask) (map[string]interface{}, error) {
	<-ctx.Done()
	<-time.After(cancelGrace + time.Second)
	return nil, ctx.Err()
}
