package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := &types.Agent{
		ID:           "a1",
		Name:         "planner",
		Kind:         types.KindOrchestrator,
		Capabilities: []string{"planning", "review"},
		Status:       types.AgentIdle,
		CreatedAt:    time.Now().UTC(),
		LastActivity: time.Now().UTC(),
	}
	if err := s.SaveAgent(ctx, a); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "planner" || len(got.Capabilities) != 2 {
		t.Fatalf("unexpected agent: %+v", got)
	}

	all, err := s.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("want 1 agent, got %d", len(all))
	}

	if err := s.DeleteAgent(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := s.GetAgent(ctx, "a1"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestDecompositionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := &types.TaskDecomposition{
		TaskID:              "t1",
		OriginalDescription: "build a thing",
		Strategy:            types.StrategyHierarchical,
		Subtasks: []*types.Subtask{
			{ID: "s1", Description: "step one", Status: types.SubtaskPending},
			{ID: "s2", Description: "step two", Dependencies: []string{"s1"}, Status: types.SubtaskPending},
		},
		TotalComplexity: 2,
		MaxParallelism:  1,
		CriticalPath:    []string{"s1", "s2"},
	}
	if err := s.SaveDecomposition(ctx, d, time.Now().UTC()); err != nil {
		t.Fatalf("SaveDecomposition: %v", err)
	}

	subtasks, err := s.ListSubtasks(ctx, "t1")
	if err != nil {
		t.Fatalf("ListSubtasks: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("want 2 subtasks, got %d", len(subtasks))
	}
	if subtasks[1].Dependencies[0] != "s1" {
		t.Fatalf("unexpected dependencies: %+v", subtasks[1])
	}
}

func TestLeaderElectionCAS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.AcquireLease(ctx, "orchestrator", "node-a", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	if rec.Term != 1 {
		t.Fatalf("want term 1, got %d", rec.Term)
	}

	// node-b cannot take over while node-a's lease is live.
	if _, err := s.AcquireLease(ctx, "orchestrator", "node-b", time.Minute); err != ErrLeaseHeld {
		t.Fatalf("want ErrLeaseHeld, got %v", err)
	}

	// node-a can renew without bumping the term.
	rec2, err := s.AcquireLease(ctx, "orchestrator", "node-a", time.Minute)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if rec2.Term != 1 {
		t.Fatalf("renewal should not bump term, got %d", rec2.Term)
	}
}

func TestAlertLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	alert := &types.Alert{
		ID:        "al1",
		Title:     "latency spike",
		Message:   "agent a1 exceeded latency threshold",
		Severity:  types.SeverityWarning,
		Source:    "perfmon",
		SourceID:  "a1",
		CreatedAt: now,
	}
	if err := s.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}

	active, err := s.ListActiveAlerts(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActiveAlerts: %v, %d", err, len(active))
	}

	alert.Resolved = true
	resolvedAt := now.Add(-8 * 24 * time.Hour)
	alert.ResolvedAt = &resolvedAt
	if err := s.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	n, err := s.DeleteResolvedAlertsBefore(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 row gc'd, got %d", n)
	}
}
