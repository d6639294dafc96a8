package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/conclave-run/conclave/internal/persistence"
	"github.com/conclave-run/conclave/internal/types"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	store, err := persistence.Open(":memory:")
	if err != nil {
		t.Fatalf("persistence.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	r, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, ctx
}

func TestCreateAndGet(t *testing.T) {
	r, ctx := newTestRegistry(t)
	a, err := r.Create(ctx, types.AgentDefinition{Name: "planner", Kind: types.KindOrchestrator, Capabilities: []string{"planning"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.Get(a.ID)
	if err != nil || got.Name != "planner" {
		t.Fatalf("Get: %v, %+v", err, got)
	}

	byName, err := r.GetByName("planner")
	if err != nil || byName.ID != a.ID {
		t.Fatalf("GetByName: %v, %+v", err, byName)
	}
}

func TestCreateDuplicateName(t *testing.T) {
	r, ctx := newTestRegistry(t)
	if _, err := r.Create(ctx, types.AgentDefinition{Name: "dup"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create(ctx, types.AgentDefinition{Name: "dup"}); err != ErrDuplicateName {
		t.Fatalf("want ErrDuplicateName, got %v", err)
	}
}

func TestFindByCapability(t *testing.T) {
	r, ctx := newTestRegistry(t)
	r.Create(ctx, types.AgentDefinition{Name: "a1", Capabilities: []string{"coding", "review"}})
	r.Create(ctx, types.AgentDefinition{Name: "a2", Capabilities: []string{"review"}})
	r.Create(ctx, types.AgentDefinition{Name: "a3", Capabilities: []string{"design"}})

	found := r.FindByCapability("review")
	if len(found) != 2 {
		t.Fatalf("want 2 agents with 'review', got %d", len(found))
	}
}

func TestUpdateRollsBackOnPersistFailure(t *testing.T) {
	r, ctx := newTestRegistry(t)
	a, _ := r.Create(ctx, types.AgentDefinition{Name: "a1", Capabilities: []string{"coding"}})

	newPrompt := "be concise"
	updated, err := r.Update(ctx, a.ID, types.AgentPatch{SystemPrompt: &newPrompt})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SystemPrompt != "be concise" {
		t.Fatalf("unexpected prompt: %q", updated.SystemPrompt)
	}

	r.store = failingSaveStore{r.store}
	if _, err := r.Update(ctx, a.ID, types.AgentPatch{Capabilities: []string{"review"}}); err == nil {
		t.Fatal("want an error when the store write fails")
	}
	got, err := r.Get(a.ID)
	if err != nil || got.SystemPrompt != "be concise" || len(got.Capabilities) != 1 || got.Capabilities[0] != "coding" {
		t.Fatalf("update should have been rolled back: %v, %+v", err, got)
	}
	if len(r.FindByCapability("review")) != 0 || len(r.FindByCapability("coding")) != 1 {
		t.Fatal("capability index should have been rolled back")
	}
}

// failingSaveStore wraps a Store and fails every SaveAgent call.
type failingSaveStore struct{ Store }

func (failingSaveStore) SaveAgent(context.Context, *types.Agent) error {
	return errors.New("store unavailable")
}

func TestSelectForTaskCapabilityMatch(t *testing.T) {
	r, ctx := newTestRegistry(t)
	r.Create(ctx, types.AgentDefinition{Name: "specialist", Capabilities: []string{"go", "testing"}})
	r.Create(ctx, types.AgentDefinition{Name: "generalist", Capabilities: []string{"go"}})

	candidates, err := r.SelectForTask(ctx, []string{"go", "testing"}, "", types.DelegateCapabilityMatch, nil)
	if err != nil {
		t.Fatalf("SelectForTask: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("want 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Agent.Name != "specialist" {
		t.Fatalf("specialist should rank first, got %s", candidates[0].Agent.Name)
	}
}

func TestSelectForTaskErrorPenalty(t *testing.T) {
	r, ctx := newTestRegistry(t)
	a, _ := r.Create(ctx, types.AgentDefinition{Name: "flaky", Capabilities: []string{"go"}})
	r.SetStatus(ctx, a.ID, types.AgentError)
	r.Create(ctx, types.AgentDefinition{Name: "healthy", Capabilities: []string{"go"}})

	candidates, err := r.SelectForTask(ctx, []string{"go"}, "", types.DelegateCapabilityMatch, nil)
	if err != nil {
		t.Fatalf("SelectForTask: %v", err)
	}
	if candidates[0].Agent.Name != "healthy" {
		t.Fatalf("healthy agent should outrank errored agent, got order: %+v", candidates)
	}
}
