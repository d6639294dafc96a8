package registry

import (
	"testing"

	"github.com/conclave-run/conclave/internal/types"
)

func TestRestartClearsErrorStatus(t *testing.T) {
	r, ctx := newTestRegistry(t)
	a, _ := r.Create(ctx, types.AgentDefinition{Name: "flaky"})
	r.SetStatus(ctx, a.ID, types.AgentError)

	if err := r.Restart(ctx, a.ID); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	got, _ := r.Get(a.ID)
	if got.Status != types.AgentIdle {
		t.Fatalf("want idle after restart, got %s", got.Status)
	}
}

func TestRestartNoopWhenNotErrored(t *testing.T) {
	r, ctx := newTestRegistry(t)
	a, _ := r.Create(ctx, types.AgentDefinition{Name: "healthy"})

	if err := r.Restart(ctx, a.ID); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	got, _ := r.Get(a.ID)
	if got.Status != types.AgentInitializing {
		t.Fatalf("status should be unchanged, got %s", got.Status)
	}
}

func TestRestartCrashLoopExceeded(t *testing.T) {
	r, ctx := newTestRegistry(t)
	a, _ := r.Create(ctx, types.AgentDefinition{Name: "looping"})

	for i := 0; i < maxRespawns; i++ {
		r.SetStatus(ctx, a.ID, types.AgentError)
		if err := r.Restart(ctx, a.ID); err != nil {
			t.Fatalf("Restart attempt %d: %v", i, err)
		}
	}

	r.SetStatus(ctx, a.ID, types.AgentError)
	if err := r.Restart(ctx, a.ID); err != ErrCrashLoopExceeded {
		t.Fatalf("want ErrCrashLoopExceeded, got %v", err)
	}

	got, _ := r.Get(a.ID)
	if got.Status != types.AgentError {
		t.Fatalf("agent should remain in error after budget exceeded, got %s", got.Status)
	}
}

func TestRestartUnknownAgent(t *testing.T) {
	r, ctx := newTestRegistry(t)
	if err := r.Restart(ctx, "nonexistent"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
