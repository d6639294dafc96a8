package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/conclave-run/conclave/internal/config"
	"github.com/conclave-run/conclave/internal/llm"
	"github.com/conclave-run/conclave/internal/perfmon"
	"github.com/conclave-run/conclave/internal/persistence"
	"github.com/conclave-run/conclave/internal/queue"
	"github.com/conclave-run/conclave/internal/registry"
	"github.com/conclave-run/conclave/internal/types"
)

type fakeProvider struct {
	err error
}

func (f fakeProvider) Chat(ctx context.Context, prompt string) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: "ok"}, nil
}

func newTestRuntime(t *testing.T, provider llm.Provider) *Runtime {
	t.Helper()
	store, err := persistence.Open(":memory:")
	if err != nil {
		t.Fatalf("persistence.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	reg, err := registry.New(ctx, store)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	return &Runtime{
		Config:      config.Config{Queue: config.QueueConfig{MaxParallelism: 2}},
		Store:       store,
		Registry:    reg,
		Monitor:     perfmon.New(store),
		Queue:       queue.New(store, "test-node"),
		Provider:    provider,
		submissions: make(chan string, 8),
		cancel:      make(map[string]context.CancelFunc),
	}
}

func TestSubmitAndRunTaskHappyPath(t *testing.T) {
	rt := newTestRuntime(t, fakeProvider{})
	ctx := context.Background()

	if _, err := rt.Registry.Create(ctx, types.AgentDefinition{Name: "generalist", Capabilities: []string{"general"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	task, err := rt.SubmitTask(ctx, SubmitRequest{Description: "summarize then email"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	rt.runTask(ctx, task.ID)

	got, subtasks, err := rt.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != types.TaskCompleted {
		t.Fatalf("want completed, got %s (error=%s)", got.Status, got.Error)
	}
	if len(subtasks) != 2 {
		t.Fatalf("want 2 subtasks (linear fallback), got %d", len(subtasks))
	}
}

func TestSubmitTaskBackpressure(t *testing.T) {
	rt := newTestRuntime(t, fakeProvider{})
	rt.submissions = make(chan string) // unbuffered, immediately full

	ctx := context.Background()
	if _, err := rt.SubmitTask(ctx, SubmitRequest{Description: "x"}); err != ErrBackpressure {
		t.Fatalf("want ErrBackpressure, got %v", err)
	}
}

func TestRunTaskNoAgentAvailable(t *testing.T) {
	rt := newTestRuntime(t, fakeProvider{err: fmt.Errorf("no llm in test")})
	ctx := context.Background()
	// No agents registered at all: the linear fallback's "general"
	// capability has no candidate.

	task, err := rt.SubmitTask(ctx, SubmitRequest{Description: "orphan task"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	rt.runTask(ctx, task.ID)

	got, _, err := rt.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != types.TaskFailed {
		t.Fatalf("want failed, got %s", got.Status)
	}
}
