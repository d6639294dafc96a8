package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/conclave-run/conclave/internal/llm"
	"github.com/conclave-run/conclave/internal/types"
)

type fakeProvider struct {
	content string
	err     error
}

func (f fakeProvider) Chat(ctx context.Context, prompt string) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content}, nil
}

func TestDecomposeValidResponse(t *testing.T) {
	provider := fakeProvider{content: `{"subtasks":[
		{"id":"s1","description":"gather requirements","estimated_complexity":"low","dependencies":[]},
		{"id":"s2","description":"implement","estimated_complexity":"high","dependencies":["s1"]}
	]}`}

	d := Decompose(context.Background(), provider, "t1", "build a feature", types.StrategyHierarchical)
	if len(d.Subtasks) != 2 {
		t.Fatalf("want 2 subtasks, got %d", len(d.Subtasks))
	}
	if d.TotalComplexity != types.ComplexityScore[types.ComplexityLow]+types.ComplexityScore[types.ComplexityHigh] {
		t.Fatalf("unexpected total complexity: %d", d.TotalComplexity)
	}
}

func TestDecomposeFallsBackOnProviderError(t *testing.T) {
	provider := fakeProvider{err: fmt.Errorf("network error")}
	d := Decompose(context.Background(), provider, "t1", "build a feature", types.StrategySequential)
	if len(d.Subtasks) != 2 {
		t.Fatalf("fallback should produce 2 subtasks, got %d", len(d.Subtasks))
	}
	if d.Subtasks[1].Dependencies[0] != d.Subtasks[0].ID {
		t.Fatalf("fallback execute subtask should depend on plan subtask")
	}
}

func TestDecomposeFallsBackOnMalformedJSON(t *testing.T) {
	provider := fakeProvider{content: "not json"}
	d := Decompose(context.Background(), provider, "t1", "build a feature", types.StrategySequential)
	if len(d.Subtasks) != 2 {
		t.Fatalf("fallback should produce 2 subtasks, got %d", len(d.Subtasks))
	}
}

func TestDecomposeFallsBackOnDuplicateIDs(t *testing.T) {
	provider := fakeProvider{content: `{"subtasks":[
		{"id":"s1","description":"a","estimated_complexity":"low","dependencies":[]},
		{"id":"s1","description":"b","estimated_complexity":"low","dependencies":[]}
	]}`}
	d := Decompose(context.Background(), provider, "t1", "build a feature", types.StrategySequential)
	if len(d.Subtasks) != 2 || d.Subtasks[1].Dependencies[0] != d.Subtasks[0].ID {
		t.Fatalf("duplicate ids should trigger linear fallback, got %+v", d.Subtasks)
	}
}

func TestDecomposeFallsBackOnDanglingDependency(t *testing.T) {
	provider := fakeProvider{content: `{"subtasks":[
		{"id":"s1","description":"a","estimated_complexity":"low","dependencies":["ghost"]}
	]}`}
	d := Decompose(context.Background(), provider, "t1", "build a feature", types.StrategySequential)
	if len(d.Subtasks) != 2 || d.Subtasks[1].Dependencies[0] != d.Subtasks[0].ID {
		t.Fatalf("dangling dependency should trigger linear fallback, got %+v", d.Subtasks)
	}
}

func TestDecomposeFallsBackOnCycle(t *testing.T) {
	provider := fakeProvider{content: `{"subtasks":[
		{"id":"s1","description":"a","estimated_complexity":"low","dependencies":["s2"]},
		{"id":"s2","description":"b","estimated_complexity":"low","dependencies":["s1"]}
	]}`}
	d := Decompose(context.Background(), provider, "t1", "build a feature", types.StrategySequential)
	if len(d.Subtasks) != 2 || d.Subtasks[1].Dependencies[0] != d.Subtasks[0].ID {
		t.Fatalf("cyclic decomposition should trigger linear fallback, got %+v", d.Subtasks)
	}
}
