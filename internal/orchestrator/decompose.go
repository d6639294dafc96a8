// Package orchestrator implements task decomposition into a subtask
// DAG, delegation planning, bounded-parallel DAG execution, and
// result aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/conclave-run/conclave/internal/llm"
	"github.com/conclave-run/conclave/internal/types"
)

const decomposePromptTemplate = `Decompose the following task into an ordered set of subtasks.
Respond with JSON only, matching this shape:
{"subtasks":[{"id":"s1","description":"...","required_capabilities":["..."],"estimated_complexity":"low|medium|high","dependencies":[]}]}

Strategy: %s
Task: %s`

// Decompose asks provider to break description into a subtask DAG. If
// the provider errors or returns a malformed response, it falls back
// to a deterministic two-node linear decomposition (a single
// "execute" subtask depending on a single "plan" subtask) so a task
// is never stuck unable to start.
func Decompose(ctx context.Context, provider llm.Provider, taskID, description string, strategy types.DecompositionStrategy) *types.TaskDecomposition {
	prompt := fmt.Sprintf(decomposePromptTemplate, strategy, description)

	resp, err := provider.Chat(ctx, prompt)
	if err != nil {
		log.Printf("[orchestrator] decomposition provider error for task %s, using linear fallback: %v", taskID, err)
		return linearFallback(taskID, description, strategy)
	}

	parsed, err := llm.ParseDecomposition(resp.Content)
	if err != nil {
		log.Printf("[orchestrator] decomposition parse error for task %s, using linear fallback: %v", taskID, err)
		return linearFallback(taskID, description, strategy)
	}

	subtasks := make([]*types.Subtask, 0, len(parsed))
	total := 0
	for _, st := range parsed {
		complexity := types.ComplexityLevel(st.EstimatedComplexity)
		if _, ok := types.ComplexityScore[complexity]; !ok {
			complexity = types.ComplexityMedium
		}
		subtasks = append(subtasks, &types.Subtask{
			ID:                   st.ID,
			Description:          st.Description,
			RequiredCapabilities: st.RequiredCapabilities,
			EstimatedComplexity:  complexity,
			Dependencies:         st.Dependencies,
			Status:               types.SubtaskPending,
		})
		total += types.ComplexityScore[complexity]
	}

	if _, err := TopologicalOrder(subtasks); err != nil {
		log.Printf("[orchestrator] decomposition for task %s is cyclic, using linear fallback: %v", taskID, err)
		return linearFallback(taskID, description, strategy)
	}

	d := &types.TaskDecomposition{
		TaskID:              taskID,
		OriginalDescription: description,
		Strategy:            strategy,
		Subtasks:            subtasks,
		TotalComplexity:     total,
	}
	d.CriticalPath, d.MaxParallelism = CriticalPath(d.Subtasks)
	return d
}

func linearFallback(taskID, description string, strategy types.DecompositionStrategy) *types.TaskDecomposition {
	planID := "s-" + uuid.NewString()[:8]
	execID := "s-" + uuid.NewString()[:8]

	subtasks := []*types.Subtask{
		{ID: planID, Description: "plan: " + description, EstimatedComplexity: types.ComplexityLow, Status: types.SubtaskPending},
		{ID: execID, Description: "execute: " + description, EstimatedComplexity: types.ComplexityMedium, Dependencies: []string{planID}, Status: types.SubtaskPending},
	}
	d := &types.TaskDecomposition{
		TaskID:              taskID,
		OriginalDescription: description,
		Strategy:            strategy,
		Subtasks:            subtasks,
		TotalComplexity:     types.ComplexityScore[types.ComplexityLow] + types.ComplexityScore[types.ComplexityMedium],
	}
	d.CriticalPath, d.MaxParallelism = CriticalPath(d.Subtasks)
	return d
}
