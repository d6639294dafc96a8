package orchestrator

import (
	"fmt"
	"log"

	"github.com/conclave-run/conclave/internal/types"
)

// kahn runs Kahn's algorithm over subtasks, seeding the initial queue
// from subtasks' own slice order (not map iteration) so the resulting
// order is deterministic run-to-run. Dangling dependency references
// are ignored rather than treated as edges; callers that need to
// reject those do so before reaching here (see llm.ParseDecomposition).
func kahn(subtasks []*types.Subtask) (order []string, byID map[string]*types.Subtask, children map[string][]string) {
	byID = make(map[string]*types.Subtask, len(subtasks))
	indegree := make(map[string]int, len(subtasks))
	children = make(map[string][]string, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
		if _, ok := indegree[st.ID]; !ok {
			indegree[st.ID] = 0
		}
	}
	for _, st := range subtasks {
		for _, dep := range st.Dependencies {
			if _, ok := byID[dep]; !ok {
				continue // dangling dependency reference, ignored rather than crashing
			}
			indegree[st.ID]++
			children[dep] = append(children[dep], st.ID)
		}
	}

	var queue []string
	for _, st := range subtasks {
		if indegree[st.ID] == 0 {
			queue = append(queue, st.ID)
		}
	}

	order = make([]string, 0, len(subtasks))
	remaining := make(map[string]int, len(indegree))
	for k, v := range indegree {
		remaining[k] = v
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, child := range children[id] {
			remaining[child]--
			if remaining[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	return order, byID, children
}

// TopologicalOrder returns subtasks sorted so every dependency
// precedes its dependents, using subtasks' original slice order to
// break ties between independent nodes. Returns an error if the
// dependency graph has a cycle.
func TopologicalOrder(subtasks []*types.Subtask) ([]*types.Subtask, error) {
	if len(subtasks) == 0 {
		return nil, nil
	}
	order, byID, _ := kahn(subtasks)
	if len(order) != len(subtasks) {
		return nil, fmt.Errorf("orchestrator: dependency cycle among %d subtasks", len(subtasks)-len(order))
	}
	sorted := make([]*types.Subtask, len(order))
	for i, id := range order {
		sorted[i] = byID[id]
	}
	return sorted, nil
}

// rootCount returns the number of subtasks with no dependencies,
// minimum 1.
func rootCount(subtasks []*types.Subtask) int {
	n := 0
	for _, st := range subtasks {
		if len(st.Dependencies) == 0 {
			n++
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// CriticalPath computes the longest dependency chain through subtasks
// by complexity-weighted duration, plus the maximum parallelism: the
// count of subtasks with no dependencies, minimum 1. A cycle makes
// critical-path computation meaningless rather than unsafe, so it
// returns an empty path and logs a warning instead of failing the
// decomposition outright.
func CriticalPath(subtasks []*types.Subtask) (path []string, maxParallelism int) {
	if len(subtasks) == 0 {
		return nil, 0
	}

	order, byID, _ := kahn(subtasks)
	if len(order) != len(subtasks) {
		log.Printf("[orchestrator] dependency cycle detected among %d subtasks, critical path unavailable", len(subtasks)-len(order))
		return nil, 0
	}

	durationTo := make(map[string]int, len(subtasks))
	bestParent := make(map[string]string, len(subtasks))
	var endpoint string
	var best int

	for _, id := range order {
		st := byID[id]
		self := types.ComplexityDurationMS[st.EstimatedComplexity]
		longest := 0
		var parent string
		for _, dep := range st.Dependencies {
			if d, ok := durationTo[dep]; ok && d > longest {
				longest = d
				parent = dep
			}
		}
		total := longest + self
		durationTo[id] = total
		if parent != "" {
			bestParent[id] = parent
		}
		if total >= best {
			best = total
			endpoint = id
		}
	}

	var reversed []string
	for id := endpoint; id != ""; id = bestParent[id] {
		reversed = append(reversed, id)
	}
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	return reversed, rootCount(subtasks)
}
