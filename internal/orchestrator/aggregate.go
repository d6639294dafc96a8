package orchestrator

import "github.com/conclave-run/conclave/internal/types"

// buildAggregate compiles a decomposition's outcomes into the final
// result. combined_results is ordered topologically (TopologicalOrder's
// Kahn's-algorithm pass, ties broken by decomposition order) rather
// than by completion time, so the same decomposition always aggregates
// to the same combined_results ordering regardless of scheduling
// nondeterminism.
func buildAggregate(d *types.TaskDecomposition, results map[string]map[string]interface{}, failed []string) *types.AggregatedResult {
	agg := &types.AggregatedResult{
		SubtasksTotal:    len(d.Subtasks),
		FailedSubtasks:   failed,
		ResultsBySubtask: results,
	}
	agg.SubtasksFailed = len(failed)
	agg.SubtasksSuccessful = len(results)
	if agg.SubtasksTotal > 0 {
		agg.SuccessRate = float64(agg.SubtasksSuccessful) / float64(agg.SubtasksTotal)
	}

	ordered, err := TopologicalOrder(d.Subtasks)
	if err != nil {
		ordered = d.Subtasks // cyclic graph: fall back to decomposition order
	}
	for _, st := range ordered {
		if r, ok := results[st.ID]; ok {
			agg.CombinedResults = append(agg.CombinedResults, r)
		}
	}

	return agg
}
