package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

// cancelGrace is how long an in-flight subtask is given to finish
// after the execution context is cancelled before its result is
// recorded as a failure anyway.
const cancelGrace = 30 * time.Second

// Executor runs one subtask on the agent it was assigned to.
// Implementations range from an in-process call into an agent's
// configured tool chain to a round trip through the distributed
// queue; ExecuteDAG doesn't care which.
type Executor interface {
	Execute(ctx context.Context, agentID string, st *types.Subtask) (map[string]interface{}, error)
}

// ErrDeadlock is returned when no subtask is ready and none is
// in-flight, but some remain pending — only possible if the DAG
// itself is malformed (a dependency cycle CriticalPath didn't catch,
// or a dependency on a subtask ID absent from the decomposition).
var ErrDeadlock = fmt.Errorf("orchestrator: execution deadlocked, no ready or in-flight subtasks remain")

// ExecuteDAG runs a decomposition's subtasks respecting their
// dependency edges, dispatching ready subtasks up to maxParallel at a
// time using a work-stealing frontier: as soon as a subtask
// completes, any subtask whose dependencies are now all satisfied
// becomes ready, regardless of what else is still in flight.
func ExecuteDAG(ctx context.Context, d *types.TaskDecomposition, plan *types.DelegationPlan, exec Executor, maxParallel int) (*types.AggregatedResult, error) {
	if maxParallel < 1 {
		maxParallel = 1
	}

	byID := make(map[string]*types.Subtask, len(d.Subtasks))
	for _, st := range d.Subtasks {
		byID[st.ID] = st
	}

	pending := make(map[string]struct{}, len(d.Subtasks))
	for _, st := range d.Subtasks {
		pending[st.ID] = struct{}{}
	}
	inProgress := make(map[string]struct{})
	completedOK := make(map[string]struct{})
	failedSet := make(map[string]struct{})

	outcomes := make(chan types.SubtaskOutcome, len(d.Subtasks))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)

	results := make(map[string]map[string]interface{}, len(d.Subtasks))
	var failed []string
	remaining := len(d.Subtasks)

	failSubtask := func(id, reason string) {
		delete(pending, id)
		failedSet[id] = struct{}{}
		failed = append(failed, id)
		byID[id].Status = types.SubtaskFailed
		byID[id].Error = reason
		remaining--
	}

	// propagateFailures walks pending subtasks to a fixed point,
	// auto-failing any whose dependency failed, without executing
	// them — a subtask never runs on top of a failed prerequisite.
	propagateFailures := func() {
		for {
			progressed := false
			for id := range pending {
				st := byID[id]
				for _, dep := range st.Dependencies {
					if _, bad := failedSet[dep]; bad {
						failSubtask(id, fmt.Sprintf("upstream dependency %s failed", dep))
						progressed = true
						break
					}
				}
			}
			if !progressed {
				return
			}
		}
	}

	ready := func() []string {
		var out []string
		for id := range pending {
			if _, running := inProgress[id]; running {
				continue
			}
			st := byID[id]
			satisfied := true
			for _, dep := range st.Dependencies {
				if _, ok := completedOK[dep]; !ok {
					satisfied = false
					break
				}
			}
			if satisfied {
				out = append(out, id)
			}
		}
		return out
	}

	dispatch := func(id string) {
		delete(pending, id)
		inProgress[id] = struct{}{}
		st := byID[id]
		agentID := plan.Assignments[id]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			st.Status = types.SubtaskInProgress
			result, err := exec.Execute(ctx, agentID, st)
			elapsed := time.Since(start).Milliseconds()

			outcome := types.SubtaskOutcome{SubtaskID: id, AgentID: agentID, Result: result, ExecutionTimeMS: elapsed}
			if err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
			} else {
				outcome.Success = true
			}
			outcomes <- outcome
		}()
	}

	for remaining > 0 {
		propagateFailures()
		if remaining == 0 {
			break
		}

		for _, id := range ready() {
			dispatch(id)
		}

		if len(inProgress) == 0 {
			return nil, ErrDeadlock
		}

		select {
		case <-ctx.Done():
			log.Printf("[orchestrator] task %s cancelled, waiting up to %s for %d in-flight subtasks", d.TaskID, cancelGrace, len(inProgress))
			graceTimer := time.NewTimer(cancelGrace)
			drained := make(chan struct{})
			go func() { wg.Wait(); close(drained) }()
			select {
			case <-drained:
			case <-graceTimer.C:
				log.Printf("[orchestrator] task %s grace period expired, abandoning %d subtasks", d.TaskID, len(inProgress))
			}
			graceTimer.Stop()

			for id := range inProgress {
				failedSet[id] = struct{}{}
				failed = append(failed, id)
				byID[id].Status = types.SubtaskFailed
				byID[id].Error = "cancelled"
			}
			return buildAggregate(d, results, failed), ctx.Err()

		case outcome := <-outcomes:
			delete(inProgress, outcome.SubtaskID)
			st := byID[outcome.SubtaskID]
			st.ExecutionTimeMS = outcome.ExecutionTimeMS
			if outcome.Success {
				st.Status = types.SubtaskCompleted
				st.Result = outcome.Result
				results[outcome.SubtaskID] = outcome.Result
				completedOK[outcome.SubtaskID] = struct{}{}
			} else {
				failedSet[outcome.SubtaskID] = struct{}{}
				st.Status = types.SubtaskFailed
				st.Error = outcome.Error
				failed = append(failed, outcome.SubtaskID)
			}
			remaining--
		}
	}

	return buildAggregate(d, results, failed), nil
}
