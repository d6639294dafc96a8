package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-run/conclave/internal/orchestrator"
	"github.com/conclave-run/conclave/internal/queue"
	"github.com/conclave-run/conclave/internal/registry"
	"github.com/conclave-run/conclave/internal/types"
)

// ErrBackpressure is returned by SubmitTask when the bounded
// submission queue is full.
var ErrBackpressure = fmt.Errorf("core: submission queue full")

// SubmitRequest is the input to SubmitTask, matching the HTTP surface's
// POST /tasks body.
type SubmitRequest struct {
	Description           string
	Parameters            map[string]interface{}
	Priority              int
	DecompositionStrategy types.DecompositionStrategy
	DelegationStrategy    types.DelegationStrategy
	DistributionMode      types.DistributionMode
}

// SubmitTask persists a new task record and enqueues it for the
// processor loop. It returns ErrBackpressure rather than blocking when
// the submission queue is full.
func (rt *Runtime) SubmitTask(ctx context.Context, req SubmitRequest) (*types.Task, error) {
	if req.DecompositionStrategy == "" {
		req.DecompositionStrategy = types.StrategyHierarchical
	}
	if req.DelegationStrategy == "" {
		req.DelegationStrategy = types.DelegateCapabilityMatch
	}
	if req.DistributionMode == "" {
		req.DistributionMode = types.ModeLocal
	}
	if req.Priority == 0 {
		req.Priority = 3
	}

	t := &types.Task{
		ID:                    uuid.NewString(),
		Description:           req.Description,
		Parameters:            req.Parameters,
		SubmittedAt:           nowUTC(),
		Priority:              req.Priority,
		DecompositionStrategy: req.DecompositionStrategy,
		DelegationStrategy:    req.DelegationStrategy,
		DistributionMode:      req.DistributionMode,
		Status:                types.TaskSubmitted,
	}

	if err := rt.Store.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("core: persist task: %w", err)
	}

	select {
	case rt.submissions <- t.ID:
	default:
		return nil, ErrBackpressure
	}
	return t, nil
}

// CancelTask requests cancellation of a running task. It is a no-op
// (returns false) if the task has already finished or was never
// picked up by this process.
func (rt *Runtime) CancelTask(taskID string) bool {
	rt.mu.Lock()
	cancel, ok := rt.cancel[taskID]
	rt.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// GetTask loads a task's current status plus its subtask table.
func (rt *Runtime) GetTask(ctx context.Context, taskID string) (*types.Task, []*types.Subtask, error) {
	t, err := rt.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	subtasks, err := rt.Store.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	return t, subtasks, nil
}

// runTask drives one task through decomposition, delegation, and
// execution. It is the Orchestrator's task processor: one goroutine
// per dequeued task, run serially through this function but executing
// the task's subtasks concurrently inside ExecuteDAG.
func (rt *Runtime) runTask(parent context.Context, taskID string) {
	ctx, cancel := context.WithCancel(parent)
	rt.mu.Lock()
	rt.cancel[taskID] = cancel
	rt.mu.Unlock()
	defer func() {
		cancel()
		rt.mu.Lock()
		delete(rt.cancel, taskID)
		rt.mu.Unlock()
	}()

	t, err := rt.Store.GetTask(ctx, taskID)
	if err != nil {
		log.Printf("[core] task %s: load: %v", taskID, err)
		return
	}

	t.Status = types.TaskDecomposing
	t.StartedAt = timePtr(nowUTC())
	rt.saveTask(ctx, t)

	decompCtx, decompCancel := context.WithTimeout(ctx, 30*time.Second)
	decomposition := orchestrator.Decompose(decompCtx, rt.Provider, taskID, t.Description, t.DecompositionStrategy)
	decompCancel()

	if len(decomposition.Subtasks) == 0 {
		rt.failTask(ctx, t, "validation_error: decomposition produced zero subtasks")
		return
	}
	if err := rt.Store.SaveDecomposition(ctx, decomposition, nowUTC()); err != nil {
		log.Printf("[core] task %s: persist decomposition: %v", taskID, err)
	}

	t.Status = types.TaskDecomposed
	rt.saveTask(ctx, t)

	domain, _ := t.Parameters["domain"].(string)
	plan, err := orchestrator.BuildDelegationPlan(ctx, rt.Registry, decomposition, t.DelegationStrategy, domain)
	if err != nil {
		rt.handlePlanningError(ctx, t, err)
		return
	}

	t.Status = types.TaskProcessing
	rt.saveTask(ctx, t)

	exec := &localExecutor{rt: rt, mode: t.DistributionMode, taskID: taskID}
	result, err := orchestrator.ExecuteDAG(ctx, decomposition, plan, exec, rt.Config.Queue.MaxParallelism)

	for _, st := range decomposition.Subtasks {
		rt.Store.SaveSubtask(ctx, taskID, st)
	}

	if err == orchestrator.ErrDeadlock {
		rt.failTask(ctx, t, "dependency_deadlock")
		rt.raiseManualTask(ctx, "dependency_deadlock", t.ID, "subtask dependency graph has a cycle or unsatisfiable edge; requires resubmission with a corrected decomposition")
		return
	}

	t.CompletedAt = timePtr(nowUTC())
	t.Result = map[string]interface{}{
		"subtasks_total":      result.SubtasksTotal,
		"subtasks_successful": result.SubtasksSuccessful,
		"subtasks_failed":     result.SubtasksFailed,
		"success_rate":        result.SuccessRate,
		"combined_results":    result.CombinedResults,
	}
	if err != nil || result.SubtasksFailed == result.SubtasksTotal {
		t.Status = types.TaskFailed
		if err != nil {
			t.Error = err.Error()
		} else {
			t.Error = "all subtasks failed"
		}
	} else {
		t.Status = types.TaskCompleted
	}
	rt.saveTask(ctx, t)
}

func (rt *Runtime) handlePlanningError(ctx context.Context, t *types.Task, err error) {
	log.Printf("[core] task %s: delegation planning: %v", t.ID, err)
	t.Status = types.TaskFailed
	t.Error = "no_agent_available: " + err.Error()
	t.CompletedAt = timePtr(nowUTC())
	rt.saveTask(ctx, t)
}

func (rt *Runtime) failTask(ctx context.Context, t *types.Task, reason string) {
	t.Status = types.TaskFailed
	t.Error = reason
	t.CompletedAt = timePtr(nowUTC())
	rt.saveTask(ctx, t)
}

// saveTask persists t and, if a WebSocket hub is attached, notifies it
// of the new status.
func (rt *Runtime) saveTask(ctx context.Context, t *types.Task) {
	if err := rt.Store.SaveTask(ctx, t); err != nil {
		log.Printf("[core] task %s: save: %v", t.ID, err)
		rt.Store.RecordError(ctx, "persistence", err.Error(), "task="+t.ID)
	}
	if rt.OnTaskUpdate != nil {
		cp := *t
		rt.OnTaskUpdate(&cp)
	}
}

// raiseManualTask persists a human-actionable record for a failure
// mode the processor cannot resolve on its own. Idempotent on
// (source_system, source_id): resubmitting the same taskID's deadlock
// does not create a duplicate row.
func (rt *Runtime) raiseManualTask(ctx context.Context, category, taskID, message string) {
	m := &types.ManualTask{
		ID:           uuid.NewString(),
		Category:     category,
		Priority:     2,
		SourceSystem: "orchestrator",
		SourceID:     taskID,
		Message:      message,
		CreatedAt:    nowUTC(),
	}
	if err := rt.Store.SaveManualTask(ctx, m); err != nil {
		log.Printf("[core] task %s: save manual task: %v", taskID, err)
	}
}

// localExecutor implements orchestrator.Executor. It always runs the
// subtask in-process against the injected LLM primitive so a task
// reaches a terminal state even with no distributed workers attached;
// DISTRIBUTED mode additionally mirrors the subtask onto the broker for
// any out-of-process worker that wants to pick it up. HYBRID mode never
// publishes here, since this executor always reports local capacity.
type localExecutor struct {
	rt     *Runtime
	mode   types.DistributionMode
	taskID string
}

func (e *localExecutor) Execute(ctx context.Context, agentID string, st *types.Subtask) (map[string]interface{}, error) {
	if e.rt.streams != nil {
		localCapacity := true // single-process core always has local capacity
		if _, err := queue.Dispatch(e.rt.streams, e.mode, localCapacity, e.taskID, st); err != nil {
			log.Printf("[core] dispatch mirror for subtask %s: %v", st.ID, err)
			e.rt.Store.RecordError(ctx, "broker", err.Error(), "subtask="+st.ID)
		}
	}

	start := nowUTC()
	prompt := fmt.Sprintf("Execute the following subtask and report the outcome.\n\n%s", st.Description)
	resp, err := e.rt.Provider.Chat(ctx, prompt)
	latency := time.Since(start)

	success := err == nil
	e.rt.Monitor.RecordAgentExecution(ctx, agentID, latency, success, resp.Cost)
	if err != nil {
		return nil, fmt.Errorf("subtask %s: %w", st.ID, err)
	}

	return map[string]interface{}{
		"content":    resp.Content,
		"model":      resp.Model,
		"latency_ms": latency.Milliseconds(),
	}, nil
}

func timePtr(t time.Time) *time.Time { return &t }

// compile-time interface checks
var _ orchestrator.Executor = (*localExecutor)(nil)
var _ orchestrator.Selector = (*registry.Registry)(nil)
