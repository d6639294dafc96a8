package queue

import (
	"context"
	"fmt"

	"github.com/conclave-run/conclave/internal/types"
)

// Publisher is the broker surface Dispatch needs. Implemented by
// internal/broker.StreamManager.
type Publisher interface {
	PublishTask(queue, subject string, v interface{}) error
}

// SubtaskEnvelope is the wire payload handed to a distributed worker.
type SubtaskEnvelope struct {
	TaskID   string         `json:"task_id"`
	Subtask  *types.Subtask `json:"subtask"`
	AgentID  string         `json:"agent_id"`
}

// Dispatch routes a subtask assignment according to the task's
// distribution mode. LOCAL never touches the broker: the orchestrator
// executes it in-process. DISTRIBUTED always publishes to
// agent_tasks. HYBRID publishes only when no local capacity remains,
// decided by the caller via localCapacityAvailable.
func Dispatch(pub Publisher, mode types.DistributionMode, localCapacityAvailable bool, taskID string, st *types.Subtask) (remote bool, err error) {
	switch mode {
	case types.ModeLocal:
		return false, nil
	case types.ModeDistributed:
		return true, publish(pub, taskID, st)
	case types.ModeHybrid:
		if localCapacityAvailable {
			return false, nil
		}
		return true, publish(pub, taskID, st)
	default:
		return false, fmt.Errorf("queue: unknown distribution mode %q", mode)
	}
}

func publish(pub Publisher, taskID string, st *types.Subtask) error {
	env := SubtaskEnvelope{TaskID: taskID, Subtask: st, AgentID: st.AssignedAgentID}
	subject := fmt.Sprintf("%s.%s", taskID, st.ID)
	return pub.PublishTask("agent_tasks", subject, env)
}
