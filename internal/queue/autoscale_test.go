package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

func TestProposeScalingUp(t *testing.T) {
	stats := types.QueueStats{QueueName: "agent_tasks", WorkerCount: 3, Queued: 20, Active: 24, Utilization: 0.9, SampledAt: time.Now()}
	d := proposeScaling(stats)
	if d == nil {
		t.Fatal("expected a scale-up decision")
	}
	if d.Kind != types.ScaleUp || d.TargetWorkers != 4 {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestProposeScalingUpScenarioE(t *testing.T) {
	stats := types.QueueStats{QueueName: "default", WorkerCount: 10, Queued: 60, Active: 9, Utilization: 0.9, SampledAt: time.Now()}
	d := proposeScaling(stats)
	if d == nil {
		t.Fatal("expected a scale-up decision")
	}
	if d.Kind != types.ScaleUp || d.TargetWorkers != 11 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if !strings.Contains(d.Reason, "High queue depth") {
		t.Fatalf("reason should mention high queue depth, got %q", d.Reason)
	}
}

func TestProposeScalingDown(t *testing.T) {
	stats := types.QueueStats{QueueName: "agent_tasks", WorkerCount: 3, Queued: 1, Active: 1, Utilization: 0.1, SampledAt: time.Now()}
	d := proposeScaling(stats)
	if d == nil || d.Kind != types.ScaleDown || d.TargetWorkers != 2 {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestProposeScalingNoopAtFloor(t *testing.T) {
	stats := types.QueueStats{QueueName: "agent_tasks", WorkerCount: 1, Queued: 0, Active: 0, Utilization: 0, SampledAt: time.Now()}
	if d := proposeScaling(stats); d != nil {
		t.Fatalf("expected no decision at the worker floor, got %+v", d)
	}
}

func TestProposeScalingNoneWhenDepthShallow(t *testing.T) {
	stats := types.QueueStats{QueueName: "agent_tasks", WorkerCount: 3, Queued: 2, Active: 24, Utilization: 0.9, SampledAt: time.Now()}
	if d := proposeScaling(stats); d != nil {
		t.Fatalf("expected no decision when depth hasn't outgrown worker count, got %+v", d)
	}
}

func TestGroupByQueueExcludesOfflineWorkers(t *testing.T) {
	workers := []*types.Worker{
		{ID: "w1", Status: types.WorkerOnline, Queues: []string{"agent_tasks"}, MaxTasks: 4, ActiveTasks: 2, LastHeartbeat: time.Now().UTC()},
		{ID: "w2", Status: types.WorkerStale, Queues: []string{"agent_tasks"}, MaxTasks: 4, ActiveTasks: 0},
	}
	grouped := groupByQueue(workers)
	if len(grouped["agent_tasks"]) != 1 {
		t.Fatalf("want 1 live worker, got %d", len(grouped["agent_tasks"]))
	}
}

type fakePublisher struct{ published int }

func (f *fakePublisher) PublishTask(queue, subject string, v interface{}) error {
	f.published++
	return nil
}

func TestDispatchModes(t *testing.T) {
	pub := &fakePublisher{}
	st := &types.Subtask{ID: "s1", AssignedAgentID: "a1"}

	remote, err := Dispatch(pub, types.ModeLocal, true, "t1", st)
	if err != nil || remote {
		t.Fatalf("local mode should never go remote: remote=%v err=%v", remote, err)
	}

	remote, err = Dispatch(pub, types.ModeDistributed, true, "t1", st)
	if err != nil || !remote || pub.published != 1 {
		t.Fatalf("distributed mode should always publish: remote=%v err=%v published=%d", remote, err, pub.published)
	}

	remote, err = Dispatch(pub, types.ModeHybrid, true, "t1", st)
	if err != nil || remote {
		t.Fatalf("hybrid with local capacity should stay local: remote=%v err=%v", remote, err)
	}

	remote, err = Dispatch(pub, types.ModeHybrid, false, "t1", st)
	if err != nil || !remote || pub.published != 2 {
		t.Fatalf("hybrid without local capacity should publish: remote=%v err=%v published=%d", remote, err, pub.published)
	}
}
