package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-run/conclave/internal/types"
)

// Autoscaling policy (spec.md §4.3): a queue is a scale-up candidate
// when its depth has outgrown its worker count and utilization is
// high; a scale-down candidate when depth is shallow, utilization is
// low, and more than one worker remains assigned.
const (
	scaleUpDepthMultiplier = 5
	scaleUpUtilization     = 0.8
	scaleDownDepthFloor    = 3
	scaleDownUtilization   = 0.3
	minWorkersPerQueue     = 1
	maxWorkersPerQueue     = 10
)

// sampleAndScale is run only by the elected coordinator: it samples
// current queue depth per worker group, records the snapshot, and
// proposes (but does not itself apply) a scaling decision when the
// policy's thresholds are crossed.
func (s *Service) sampleAndScale(ctx context.Context) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		log.Printf("[queue] autoscale: list workers: %v", err)
		return
	}

	byQueue := groupByQueue(workers)
	now := time.Now().UTC()

	for queueName, ws := range byQueue {
		stats := s.computeQueueStats(queueName, ws, now)
		if err := s.store.RecordQueueStats(ctx, stats); err != nil {
			log.Printf("[queue] record stats %s: %v", queueName, err)
			continue
		}

		decision := proposeScaling(stats)
		if decision == nil {
			continue
		}
		if s.locks != nil {
			key := fmt.Sprintf("scale:%s:%s", queueName, decision.Kind)
			acquired, err := s.locks.TryAcquire(key, s.nodeID)
			if err != nil {
				log.Printf("[queue] autoscale debounce lock %s: %v", key, err)
			} else if !acquired {
				continue // a decision for this queue+direction was made within the TTL window
			}
		}
		decision.ID = uuid.NewString()
		decision.CreatedAt = now
		if err := s.store.SaveScalingDecision(ctx, decision); err != nil {
			log.Printf("[queue] save scaling decision: %v", err)
			continue
		}
		log.Printf("[queue] proposed %s for %s: %d -> %d workers (%s)",
			decision.Kind, queueName, decision.CurrentWorkers, decision.TargetWorkers, decision.Reason)
	}
}

func groupByQueue(workers []*types.Worker) map[string][]*types.Worker {
	out := make(map[string][]*types.Worker)
	now := time.Now().UTC()
	for _, w := range workers {
		if w.Status == types.WorkerOffline || w.Status == types.WorkerStale || w.IsStale(now) {
			continue
		}
		for _, q := range w.Queues {
			out[q] = append(out[q], w)
		}
	}
	return out
}

// computeQueueStats samples a worker group's active-task count and
// live queue depth. utilization = active / max(worker_count, 1), per
// spec.md §4.3 — not active over total worker capacity.
func (s *Service) computeQueueStats(queueName string, ws []*types.Worker, now time.Time) types.QueueStats {
	active := 0
	for _, w := range ws {
		active += w.ActiveTasks
	}
	workerCount := len(ws)

	util := 0.0
	if workerCount > 0 {
		util = float64(active) / float64(workerCount)
	}

	queued := 0
	if s.depth != nil {
		d, err := s.depth.StreamDepth(queueName)
		if err != nil {
			log.Printf("[queue] stream depth %s: %v", queueName, err)
		} else {
			queued = d
		}
	}

	return types.QueueStats{
		QueueName:   queueName,
		WorkerCount: workerCount,
		Queued:      queued,
		Active:      active,
		Utilization: util,
		SampledAt:   now,
	}
}

// proposeScaling returns nil when neither the scale-up nor scale-down
// condition holds, or the worker count is already past its bound.
//
// The scale-up gate gives a queue at exactly maxWorkersPerQueue one
// final increment (worker_count=10 still proposes target_workers=11)
// and only then stops: a queue already past the cap never proposes
// further growth. This matches the worked example in the spec more
// closely than clamping the computed target at the cap outright would.
func proposeScaling(stats types.QueueStats) *types.ScalingDecision {
	switch {
	case stats.Queued > stats.WorkerCount*scaleUpDepthMultiplier && stats.Utilization > scaleUpUtilization && stats.WorkerCount <= maxWorkersPerQueue:
		target := stats.WorkerCount + 1
		return &types.ScalingDecision{
			Kind:           types.ScaleUp,
			QueueName:      stats.QueueName,
			CurrentWorkers: stats.WorkerCount,
			TargetWorkers:  target,
			Reason: fmt.Sprintf("High queue depth (%d > %d) at %.0f%% utilization",
				stats.Queued, stats.WorkerCount*scaleUpDepthMultiplier, stats.Utilization*100),
			MetricsSnapshot: stats,
		}
	case stats.Queued < scaleDownDepthFloor && stats.WorkerCount > minWorkersPerQueue && stats.Utilization < scaleDownUtilization:
		target := stats.WorkerCount - 1
		if target < minWorkersPerQueue {
			target = minWorkersPerQueue
		}
		return &types.ScalingDecision{
			Kind:           types.ScaleDown,
			QueueName:      stats.QueueName,
			CurrentWorkers: stats.WorkerCount,
			TargetWorkers:  target,
			Reason: fmt.Sprintf("Low queue depth (%d) at %.0f%% utilization",
				stats.Queued, stats.Utilization*100),
			MetricsSnapshot: stats,
		}
	default:
		return nil
	}
}
