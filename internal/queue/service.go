// Package queue implements the Distributed Task Service: worker
// registration and heartbeat, queue-depth sampling, autoscaling
// proposals, and leader election among cooperating nodes.
package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-run/conclave/internal/broker"
	"github.com/conclave-run/conclave/internal/types"
)

const (
	heartbeatStaleSweep = time.Minute
	statsSampleInterval = 60 * time.Second
	leaderCheckInterval = 10 * time.Second
	leaseDuration       = 30 * time.Second
)

// Store is the persistence surface the Distributed Task Service
// needs.
type Store interface {
	SaveWorker(ctx context.Context, w *types.Worker) error
	ListWorkers(ctx context.Context) ([]*types.Worker, error)
	MarkWorkerStatus(ctx context.Context, id string, status types.WorkerStatus) error
	RecordWorkerEvent(ctx context.Context, workerID, event, detail string) error
	RecordQueueStats(ctx context.Context, q types.QueueStats) error
	LatestQueueStats(ctx context.Context) ([]types.QueueStats, error)
	SaveScalingDecision(ctx context.Context, d *types.ScalingDecision) error
	AcquireLease(ctx context.Context, role, nodeID string, leaseDuration time.Duration) (*types.LeaderRecord, error)
	CurrentLeader(ctx context.Context, role string) (*types.LeaderRecord, error)
}

// DepthSource reports how many messages are pending in a named
// queue's durable stream, used to populate QueueStats.Queued.
type DepthSource interface {
	StreamDepth(queue string) (int, error)
}

// Service runs the worker registry, stats sampler, autoscaler, and
// leader-election loop for one node in the cluster.
type Service struct {
	store  Store
	nodeID string

	leaderRole string
	isLeader   bool

	heartbeats *heartbeatLimiters

	// locks debounces repeated scaling decisions for the same queue
	// across sample intervals. Optional: nil when no broker is
	// attached, in which case every threshold crossing proposes a
	// fresh decision.
	locks *broker.Locks

	// depth reports live queue depth from the broker. Optional: nil
	// when no broker is attached, in which case sampled depth is
	// always zero.
	depth DepthSource
}

// SetLocks attaches the broker-backed debounce lock. Call once, before Run.
func (s *Service) SetLocks(l *broker.Locks) {
	s.locks = l
}

// SetDepthSource attaches the broker-backed queue-depth reporter. Call
// once, before Run.
func (s *Service) SetDepthSource(d DepthSource) {
	s.depth = d
}

// New constructs a Service for this node. nodeID identifies this
// process in leader election and worker events.
func New(store Store, nodeID string) *Service {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &Service{
		store:      store,
		nodeID:     nodeID,
		leaderRole: "queue-coordinator",
		heartbeats: newHeartbeatLimiters(),
	}
}

// NodeID returns this service's election identity.
func (s *Service) NodeID() string {
	return s.nodeID
}

// IsLeader reports whether this node currently holds the coordinator
// lease. Only the leader runs the stats sampler and autoscaler.
func (s *Service) IsLeader() bool {
	return s.isLeader
}

// RegisterWorker upserts a worker's registration row and logs the
// event.
func (s *Service) RegisterWorker(ctx context.Context, w *types.Worker) error {
	w.Status = types.WorkerOnline
	w.LastHeartbeat = time.Now().UTC()
	if err := s.store.SaveWorker(ctx, w); err != nil {
		return fmt.Errorf("queue: register worker: %w", err)
	}
	s.store.RecordWorkerEvent(ctx, w.ID, "registered", fmt.Sprintf("queues=%v", w.Queues))
	log.Printf("[queue] worker %s registered (queues=%v, max_tasks=%d)", w.ID, w.Queues, w.MaxTasks)
	return nil
}

// Heartbeat refreshes a worker's liveness timestamp and active-task
// count. A worker heartbeating faster than heartbeatRateLimit has its
// excess calls dropped silently rather than rejected, since a
// retrying worker is still alive and the sweep only cares about the
// most recent successful write.
func (s *Service) Heartbeat(ctx context.Context, w *types.Worker) error {
	if !s.heartbeats.allow(w.ID) {
		return nil
	}
	w.LastHeartbeat = time.Now().UTC()
	if w.Status == types.WorkerStale || w.Status == types.WorkerOffline {
		w.Status = types.WorkerOnline
	}
	return s.store.SaveWorker(ctx, w)
}

// Run drives the sweep, sampler, and election loops until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(heartbeatStaleSweep)
	defer sweepTicker.Stop()
	statsTicker := time.NewTicker(statsSampleInterval)
	defer statsTicker.Stop()
	leaderTicker := time.NewTicker(leaderCheckInterval)
	defer leaderTicker.Stop()

	s.checkLeadership(ctx)
	log.Println("[queue] service started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[queue] service stopped")
			return
		case <-sweepTicker.C:
			s.sweepStaleWorkers(ctx)
		case <-statsTicker.C:
			if s.isLeader {
				s.sampleAndScale(ctx)
			}
		case <-leaderTicker.C:
			s.checkLeadership(ctx)
		}
	}
}

func (s *Service) checkLeadership(ctx context.Context) {
	rec, err := s.store.AcquireLease(ctx, s.leaderRole, s.nodeID, leaseDuration)
	wasLeader := s.isLeader
	if err != nil {
		s.isLeader = false
		if err.Error() != "persistence: lease held by another node" {
			log.Printf("[queue] leader election: %v", err)
		}
		return
	}
	s.isLeader = rec.NodeID == s.nodeID
	if s.isLeader && !wasLeader {
		log.Printf("[queue] node %s elected coordinator (term %d)", s.nodeID, rec.Term)
	}
}

func (s *Service) sweepStaleWorkers(ctx context.Context) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		log.Printf("[queue] sweep: list workers: %v", err)
		return
	}

	now := time.Now().UTC()
	for _, w := range workers {
		if w.Status == types.WorkerOffline || w.Status == types.WorkerStale {
			continue
		}
		if w.IsStale(now) {
			if err := s.store.MarkWorkerStatus(ctx, w.ID, types.WorkerStale); err != nil {
				log.Printf("[queue] mark stale %s: %v", w.ID, err)
				continue
			}
			s.store.RecordWorkerEvent(ctx, w.ID, "stale", "no heartbeat within liveness window")
			log.Printf("[queue] worker %s marked stale (last heartbeat %s)", w.ID, w.LastHeartbeat)
		}
	}
}
