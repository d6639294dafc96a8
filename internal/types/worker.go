package types

import "time"

// WorkerStaleAfter is the liveness window from spec.md §3: a worker
// whose last heartbeat is older than this is treated as offline for
// selection and stats purposes, even if its status column still says
// otherwise.
const WorkerStaleAfter = 5 * time.Minute

// WorkerStatus is the lifecycle state of a distributed worker.
type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerOffline WorkerStatus = "offline"
	WorkerBusy    WorkerStatus = "busy"
	WorkerIdle    WorkerStatus = "idle"
	WorkerError   WorkerStatus = "error"
	WorkerStale   WorkerStatus = "stale"
)

// Worker is a process executing subtasks out-of-process, dispatched to
// via the broker.
type Worker struct {
	ID             string            `json:"id"` // hostname_pid_randomsuffix
	Kind           string            `json:"kind"`
	Hostname       string            `json:"hostname"`
	PID            int               `json:"pid"`
	Status         WorkerStatus      `json:"status"`
	MaxTasks       int               `json:"max_tasks"`
	ActiveTasks    int               `json:"active_tasks"`
	Queues         []string          `json:"queues"`
	Capabilities   map[string]string `json:"capabilities,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	LastHeartbeat  time.Time         `json:"last_heartbeat"`
}

// IsStale reports whether the worker's heartbeat has exceeded the
// liveness window as of now.
func (w *Worker) IsStale(now time.Time) bool {
	return now.Sub(w.LastHeartbeat) > WorkerStaleAfter
}

// QueueStats is a sampled snapshot of one named queue's depth and
// worker utilization.
type QueueStats struct {
	QueueName   string    `json:"queue_name"`
	WorkerCount int       `json:"worker_count"`
	Queued      int       `json:"queued"`
	Active      int       `json:"active"`
	Utilization float64   `json:"utilization"`
	SampledAt   time.Time `json:"sampled_at"`
}

// ScalingKind distinguishes a scale-up from a scale-down proposal.
type ScalingKind string

const (
	ScaleUp   ScalingKind = "scale_up"
	ScaleDown ScalingKind = "scale_down"
)

// ScalingDecision is a proposed (not yet applied) worker-count change
// for a queue.
type ScalingDecision struct {
	ID              string      `json:"id"`
	Kind            ScalingKind `json:"kind"`
	QueueName       string      `json:"queue_name"`
	CurrentWorkers  int         `json:"current_workers"`
	TargetWorkers   int         `json:"target_workers"`
	Reason          string      `json:"reason"`
	MetricsSnapshot QueueStats  `json:"metrics_snapshot"`
	Applied         bool        `json:"applied"`
	CreatedAt       time.Time   `json:"created_at"`
}

// LeaderRecord is the current holder of a named coordination role.
type LeaderRecord struct {
	Role           string    `json:"role"`
	NodeID         string    `json:"node_id"`
	Term           int64     `json:"term"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
}

// LeaderTransition is an append-only history row for a leadership
// change.
type LeaderTransition struct {
	Role      string    `json:"role"`
	OldNodeID string    `json:"old_node_id"`
	NewNodeID string    `json:"new_node_id"`
	Term      int64     `json:"term"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// ManualTask is a first-class persisted record for a condition only a
// human can resolve (spec.md §7, manual_intervention_required).
type ManualTask struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Priority     int       `json:"priority"`
	SourceSystem string    `json:"source_system"`
	SourceID     string    `json:"source_id"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Resolved     bool      `json:"resolved"`
}
