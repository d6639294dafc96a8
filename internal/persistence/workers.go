package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

// SaveWorker upserts a worker's registration/heartbeat row.
func (s *Store) SaveWorker(ctx context.Context, w *types.Worker) error {
	queues, _ := json.Marshal(w.Queues)
	caps, _ := json.Marshal(w.Capabilities)
	meta, _ := json.Marshal(w.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_workers (id, kind, hostname, pid, status, max_tasks, active_tasks, queues, capabilities, metadata, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			active_tasks=excluded.active_tasks,
			queues=excluded.queues,
			last_heartbeat=excluded.last_heartbeat
	`, w.ID, w.Kind, w.Hostname, w.PID, w.Status, w.MaxTasks, w.ActiveTasks, string(queues), string(caps), string(meta), w.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("persistence: save worker: %w", err)
	}
	return nil
}

// ListWorkers returns every worker row.
func (s *Store) ListWorkers(ctx context.Context) ([]*types.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, hostname, pid, status, max_tasks, active_tasks, queues, capabilities, metadata, last_heartbeat
		FROM task_workers
	`)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []*types.Worker
	for rows.Next() {
		var w types.Worker
		var queues, caps, meta sql.NullString
		if err := rows.Scan(&w.ID, &w.Kind, &w.Hostname, &w.PID, &w.Status, &w.MaxTasks, &w.ActiveTasks, &queues, &caps, &meta, &w.LastHeartbeat); err != nil {
			return nil, err
		}
		if queues.Valid && queues.String != "" {
			json.Unmarshal([]byte(queues.String), &w.Queues)
		}
		if caps.Valid && caps.String != "" {
			json.Unmarshal([]byte(caps.String), &w.Capabilities)
		}
		if meta.Valid && meta.String != "" {
			json.Unmarshal([]byte(meta.String), &w.Metadata)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// MarkWorkerStatus updates a worker's status without touching its
// heartbeat, used when the sweep loop flags a worker stale.
func (s *Store) MarkWorkerStatus(ctx context.Context, id string, status types.WorkerStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE task_workers SET status = ? WHERE id = ?`, status, id)
	return err
}

// RecordWorkerEvent appends a lifecycle event for a worker.
func (s *Store) RecordWorkerEvent(ctx context.Context, workerID, event, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_events (worker_id, event, detail, at) VALUES (?, ?, ?, ?)
	`, workerID, event, detail, time.Now().UTC())
	return err
}

// RecordQueueStats appends one sampled queue snapshot.
func (s *Store) RecordQueueStats(ctx context.Context, q types.QueueStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_queue_stats (queue_name, worker_count, queued, active, utilization, sampled_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, q.QueueName, q.WorkerCount, q.Queued, q.Active, q.Utilization, q.SampledAt)
	return err
}

// LatestQueueStats returns the most recent sample for each distinct
// queue name.
func (s *Store) LatestQueueStats(ctx context.Context) ([]types.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue_name, worker_count, queued, active, utilization, sampled_at
		FROM task_queue_stats q
		WHERE sampled_at = (SELECT MAX(sampled_at) FROM task_queue_stats WHERE queue_name = q.queue_name)
		GROUP BY queue_name
	`)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []types.QueueStats
	for rows.Next() {
		var q types.QueueStats
		if err := rows.Scan(&q.QueueName, &q.WorkerCount, &q.Queued, &q.Active, &q.Utilization, &q.SampledAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveScalingDecision persists a proposed autoscale action.
func (s *Store) SaveScalingDecision(ctx context.Context, d *types.ScalingDecision) error {
	snap, _ := json.Marshal(d.MetricsSnapshot)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scaling_decisions (id, kind, queue_name, current_workers, target_workers, reason, metrics_snapshot, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Kind, d.QueueName, d.CurrentWorkers, d.TargetWorkers, d.Reason, string(snap), d.Applied, d.CreatedAt)
	return err
}
