package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

// RecordMetric appends one performance sample. Metric rows are
// append-only; the perfmon's rolling aggregates are computed by
// querying a time window, never by updating a row in place.
func (s *Store) RecordMetric(ctx context.Context, m types.MetricSample) error {
	tags, _ := json.Marshal(m.Tags)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_performance_metrics (agent_id, kind, value, tags, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.AgentID, m.Kind, m.Value, string(tags), m.Timestamp)
	if err != nil {
		return fmt.Errorf("persistence: record metric: %w", err)
	}
	return nil
}

// RecordMetrics inserts a batch in one transaction, used by the
// perfmon's buffered flush.
func (s *Store) RecordMetrics(ctx context.Context, samples []types.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_performance_metrics (agent_id, kind, value, tags, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range samples {
		tags, _ := json.Marshal(m.Tags)
		if _, err := stmt.ExecContext(ctx, m.AgentID, m.Kind, m.Value, string(tags), m.Timestamp); err != nil {
			return fmt.Errorf("persistence: record metric batch: %w", err)
		}
	}
	return tx.Commit()
}

// MetricValues returns raw values for an agent's metric kind recorded
// since since, oldest first. agentID set to perfmon's derived system
// identity queries the system-wide sentinel rows.
func (s *Store) MetricValues(ctx context.Context, agentID string, kind types.MetricKind, since time.Time) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM agent_performance_metrics
		WHERE agent_id = ? AND kind = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC
	`, agentID, kind, since)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecentMetricValues returns the most recent limit values for an
// agent's metric kind, regardless of age, oldest of the selected
// samples first. Used by the failure-rate estimator to backfill a
// minimum sample size for agents with too few executions in the
// primary rolling window.
func (s *Store) RecentMetricValues(ctx context.Context, agentID string, kind types.MetricKind, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM (
			SELECT value, recorded_at FROM agent_performance_metrics
			WHERE agent_id = ? AND kind = ?
			ORDER BY recorded_at DESC
			LIMIT ?
		) ORDER BY recorded_at ASC
	`, agentID, kind, limit)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DistinctMetricKinds returns the metric kinds with at least one
// sample for agentID since since.
func (s *Store) DistinctMetricKinds(ctx context.Context, agentID string, since time.Time) ([]types.MetricKind, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT kind FROM agent_performance_metrics
		WHERE agent_id = ? AND recorded_at >= ?
	`, agentID, since)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []types.MetricKind
	for rows.Next() {
		var k types.MetricKind
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// SaveAlert upserts an alert row.
func (s *Store) SaveAlert(ctx context.Context, a *types.Alert) error {
	meta, _ := json.Marshal(a.Metadata)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_alerts (id, title, message, severity, source, source_id, metadata, created_at, acknowledged, acknowledged_at, resolved, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			acknowledged=excluded.acknowledged,
			acknowledged_at=excluded.acknowledged_at,
			resolved=excluded.resolved,
			resolved_at=excluded.resolved_at
	`, a.ID, a.Title, a.Message, a.Severity, a.Source, nullIfEmpty(a.SourceID), string(meta),
		a.CreatedAt, a.Acknowledged, a.AcknowledgedAt, a.Resolved, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("persistence: save alert: %w", err)
	}
	return nil
}

// ListActiveAlerts returns unresolved alerts, newest first.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]*types.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, message, severity, source, source_id, metadata, created_at, acknowledged, acknowledged_at, resolved, resolved_at
		FROM system_alerts WHERE resolved = 0 ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)
	return scanAlerts(rows)
}

// DeleteResolvedAlertsBefore purges resolved alerts older than
// cutoff, the perfmon's garbage-collection sweep.
func (s *Store) DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM system_alerts WHERE resolved = 1 AND resolved_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAlerts(rows *sql.Rows) ([]*types.Alert, error) {
	var out []*types.Alert
	for rows.Next() {
		var a types.Alert
		var sourceID, meta sql.NullString
		var ackAt, resAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.Severity, &a.Source, &sourceID, &meta,
			&a.CreatedAt, &a.Acknowledged, &ackAt, &a.Resolved, &resAt); err != nil {
			return nil, err
		}
		if sourceID.Valid {
			a.SourceID = sourceID.String
		}
		if ackAt.Valid {
			a.AcknowledgedAt = &ackAt.Time
		}
		if resAt.Valid {
			a.ResolvedAt = &resAt.Time
		}
		if meta.Valid && meta.String != "" {
			json.Unmarshal([]byte(meta.String), &a.Metadata)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
