package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

// ErrLeaseHeld is returned by AcquireLease when another node holds an
// unexpired lease for the role.
var ErrLeaseHeld = errors.New("persistence: lease held by another node")

// AcquireLease performs the compare-and-swap at the heart of leader
// election: it only installs nodeID as leader if no row exists for
// role, or the existing lease has expired, or nodeID already holds
// it (lease renewal). When leadership changes hands the term is
// incremented and a leader_history row is appended; a renewal by the
// current holder only extends the lease and keeps the term.
func (s *Store) AcquireLease(ctx context.Context, role, nodeID string, leaseDuration time.Duration) (*types.LeaderRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var existing types.LeaderRecord
	var expires time.Time
	err = tx.QueryRowContext(ctx, `SELECT role, node_id, term, lease_expires_at FROM leader_election WHERE role = ?`, role).
		Scan(&existing.Role, &existing.NodeID, &existing.Term, &expires)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec := &types.LeaderRecord{Role: role, NodeID: nodeID, Term: 1, LeaseExpiresAt: now.Add(leaseDuration)}
		if _, err := tx.ExecContext(ctx, `INSERT INTO leader_election (role, node_id, term, lease_expires_at) VALUES (?, ?, ?, ?)`,
			rec.Role, rec.NodeID, rec.Term, rec.LeaseExpiresAt); err != nil {
			return nil, err
		}
		if err := recordTransition(ctx, tx, role, "", nodeID, rec.Term, "initial election"); err != nil {
			return nil, err
		}
		return rec, tx.Commit()
	case err != nil:
		return nil, err
	}

	existing.LeaseExpiresAt = expires
	if existing.NodeID == nodeID || now.After(existing.LeaseExpiresAt) {
		term := existing.Term
		reason := "lease renewed"
		if existing.NodeID != nodeID {
			term++
			reason = "lease expired, new leader elected"
		}
		rec := &types.LeaderRecord{Role: role, NodeID: nodeID, Term: term, LeaseExpiresAt: now.Add(leaseDuration)}
		if _, err := tx.ExecContext(ctx, `UPDATE leader_election SET node_id = ?, term = ?, lease_expires_at = ? WHERE role = ?`,
			rec.NodeID, rec.Term, rec.LeaseExpiresAt, role); err != nil {
			return nil, err
		}
		if existing.NodeID != nodeID {
			if err := recordTransition(ctx, tx, role, existing.NodeID, nodeID, rec.Term, reason); err != nil {
				return nil, err
			}
		}
		return rec, tx.Commit()
	}

	return nil, ErrLeaseHeld
}

func recordTransition(ctx context.Context, tx *sql.Tx, role, oldNode, newNode string, term int64, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO leader_history (role, old_node_id, new_node_id, term, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, role, nullIfEmpty(oldNode), newNode, term, reason, time.Now().UTC())
	return err
}

// CurrentLeader returns the lease row for role, if any.
func (s *Store) CurrentLeader(ctx context.Context, role string) (*types.LeaderRecord, error) {
	var rec types.LeaderRecord
	err := s.db.QueryRowContext(ctx, `SELECT role, node_id, term, lease_expires_at FROM leader_election WHERE role = ?`, role).
		Scan(&rec.Role, &rec.NodeID, &rec.Term, &rec.LeaseExpiresAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveManualTask inserts a manual-intervention record, idempotent on
// (source_system, source_id) per spec's error taxonomy.
func (s *Store) SaveManualTask(ctx context.Context, m *types.ManualTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_tasks (id, category, priority, source_system, source_id, message, created_at, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_system, source_id) DO NOTHING
	`, m.ID, m.Category, m.Priority, m.SourceSystem, m.SourceID, m.Message, m.CreatedAt, m.Resolved)
	return err
}

// RecordError appends a row to the system error log, used by
// components logging a fault that does not rise to an alert.
func (s *Store) RecordError(ctx context.Context, category, message, context_ string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_logs (category, message, context, at) VALUES (?, ?, ?, ?)
	`, category, message, nullIfEmpty(context_), time.Now().UTC())
	return err
}
