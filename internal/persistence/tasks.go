package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/conclave-run/conclave/internal/types"
)

// SaveTask upserts a root task row.
func (s *Store) SaveTask(ctx context.Context, t *types.Task) error {
	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("persistence: marshal parameters: %w", err)
	}
	result, err := json.Marshal(t.Result)
	if err != nil {
		return fmt.Errorf("persistence: marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, description, parameters, submitted_at, priority, decomposition_strategy, delegation_strategy, distribution_mode, status, started_at, completed_at, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			started_at=excluded.started_at,
			completed_at=excluded.completed_at,
			result=excluded.result,
			error=excluded.error
	`,
		t.ID, t.Description, string(params), t.SubmittedAt, t.Priority,
		t.DecompositionStrategy, t.DelegationStrategy, t.DistributionMode,
		t.Status, t.StartedAt, t.CompletedAt, string(result), nullIfEmpty(t.Error),
	)
	if err != nil {
		return fmt.Errorf("persistence: save task: %w", err)
	}
	return nil
}

// GetTask fetches one task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, parameters, submitted_at, priority, decomposition_strategy, delegation_strategy, distribution_mode, status, started_at, completed_at, result, error
		FROM tasks WHERE id = ?
	`, id)

	var t types.Task
	var params, result, errCol sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(
		&t.ID, &t.Description, &params, &t.SubmittedAt, &t.Priority,
		&t.DecompositionStrategy, &t.DelegationStrategy, &t.DistributionMode,
		&t.Status, &started, &completed, &result, &errCol,
	); err != nil {
		return nil, err
	}
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	if errCol.Valid {
		t.Error = errCol.String
	}
	if params.Valid && params.String != "" {
		json.Unmarshal([]byte(params.String), &t.Parameters)
	}
	if result.Valid && result.String != "" {
		json.Unmarshal([]byte(result.String), &t.Result)
	}
	return &t, nil
}

// ListTasksByStatus returns tasks in a given status, oldest first.
func (s *Store) ListTasksByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, parameters, submitted_at, priority, decomposition_strategy, delegation_strategy, distribution_mode, status, started_at, completed_at, result, error
		FROM tasks WHERE status = ? ORDER BY priority DESC, submitted_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []*types.Task
	for rows.Next() {
		var t types.Task
		var params, result, errCol sql.NullString
		var started, completed sql.NullTime
		if err := rows.Scan(
			&t.ID, &t.Description, &params, &t.SubmittedAt, &t.Priority,
			&t.DecompositionStrategy, &t.DelegationStrategy, &t.DistributionMode,
			&t.Status, &started, &completed, &result, &errCol,
		); err != nil {
			return nil, err
		}
		if started.Valid {
			t.StartedAt = &started.Time
		}
		if completed.Valid {
			t.CompletedAt = &completed.Time
		}
		if errCol.Valid {
			t.Error = errCol.String
		}
		if params.Valid && params.String != "" {
			json.Unmarshal([]byte(params.String), &t.Parameters)
		}
		if result.Valid && result.String != "" {
			json.Unmarshal([]byte(result.String), &t.Result)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SaveDecomposition persists a task's decomposition and its subtasks
// in one transaction.
func (s *Store) SaveDecomposition(ctx context.Context, d *types.TaskDecomposition, createdAt interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin: %w", err)
	}
	defer tx.Rollback()

	criticalPath, _ := json.Marshal(d.CriticalPath)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_decompositions (task_id, original_description, strategy, total_complexity, max_parallelism, critical_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			total_complexity=excluded.total_complexity,
			max_parallelism=excluded.max_parallelism,
			critical_path=excluded.critical_path
	`, d.TaskID, d.OriginalDescription, d.Strategy, d.TotalComplexity, d.MaxParallelism, string(criticalPath), createdAt)
	if err != nil {
		return fmt.Errorf("persistence: save decomposition: %w", err)
	}

	for _, st := range d.Subtasks {
		if err := saveSubtaskTx(ctx, tx, d.TaskID, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveSubtask upserts a single subtask row outside of a decomposition
// write, used by the task processor to store each subtask's final
// state once ExecuteDAG returns.
func (s *Store) SaveSubtask(ctx context.Context, taskID string, st *types.Subtask) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := saveSubtaskTx(ctx, tx, taskID, st); err != nil {
		return err
	}
	return tx.Commit()
}

func saveSubtaskTx(ctx context.Context, tx *sql.Tx, taskID string, st *types.Subtask) error {
	caps, _ := json.Marshal(st.RequiredCapabilities)
	deps, _ := json.Marshal(st.Dependencies)
	result, _ := json.Marshal(st.Result)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO subtasks (id, task_id, description, required_capabilities, estimated_complexity, dependencies, assigned_agent_id, status, result, error, execution_time_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			assigned_agent_id=excluded.assigned_agent_id,
			status=excluded.status,
			result=excluded.result,
			error=excluded.error,
			execution_time_ms=excluded.execution_time_ms,
			updated_at=CURRENT_TIMESTAMP
	`,
		st.ID, taskID, st.Description, string(caps), st.EstimatedComplexity, string(deps),
		nullIfEmpty(st.AssignedAgentID), st.Status, string(result), nullIfEmpty(st.Error), st.ExecutionTimeMS,
	)
	if err != nil {
		return fmt.Errorf("persistence: save subtask %s: %w", st.ID, err)
	}
	return nil
}

// ListSubtasks returns every subtask for a task, in insertion order.
func (s *Store) ListSubtasks(ctx context.Context, taskID string) ([]*types.Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, required_capabilities, estimated_complexity, dependencies, assigned_agent_id, status, result, error, execution_time_ms
		FROM subtasks WHERE task_id = ? ORDER BY rowid
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer logClose(ctx, rows)

	var out []*types.Subtask
	for rows.Next() {
		var st types.Subtask
		var caps, deps, result, agentID, errCol sql.NullString
		if err := rows.Scan(&st.ID, &st.Description, &caps, &st.EstimatedComplexity, &deps, &agentID, &st.Status, &result, &errCol, &st.ExecutionTimeMS); err != nil {
			return nil, err
		}
		if agentID.Valid {
			st.AssignedAgentID = agentID.String
		}
		if errCol.Valid {
			st.Error = errCol.String
		}
		if caps.Valid && caps.String != "" {
			json.Unmarshal([]byte(caps.String), &st.RequiredCapabilities)
		}
		if deps.Valid && deps.String != "" {
			json.Unmarshal([]byte(deps.String), &st.Dependencies)
		}
		if result.Valid && result.String != "" {
			json.Unmarshal([]byte(result.String), &st.Result)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
