package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/conclave-run/conclave/internal/types"
)

// SaveAgent upserts an agent row.
func (s *Store) SaveAgent(ctx context.Context, a *types.Agent) error {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("persistence: marshal capabilities: %w", err)
	}
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("persistence: marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, kind, system_prompt, capabilities, domain, supervisor_id, config, allow_delegation, iteration_cap, status, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			kind=excluded.kind,
			system_prompt=excluded.system_prompt,
			capabilities=excluded.capabilities,
			domain=excluded.domain,
			supervisor_id=excluded.supervisor_id,
			config=excluded.config,
			allow_delegation=excluded.allow_delegation,
			iteration_cap=excluded.iteration_cap,
			status=excluded.status,
			last_activity=excluded.last_activity
	`,
		a.ID, a.Name, a.Kind, a.SystemPrompt, string(caps), nullIfEmpty(a.Domain),
		nullIfEmpty(a.SupervisorID), string(cfg), a.AllowDelegation, a.IterationCap,
		a.Status, a.CreatedAt, a.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("persistence: save agent: %w", err)
	}
	return nil
}

// GetAgent fetches one agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, system_prompt, capabilities, domain, supervisor_id, config, allow_delegation, iteration_cap, status, created_at, last_activity
		FROM agents WHERE id = ?
	`, id)
	return scanAgent(row)
}

// DeleteAgent removes an agent row.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("persistence: delete agent: %w", err)
	}
	return nil
}

// ListAgents returns every agent, ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, system_prompt, capabilities, domain, supervisor_id, config, allow_delegation, iteration_cap, status, created_at, last_activity
		FROM agents ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("persistence: list agents: %w", err)
	}
	defer logClose(ctx, rows)

	var out []*types.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row *sql.Row) (*types.Agent, error) {
	a, err := scanAgentAny(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	return a, err
}

func scanAgentRows(rows *sql.Rows) (*types.Agent, error) {
	return scanAgentAny(rows)
}

func scanAgentAny(r rowScanner) (*types.Agent, error) {
	var a types.Agent
	var caps, cfg, domain, supervisorID sql.NullString

	if err := r.Scan(
		&a.ID, &a.Name, &a.Kind, &a.SystemPrompt, &caps, &domain, &supervisorID,
		&cfg, &a.AllowDelegation, &a.IterationCap, &a.Status, &a.CreatedAt, &a.LastActivity,
	); err != nil {
		return nil, err
	}

	if domain.Valid {
		a.Domain = domain.String
	}
	if supervisorID.Valid {
		a.SupervisorID = supervisorID.String
	}
	if caps.Valid && caps.String != "" {
		if err := json.Unmarshal([]byte(caps.String), &a.Capabilities); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal capabilities: %w", err)
		}
	}
	if cfg.Valid && cfg.String != "" {
		if err := json.Unmarshal([]byte(cfg.String), &a.Config); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal config: %w", err)
		}
	}
	return &a, nil
}
