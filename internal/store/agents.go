package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentRow is the persisted metadata for a configured agent. The config
// file stays authoritative; these rows exist so the API and operators
// can inspect the deployed roster.
type AgentRow struct {
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Goal          string    `json:"goal,omitempty"`
	Model         string    `json:"model,omitempty"`
	Tools         []string  `json:"tools,omitempty"`
	MemoryEnabled bool      `json:"memory_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SyncAgents reconciles the agents table with the configured roster:
// upserts every given row and removes rows no longer configured.
func (s *Store) SyncAgents(rows []AgentRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM agents`); err != nil {
		return fmt.Errorf("clear agents: %w", err)
	}

	for _, row := range rows {
		tools, _ := json.Marshal(row.Tools)
		memEnabled := 0
		if row.MemoryEnabled {
			memEnabled = 1
		}
		if _, err := tx.Exec(`
			INSERT INTO agents (name, role, goal, model, tools, memory_enabled)
			VALUES (?, ?, ?, ?, ?, ?)`,
			row.Name, row.Role, row.Goal, row.Model, string(tools), memEnabled); err != nil {
			return fmt.Errorf("insert agent %s: %w", row.Name, err)
		}
	}

	return tx.Commit()
}

func (s *Store) ListAgents() ([]AgentRow, error) {
	rows, err := s.db.Query(`
		SELECT name, role, goal, model, tools, memory_enabled, updated_at
		FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []AgentRow
	for rows.Next() {
		var row AgentRow
		var goal, model, tools *string
		var memEnabled int
		if err := rows.Scan(&row.Name, &row.Role, &goal, &model, &tools, &memEnabled, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if goal != nil {
			row.Goal = *goal
		}
		if model != nil {
			row.Model = *model
		}
		if tools != nil && *tools != "" {
			_ = json.Unmarshal([]byte(*tools), &row.Tools)
		}
		row.MemoryEnabled = memEnabled == 1
		out = append(out, row)
	}
	return out, rows.Err()
}
