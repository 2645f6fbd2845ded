package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TaskRun is the persisted record of one orchestrated execution. Unlike
// the in-memory history it keeps failed runs too, so operators can
// inspect what went wrong after the fact.
type TaskRun struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Agents      json.RawMessage `json:"agents"`
	Results     json.RawMessage `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

const runColumns = `id, description, mode, status, agents, results, error, duration_ms, started_at, completed_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*TaskRun, error) {
	r := &TaskRun{}
	var results, errMsg *string
	var durationMs *int64
	err := scanner.Scan(&r.ID, &r.Description, &r.Mode, &r.Status, &r.Agents,
		&results, &errMsg, &durationMs, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if results != nil {
		r.Results = json.RawMessage(*results)
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if durationMs != nil {
		r.DurationMs = *durationMs
	}
	return r, nil
}

func (s *Store) SaveTaskRun(r *TaskRun) error {
	_, err := s.db.Exec(`
		INSERT INTO task_runs (id, description, mode, status, agents, results, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			results = excluded.results,
			error = excluded.error,
			duration_ms = excluded.duration_ms,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.Description, r.Mode, r.Status, r.Agents, r.Results, r.Error, r.DurationMs)
	if err != nil {
		return fmt.Errorf("save task run: %w", err)
	}
	return nil
}

func (s *Store) GetTaskRun(id string) (*TaskRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM task_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task run: %w", err)
	}
	return r, nil
}

func (s *Store) ListTaskRuns(limit int) ([]TaskRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM task_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) UpdateTaskRun(id, status string, results json.RawMessage, errMsg string, durationMs int64) error {
	_, err := s.db.Exec(`
		UPDATE task_runs
		SET status = ?, results = ?, error = ?, duration_ms = ?,
		    completed_at = CASE WHEN ? IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?`, status, results, errMsg, durationMs, status, id)
	return err
}

func (s *Store) DeleteTaskRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM task_runs WHERE id = ?`, id)
	return err
}
