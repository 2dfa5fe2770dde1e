package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeFormat is the canonical timestamp encoding for all columns.
const timeFormat = time.RFC3339Nano

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}

// encodeJSON marshals a list or map column. nil encodes as an empty value
// of the right shape so round-trips stay stable.
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

func decodeStrings(s string) ([]string, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list column: %w", err)
	}
	return out, nil
}

func decodeMap(s string) (map[string]string, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("failed to decode map column: %w", err)
	}
	return out, nil
}

// SaveTask inserts or updates a task record. Uses ON CONFLICT so saves are
// idempotent. Zero CreatedAt/UpdatedAt are stamped with the current time.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *Task) error {
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	criteria, err := encodeJSON(task.AcceptanceCriteria)
	if err != nil {
		return err
	}
	deps, err := encodeJSON(task.Dependencies)
	if err != nil {
		return err
	}
	artifacts, err := encodeJSON(task.Artifacts)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(task.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, acceptance_criteria, priority,
			assigned_agent_id, status, dependencies, created_at, updated_at,
			retry_count, estimated_hours, actual_hours, roadmap_phase, artifacts, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			acceptance_criteria = excluded.acceptance_criteria,
			priority = excluded.priority,
			assigned_agent_id = excluded.assigned_agent_id,
			status = excluded.status,
			dependencies = excluded.dependencies,
			updated_at = excluded.updated_at,
			retry_count = excluded.retry_count,
			estimated_hours = excluded.estimated_hours,
			actual_hours = excluded.actual_hours,
			roadmap_phase = excluded.roadmap_phase,
			artifacts = excluded.artifacts,
			metadata = excluded.metadata
	`, task.ID, task.Title, task.Description, criteria, task.Priority,
		task.AssignedAgentID, string(task.Status), deps,
		encodeTime(task.CreatedAt), encodeTime(task.UpdatedAt),
		task.RetryCount, task.EstimatedHours, task.ActualHours,
		task.RoadmapPhase, artifacts, metadata)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

const taskColumns = `rowid, id, title, description, acceptance_criteria, priority,
	assigned_agent_id, status, dependencies, created_at, updated_at,
	retry_count, estimated_hours, actual_hours, roadmap_phase, artifacts, metadata`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	task := &Task{}
	var criteria, deps, artifacts, metadata string
	var createdAt, updatedAt string

	err := row.Scan(&task.Seq, &task.ID, &task.Title, &task.Description,
		&criteria, &task.Priority, &task.AssignedAgentID, &task.Status,
		&deps, &createdAt, &updatedAt, &task.RetryCount,
		&task.EstimatedHours, &task.ActualHours, &task.RoadmapPhase,
		&artifacts, &metadata)
	if err != nil {
		return nil, err
	}

	if task.AcceptanceCriteria, err = decodeStrings(criteria); err != nil {
		return nil, err
	}
	if task.Dependencies, err = decodeStrings(deps); err != nil {
		return nil, err
	}
	if task.Artifacts, err = decodeStrings(artifacts); err != nil {
		return nil, err
	}
	if task.Metadata, err = decodeMap(metadata); err != nil {
		return nil, err
	}
	if task.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask retrieves a task by ID. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// ListTasks returns all tasks ordered by creation time, then insertion
// order as the stable tiebreaker.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at, rowid`)
}

// ListByStatus returns all tasks with the given status in creation order.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status TaskStatus) ([]*Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at, rowid`,
		string(status))
}

// ListAssigned returns the given agent's tasks with the given status,
// ordered by priority then creation order.
func (s *SQLiteStore) ListAssigned(ctx context.Context, agentID string, status TaskStatus) ([]*Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE assigned_agent_id = ? AND status = ?
		 ORDER BY priority, created_at, rowid`,
		agentID, string(status))
}

// transitionTx applies a guarded status flip inside an existing
// transaction. Zero rows affected means the task either doesn't exist or
// is no longer in the expected state.
func transitionTx(ctx context.Context, tx *sql.Tx, taskID string, from, to TaskStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), encodeTime(time.Now()), taskID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		return fmt.Errorf("task %s is not %s: %w", taskID, from, ErrConflict)
	}
	return nil
}

// Transition flips a task from one status to another, stamping
// updated_at. This is the single entry point for status changes; it fails
// with ErrConflict if the task is not in the expected state.
func (s *SQLiteStore) Transition(ctx context.Context, taskID string, from, to TaskStatus) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return transitionTx(ctx, tx, taskID, from, to)
	})
}

// Claim atomically assigns a pending task to an agent: the task flips to
// in_progress and the agent's state flips to working, all in one
// transaction. A competing claimer observes ErrConflict.
func (s *SQLiteStore) Claim(ctx context.Context, taskID, agentID string) error {
	now := time.Now()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := transitionTx(ctx, tx, taskID, StatusPending, StatusInProgress); err != nil {
			return err
		}

		// The claiming agent owns the task from here on.
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET assigned_agent_id = ? WHERE id = ?`, agentID, taskID); err != nil {
			return fmt.Errorf("failed to assign task: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_states (agent_id, status, current_task_id, last_activity, completed_tasks, memory)
			VALUES (?, ?, ?, ?, '[]', '{}')
			ON CONFLICT(agent_id) DO UPDATE SET
				status = excluded.status,
				current_task_id = excluded.current_task_id,
				last_activity = excluded.last_activity
		`, agentID, AgentWorking, taskID, encodeTime(now))
		if err != nil {
			return fmt.Errorf("failed to update agent state: %w", err)
		}
		return nil
	})
}

// CompleteTask flips an in_progress task to completed, appending the new
// artifacts. Existing artifacts are never cleared.
func (s *SQLiteStore) CompleteTask(ctx context.Context, taskID string, artifacts []string, actualHours float64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT artifacts FROM tasks WHERE id = ?`, taskID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read artifacts: %w", err)
		}

		current, err := decodeStrings(existing)
		if err != nil {
			return err
		}
		merged, err := encodeJSON(append(current, artifacts...))
		if err != nil {
			return err
		}

		if err := transitionTx(ctx, tx, taskID, StatusInProgress, StatusCompleted); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET artifacts = ?, actual_hours = ? WHERE id = ?`,
			merged, actualHours, taskID); err != nil {
			return fmt.Errorf("failed to store artifacts: %w", err)
		}
		return nil
	})
}

// FailTask flips an in_progress task to failed, recording the reason in
// metadata for reporting.
func (s *SQLiteStore) FailTask(ctx context.Context, taskID, reason string) error {
	return s.finishTask(ctx, taskID, StatusFailed, reason)
}

// BlockTask flips an in_progress task to blocked with the worker's stated
// reason. Blocked is distinct from failed: it does not count against the
// retry budget.
func (s *SQLiteStore) BlockTask(ctx context.Context, taskID, reason string) error {
	return s.finishTask(ctx, taskID, StatusBlocked, reason)
}

func (s *SQLiteStore) finishTask(ctx context.Context, taskID string, to TaskStatus, reason string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT metadata FROM tasks WHERE id = ?`, taskID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read metadata: %w", err)
		}

		meta, err := decodeMap(raw)
		if err != nil {
			return err
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta["last_error"] = reason

		encoded, err := encodeJSON(meta)
		if err != nil {
			return err
		}

		if err := transitionTx(ctx, tx, taskID, StatusInProgress, to); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET metadata = ? WHERE id = ?`, encoded, taskID); err != nil {
			return fmt.Errorf("failed to store metadata: %w", err)
		}
		return nil
	})
}

// ResetTask flips a task back to pending from the given status,
// optionally bumping the retry counter. Used by stall recovery, the retry
// policy, and maintenance tooling.
func (s *SQLiteStore) ResetTask(ctx context.Context, taskID string, from TaskStatus, bumpRetry bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := transitionTx(ctx, tx, taskID, from, StatusPending); err != nil {
			return err
		}
		if bumpRetry {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks SET retry_count = retry_count + 1 WHERE id = ?`, taskID); err != nil {
				return fmt.Errorf("failed to bump retry count: %w", err)
			}
		}
		return nil
	})
}
