package store

import (
	"context"
)

// initSchema creates all required tables if they don't exist. List and map
// fields are stored as JSON text, matching the flat keyed layout the rest
// of the store assumes.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		acceptance_criteria TEXT,
		priority INTEGER NOT NULL DEFAULT 5,
		assigned_agent_id TEXT,
		status TEXT NOT NULL,
		dependencies TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		estimated_hours REAL NOT NULL DEFAULT 0,
		actual_hours REAL NOT NULL DEFAULT 0,
		roadmap_phase TEXT,
		artifacts TEXT,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_agent_id, status);

	CREATE TABLE IF NOT EXISTS agent_states (
		agent_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		current_task_id TEXT,
		last_activity TEXT NOT NULL,
		completed_tasks TEXT,
		memory TEXT
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
