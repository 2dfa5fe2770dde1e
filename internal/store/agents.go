package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveAgentState inserts or updates an agent state record.
func (s *SQLiteStore) SaveAgentState(ctx context.Context, state *AgentState) error {
	if state.Status == "" {
		state.Status = AgentIdle
	}
	if state.LastActivity.IsZero() {
		state.LastActivity = time.Now()
	}

	completed, err := encodeJSON(state.CompletedTasks)
	if err != nil {
		return err
	}
	memory, err := encodeJSON(state.memory)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_states (agent_id, status, current_task_id, last_activity, completed_tasks, memory)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			status = excluded.status,
			current_task_id = excluded.current_task_id,
			last_activity = excluded.last_activity,
			completed_tasks = excluded.completed_tasks,
			memory = excluded.memory
	`, state.AgentID, state.Status, state.CurrentTaskID,
		encodeTime(state.LastActivity), completed, memory)
	if err != nil {
		return fmt.Errorf("failed to upsert agent state: %w", err)
	}
	return nil
}

// GetAgentState retrieves an agent's state. Returns ErrNotFound if the
// agent has never been seen.
func (s *SQLiteStore) GetAgentState(ctx context.Context, agentID string) (*AgentState, error) {
	state := &AgentState{}
	var lastActivity, completed, memory string

	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, status, current_task_id, last_activity, completed_tasks, memory
		FROM agent_states WHERE agent_id = ?
	`, agentID).Scan(&state.AgentID, &state.Status, &state.CurrentTaskID,
		&lastActivity, &completed, &memory)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent state: %w", err)
	}

	if state.LastActivity, err = decodeTime(lastActivity); err != nil {
		return nil, err
	}
	if state.CompletedTasks, err = decodeStrings(completed); err != nil {
		return nil, err
	}
	if state.memory, err = decodeMap(memory); err != nil {
		return nil, err
	}
	return state, nil
}

// GetOrCreateAgentState retrieves an agent's state, creating an idle
// record on first reference.
func (s *SQLiteStore) GetOrCreateAgentState(ctx context.Context, agentID string) (*AgentState, error) {
	state, err := s.GetAgentState(ctx, agentID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	state = &AgentState{
		AgentID:      agentID,
		Status:       AgentIdle,
		LastActivity: time.Now(),
	}
	if err := s.SaveAgentState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}
