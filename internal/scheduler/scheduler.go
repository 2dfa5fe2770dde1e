// Package scheduler decides which task each agent works on next. It covers
// dependency eligibility, next-task selection with cooperative timeouts,
// the retry budget for failed tasks, and stall recovery for work whose
// owning process died.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/store"
)

// Scheduler selects the next task for an agent. Selection is a pure query:
// the claim itself (status flip, agent state update) happens atomically in
// the execution coordinator so that two callers racing on the same read
// cannot both win.
type Scheduler struct {
	store       store.Store
	taskTimeout time.Duration
	log         *logging.Logger
}

// New creates a Scheduler. taskTimeout bounds how long a claimed task may
// sit without progress before it is failed and its agent released.
func New(st store.Store, taskTimeout time.Duration, log *logging.Logger) *Scheduler {
	return &Scheduler{
		store:       st,
		taskTimeout: taskTimeout,
		log:         log.WithComponent("scheduler"),
	}
}

// NextTaskFor returns the task the agent should run next, or nil if there
// is nothing to do. Order of preference:
//
//  1. nothing, if the agent is already working
//  2. the agent's current in_progress task (resume), unless it has
//     exceeded the task timeout, in which case it is failed and selection
//     falls through
//  3. the highest-priority eligible task assigned to the agent
//
// Failed-task retries are the caller's concern (see RetryPolicy); the
// scheduler only ever surfaces pending work.
func (s *Scheduler) NextTaskFor(ctx context.Context, agentID string) (*store.Task, error) {
	state, err := s.store.GetOrCreateAgentState(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent state: %w", err)
	}

	// One concurrent task per agent.
	if state.Status == store.AgentWorking {
		return nil, nil
	}

	if state.CurrentTaskID != "" {
		task, err := s.store.GetTask(ctx, state.CurrentTaskID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Stale pointer; fall through to fresh selection.
		case err != nil:
			return nil, fmt.Errorf("loading current task: %w", err)
		case task.Status == store.StatusInProgress:
			if time.Since(task.UpdatedAt) > s.taskTimeout {
				if err := s.expireTask(ctx, task, state); err != nil {
					return nil, err
				}
				// Fall through to fresh selection.
			} else {
				return task, nil
			}
		}
	}

	all, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	eligible := EligibleFor(agentID, all)
	if len(eligible) == 0 {
		return nil, nil
	}

	// Priority ascending, then creation order. ListTasks already yields
	// creation order, so the sort only needs to be stable.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority < eligible[j].Priority
	})

	return eligible[0], nil
}

// expireTask fails a timed-out task and releases its agent.
func (s *Scheduler) expireTask(ctx context.Context, task *store.Task, state *store.AgentState) error {
	s.log.Warn("task exceeded timeout, marking failed",
		"task_id", task.ID, "agent_id", state.AgentID, "timeout", s.taskTimeout.String())

	err := s.store.FailTask(ctx, task.ID, "task timeout exceeded")
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("failing timed-out task: %w", err)
	}

	state.Status = store.AgentIdle
	state.CurrentTaskID = ""
	state.LastActivity = time.Now()
	if err := s.store.SaveAgentState(ctx, state); err != nil {
		return fmt.Errorf("releasing agent after timeout: %w", err)
	}
	return nil
}
