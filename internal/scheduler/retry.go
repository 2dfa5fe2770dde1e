package scheduler

import (
	"context"
	"fmt"

	"github.com/aristath/agentpool/internal/store"
)

// MaxRetries is the hard cap on lifecycle retries per task. A task that
// fails or stalls this many times stays failed and needs operator
// intervention (reset) to run again.
const MaxRetries = 3

// ShouldRetry reports whether a failed task still has retry budget.
func ShouldRetry(task *store.Task) bool {
	return task.Status == store.StatusFailed && task.RetryCount < MaxRetries
}

// Exhausted reports whether a task has burned its full retry budget.
func Exhausted(task *store.Task) bool {
	return task.RetryCount >= MaxRetries
}

// Retry moves a failed task back to pending and bumps its retry count.
// Returns store.ErrConflict if the task is no longer failed.
func (s *Scheduler) Retry(ctx context.Context, taskID string) error {
	if err := s.store.ResetTask(ctx, taskID, store.StatusFailed, true); err != nil {
		return fmt.Errorf("retrying task %s: %w", taskID, err)
	}
	s.log.Info("task requeued for retry", "task_id", taskID)
	return nil
}

// NextRetryFor finds the agent's failed tasks with budget remaining and
// requeues the best candidate, returning its refreshed record. Returns
// nil when there is nothing to retry.
func (s *Scheduler) NextRetryFor(ctx context.Context, agentID string) (*store.Task, error) {
	failed, err := s.store.ListByStatus(ctx, store.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("listing failed tasks: %w", err)
	}

	for _, task := range failed {
		if task.AssignedAgentID != agentID || !ShouldRetry(task) {
			continue
		}
		if err := s.Retry(ctx, task.ID); err != nil {
			return nil, err
		}
		return s.store.GetTask(ctx, task.ID)
	}
	return nil, nil
}
