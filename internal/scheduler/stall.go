package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/store"
)

// StallDetector recovers in_progress tasks whose agent stopped making
// progress, typically because its process died mid-task. Stalled tasks go
// back to pending with a bumped retry count; the bump records churn but,
// unlike failure retries, recovery is not capped. A task may stall any
// number of times and still be re-run.
type StallDetector struct {
	store     store.Store
	threshold time.Duration
	log       *logging.Logger
}

// NewStallDetector creates a detector that treats any in_progress task
// untouched for longer than threshold as stalled.
func NewStallDetector(st store.Store, threshold time.Duration, log *logging.Logger) *StallDetector {
	return &StallDetector{
		store:     st,
		threshold: threshold,
		log:       log.WithComponent("stall_detector"),
	}
}

// Sweep scans in_progress tasks and requeues any that have stalled,
// releasing the owning agent. Returns the IDs of the tasks it recovered.
// A concurrent status change loses the race cleanly: the guarded reset
// reports a conflict and the sweep moves on.
func (d *StallDetector) Sweep(ctx context.Context) ([]string, error) {
	inProgress, err := d.store.ListByStatus(ctx, store.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("listing in-progress tasks: %w", err)
	}

	var recovered []string
	for _, task := range inProgress {
		age := time.Since(task.UpdatedAt)
		if age <= d.threshold {
			continue
		}

		err := d.store.ResetTask(ctx, task.ID, store.StatusInProgress, true)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("resetting stalled task %s: %w", task.ID, err)
		}

		d.log.Warn("stalled task requeued",
			"task_id", task.ID, "agent_id", task.AssignedAgentID, "idle", age.Round(time.Second).String())
		recovered = append(recovered, task.ID)

		if task.AssignedAgentID != "" {
			if err := d.releaseAgent(ctx, task.AssignedAgentID, task.ID); err != nil {
				return recovered, err
			}
		}
	}
	return recovered, nil
}

// releaseAgent idles an agent still pointing at the recovered task.
func (d *StallDetector) releaseAgent(ctx context.Context, agentID, taskID string) error {
	state, err := d.store.GetAgentState(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading agent %s during sweep: %w", agentID, err)
	}
	if state.CurrentTaskID != taskID {
		return nil
	}

	state.Status = store.AgentIdle
	state.CurrentTaskID = ""
	state.LastActivity = time.Now()
	if err := d.store.SaveAgentState(ctx, state); err != nil {
		return fmt.Errorf("releasing agent %s during sweep: %w", agentID, err)
	}
	return nil
}
