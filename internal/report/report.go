// Package report builds progress snapshots of the task backlog and
// renders them for operators.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/aristath/agentpool/internal/scheduler"
	"github.com/aristath/agentpool/internal/store"
)

// Snapshot is a point-in-time view of backlog health.
type Snapshot struct {
	Total      int
	ByStatus   map[store.TaskStatus]int
	Completion float64 // 0..100

	Stalled          []*store.Task // In progress past the stall threshold
	RetryExhausted   []*store.Task // Failed with no retry budget left
	Blocked          []*store.Task
	MissingArtifacts []*store.Task // Completed without any artifact

	Agents    []*store.AgentState
	TakenAt   time.Time
	Threshold time.Duration
}

// Build assembles a snapshot from the store. stallThreshold classifies
// in_progress tasks as stalled; it does not mutate anything.
func Build(ctx context.Context, st store.Store, agentIDs []string, stallThreshold time.Duration) (*Snapshot, error) {
	tasks, err := st.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	snap := &Snapshot{
		Total:     len(tasks),
		ByStatus:  make(map[store.TaskStatus]int),
		TakenAt:   time.Now(),
		Threshold: stallThreshold,
	}

	for _, task := range tasks {
		snap.ByStatus[task.Status]++
		switch task.Status {
		case store.StatusInProgress:
			if time.Since(task.UpdatedAt) > stallThreshold {
				snap.Stalled = append(snap.Stalled, task)
			}
		case store.StatusFailed:
			if scheduler.Exhausted(task) {
				snap.RetryExhausted = append(snap.RetryExhausted, task)
			}
		case store.StatusBlocked:
			snap.Blocked = append(snap.Blocked, task)
		case store.StatusCompleted:
			if len(task.Artifacts) == 0 {
				snap.MissingArtifacts = append(snap.MissingArtifacts, task)
			}
		}
	}

	if snap.Total > 0 {
		snap.Completion = float64(snap.ByStatus[store.StatusCompleted]) / float64(snap.Total) * 100
	}

	for _, id := range agentIDs {
		state, err := st.GetAgentState(ctx, id)
		if err != nil {
			continue // Never-seen agents just don't appear
		}
		snap.Agents = append(snap.Agents, state)
	}
	sort.Slice(snap.Agents, func(i, j int) bool {
		return snap.Agents[i].AgentID < snap.Agents[j].AgentID
	})

	return snap, nil
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Render writes a human-readable snapshot.
func Render(w io.Writer, snap *Snapshot) {
	cyan.Fprintf(w, "Backlog: %d tasks, %.1f%% complete\n", snap.Total, snap.Completion)
	fmt.Fprintf(w, "  pending: %d  in_progress: %d  completed: %d  failed: %d  blocked: %d\n",
		snap.ByStatus[store.StatusPending],
		snap.ByStatus[store.StatusInProgress],
		snap.ByStatus[store.StatusCompleted],
		snap.ByStatus[store.StatusFailed],
		snap.ByStatus[store.StatusBlocked])

	if len(snap.Stalled) > 0 {
		yellow.Fprintf(w, "\nStalled (no progress for %s):\n", snap.Threshold)
		for _, task := range snap.Stalled {
			fmt.Fprintf(w, "  %s  %s (agent %s, idle %s)\n",
				task.ID, task.Title, task.AssignedAgentID,
				time.Since(task.UpdatedAt).Round(time.Minute))
		}
	}

	if len(snap.RetryExhausted) > 0 {
		red.Fprintf(w, "\nRetry budget exhausted:\n")
		for _, task := range snap.RetryExhausted {
			fmt.Fprintf(w, "  %s  %s (%s)\n", task.ID, task.Title, task.Metadata["last_error"])
		}
	}

	if len(snap.Blocked) > 0 {
		yellow.Fprintf(w, "\nBlocked:\n")
		for _, task := range snap.Blocked {
			fmt.Fprintf(w, "  %s  %s (%s)\n", task.ID, task.Title, task.Metadata["last_error"])
		}
	}

	if len(snap.MissingArtifacts) > 0 {
		yellow.Fprintf(w, "\nCompleted without artifacts:\n")
		for _, task := range snap.MissingArtifacts {
			fmt.Fprintf(w, "  %s  %s\n", task.ID, task.Title)
		}
	}

	if len(snap.Agents) > 0 {
		fmt.Fprintln(w)
		for _, agent := range snap.Agents {
			line := fmt.Sprintf("  %s  %s", agent.AgentID, agent.Status)
			if agent.CurrentTaskID != "" {
				line += fmt.Sprintf(" (task %s)", agent.CurrentTaskID)
			}
			line += fmt.Sprintf("  completed: %d", len(agent.CompletedTasks))
			if agent.Status == store.AgentWorking {
				yellow.Fprintln(w, line)
			} else {
				green.Fprintln(w, line)
			}
		}
	}
}
