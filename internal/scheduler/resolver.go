package scheduler

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/agentpool/internal/store"
)

// IsEligible reports whether a task may be claimed: it must be pending and
// every dependency must exist in the snapshot with status completed. A
// missing dependency makes the task ineligible, never an error. Since this
// is a flat scan over the snapshot, a cycle in the graph simply keeps its
// members ineligible forever instead of crashing or recursing.
//
// Callers must pass a fresh snapshot every time; dependency completion
// changes too often for caching to be safe.
func IsEligible(task *store.Task, all []*store.Task) bool {
	if task.Status != store.StatusPending {
		return false
	}
	if len(task.Dependencies) == 0 {
		return true
	}

	byID := make(map[string]*store.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	for _, depID := range task.Dependencies {
		dep, ok := byID[depID]
		if !ok || dep.Status != store.StatusCompleted {
			return false
		}
	}
	return true
}

// EligibleFor returns the eligible tasks assigned to the given agent,
// preserving the snapshot's order.
func EligibleFor(agentID string, all []*store.Task) []*store.Task {
	var eligible []*store.Task
	for _, task := range all {
		if task.AssignedAgentID != agentID {
			continue
		}
		if IsEligible(task, all) {
			eligible = append(eligible, task)
		}
	}
	return eligible
}

// ValidateGraph checks the full task set for dangling dependencies and
// cycles, returning a topological order when the graph is sound. This is
// operator diagnostics only: eligibility never depends on it.
func ValidateGraph(all []*store.Task) ([]string, error) {
	byID := make(map[string]*store.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	var dangling []string
	for _, task := range all {
		for _, depID := range task.Dependencies {
			if _, ok := byID[depID]; !ok {
				dangling = append(dangling, fmt.Sprintf("%s -> %s", task.ID, depID))
			}
		}
	}
	if len(dangling) > 0 {
		return nil, fmt.Errorf("dangling dependencies: %s", strings.Join(dangling, ", "))
	}

	var edges []toposort.Edge
	for _, task := range all {
		if len(task.Dependencies) == 0 {
			// Edge from nil ensures isolated tasks appear in the order.
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}
		for _, depID := range task.Dependencies {
			edges = append(edges, toposort.Edge{depID, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}
