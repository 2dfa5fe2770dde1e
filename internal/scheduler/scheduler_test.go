package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/store"
)

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func saveTask(t *testing.T, s store.Store, task *store.Task) {
	t.Helper()
	if err := s.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("failed to save task %s: %v", task.ID, err)
	}
}

func TestIsEligibleNoDependencies(t *testing.T) {
	task := &store.Task{ID: "t1", Status: store.StatusPending}
	if !IsEligible(task, []*store.Task{task}) {
		t.Error("pending task without dependencies should be eligible")
	}
}

func TestIsEligibleRequiresCompletedDeps(t *testing.T) {
	dep := &store.Task{ID: "dep", Status: store.StatusInProgress}
	task := &store.Task{ID: "t1", Status: store.StatusPending, Dependencies: []string{"dep"}}
	all := []*store.Task{dep, task}

	if IsEligible(task, all) {
		t.Error("task should not be eligible while dependency is in progress")
	}

	dep.Status = store.StatusCompleted
	if !IsEligible(task, all) {
		t.Error("task should be eligible once dependency completes")
	}
}

func TestIsEligibleMissingDependency(t *testing.T) {
	task := &store.Task{ID: "t1", Status: store.StatusPending, Dependencies: []string{"ghost"}}
	if IsEligible(task, []*store.Task{task}) {
		t.Error("task with missing dependency should not be eligible")
	}
}

func TestIsEligibleNonPending(t *testing.T) {
	for _, status := range []store.TaskStatus{
		store.StatusInProgress, store.StatusCompleted, store.StatusFailed, store.StatusBlocked,
	} {
		task := &store.Task{ID: "t1", Status: status}
		if IsEligible(task, []*store.Task{task}) {
			t.Errorf("%s task should not be eligible", status)
		}
	}
}

func TestIsEligibleCycleStaysIneligible(t *testing.T) {
	a := &store.Task{ID: "a", Status: store.StatusPending, Dependencies: []string{"b"}}
	b := &store.Task{ID: "b", Status: store.StatusPending, Dependencies: []string{"a"}}
	all := []*store.Task{a, b}

	if IsEligible(a, all) || IsEligible(b, all) {
		t.Error("tasks in a dependency cycle should never become eligible")
	}
}

func TestNextTaskForPicksByPriority(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "low", AssignedAgentID: "dev-1", Status: store.StatusPending, Priority: 5})
	saveTask(t, s, &store.Task{ID: "high", AssignedAgentID: "dev-1", Status: store.StatusPending, Priority: 1})
	saveTask(t, s, &store.Task{ID: "other", AssignedAgentID: "dev-2", Status: store.StatusPending, Priority: 0})

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task == nil || task.ID != "high" {
		t.Fatalf("expected task 'high', got %+v", task)
	}
}

func TestNextTaskForIsIdempotentWithoutClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "a", AssignedAgentID: "dev-1", Status: store.StatusPending, Priority: 2})
	saveTask(t, s, &store.Task{ID: "b", AssignedAgentID: "dev-1", Status: store.StatusPending, Priority: 1})

	sched := New(s, time.Hour, logging.Nop())
	first, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	second, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if first == nil || second == nil || first.ID != second.ID {
		t.Fatalf("selection must not change without an intervening claim: %+v then %+v", first, second)
	}

	// Selection alone leaves the task unclaimed.
	task, err := s.GetTask(ctx, first.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.Status != store.StatusPending {
		t.Errorf("selected task should still be pending, got %s", task.Status)
	}
}

func TestNextTaskForPriorityTieBreaksByCreation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	saveTask(t, s, &store.Task{ID: "first", AssignedAgentID: "dev-1", Status: store.StatusPending,
		Priority: 3, CreatedAt: base, UpdatedAt: base})
	saveTask(t, s, &store.Task{ID: "second", AssignedAgentID: "dev-1", Status: store.StatusPending,
		Priority: 3, CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second)})

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task == nil || task.ID != "first" {
		t.Fatalf("expected earliest-created task on priority tie, got %+v", task)
	}
}

func TestNextTaskForSkipsBlockedByDependency(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "dep", AssignedAgentID: "dev-2", Status: store.StatusPending})
	saveTask(t, s, &store.Task{ID: "gated", AssignedAgentID: "dev-1", Status: store.StatusPending,
		Priority: 0, Dependencies: []string{"dep"}})
	saveTask(t, s, &store.Task{ID: "free", AssignedAgentID: "dev-1", Status: store.StatusPending, Priority: 9})

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task == nil || task.ID != "free" {
		t.Fatalf("expected dependency-gated task to be skipped, got %+v", task)
	}
}

func TestNextTaskForWorkingAgentGetsNothing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "t1", AssignedAgentID: "dev-1", Status: store.StatusPending})
	if err := s.SaveAgentState(ctx, &store.AgentState{
		AgentID: "dev-1", Status: store.AgentWorking, CurrentTaskID: "t1",
	}); err != nil {
		t.Fatalf("failed to save agent state: %v", err)
	}

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task != nil {
		t.Fatalf("working agent should get nothing, got %+v", task)
	}
}

func TestNextTaskForResumesCurrentTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "current", AssignedAgentID: "dev-1", Status: store.StatusInProgress})
	saveTask(t, s, &store.Task{ID: "waiting", AssignedAgentID: "dev-1", Status: store.StatusPending, Priority: 0})
	if err := s.SaveAgentState(ctx, &store.AgentState{
		AgentID: "dev-1", Status: store.AgentIdle, CurrentTaskID: "current",
	}); err != nil {
		t.Fatalf("failed to save agent state: %v", err)
	}

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task == nil || task.ID != "current" {
		t.Fatalf("expected in-progress task to be resumed, got %+v", task)
	}
}

func TestNextTaskForExpiresTimedOutTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour)
	saveTask(t, s, &store.Task{ID: "stuck", AssignedAgentID: "dev-1", Status: store.StatusInProgress,
		CreatedAt: stale, UpdatedAt: stale})
	saveTask(t, s, &store.Task{ID: "next", AssignedAgentID: "dev-1", Status: store.StatusPending})
	if err := s.SaveAgentState(ctx, &store.AgentState{
		AgentID: "dev-1", Status: store.AgentIdle, CurrentTaskID: "stuck",
	}); err != nil {
		t.Fatalf("failed to save agent state: %v", err)
	}

	sched := New(s, 10*time.Minute, logging.Nop())
	task, err := sched.NextTaskFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task == nil || task.ID != "next" {
		t.Fatalf("expected selection to fall through to fresh work, got %+v", task)
	}

	stuck, err := s.GetTask(ctx, "stuck")
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if stuck.Status != store.StatusFailed {
		t.Errorf("timed-out task should be failed, got %s", stuck.Status)
	}
	if stuck.Metadata["last_error"] != "task timeout exceeded" {
		t.Errorf("unexpected failure reason: %q", stuck.Metadata["last_error"])
	}

	state, err := s.GetAgentState(ctx, "dev-1")
	if err != nil {
		t.Fatalf("failed to reload agent state: %v", err)
	}
	if state.CurrentTaskID != "" || state.Status != store.AgentIdle {
		t.Errorf("agent should be released after timeout, got %+v", state)
	}
}

func TestNextTaskForNothingAvailable(t *testing.T) {
	s := testStore(t)

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextTaskFor(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("NextTaskFor failed: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil with no tasks, got %+v", task)
	}
}

func TestRetryPolicy(t *testing.T) {
	failed := &store.Task{ID: "t1", Status: store.StatusFailed, RetryCount: 2}
	if !ShouldRetry(failed) {
		t.Error("failed task under the cap should be retryable")
	}

	failed.RetryCount = MaxRetries
	if ShouldRetry(failed) {
		t.Error("task at the retry cap should not be retryable")
	}
	if !Exhausted(failed) {
		t.Error("task at the retry cap should be exhausted")
	}

	pending := &store.Task{ID: "t2", Status: store.StatusPending, RetryCount: 0}
	if ShouldRetry(pending) {
		t.Error("only failed tasks are retryable")
	}
}

func TestNextRetryForRequeuesFailedTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "t1", AssignedAgentID: "dev-1", Status: store.StatusFailed, RetryCount: 1})

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextRetryFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextRetryFor failed: %v", err)
	}
	if task == nil || task.ID != "t1" {
		t.Fatalf("expected failed task to be requeued, got %+v", task)
	}
	if task.Status != store.StatusPending {
		t.Errorf("requeued task should be pending, got %s", task.Status)
	}
	if task.RetryCount != 2 {
		t.Errorf("retry count should be bumped to 2, got %d", task.RetryCount)
	}
}

func TestNextRetryForRespectsCap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saveTask(t, s, &store.Task{ID: "t1", AssignedAgentID: "dev-1",
		Status: store.StatusFailed, RetryCount: MaxRetries})

	sched := New(s, time.Hour, logging.Nop())
	task, err := sched.NextRetryFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextRetryFor failed: %v", err)
	}
	if task != nil {
		t.Fatalf("exhausted task should not be requeued, got %+v", task)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Errorf("exhausted task should stay failed, got %s", got.Status)
	}
}

func TestValidateGraph(t *testing.T) {
	all := []*store.Task{
		{ID: "a", Status: store.StatusPending},
		{ID: "b", Status: store.StatusPending, Dependencies: []string{"a"}},
		{ID: "c", Status: store.StatusPending, Dependencies: []string{"a", "b"}},
	}

	order, err := ValidateGraph(all)
	if err != nil {
		t.Fatalf("ValidateGraph failed: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("topological order violated: %v", order)
	}
}

func TestValidateGraphDetectsCycle(t *testing.T) {
	all := []*store.Task{
		{ID: "a", Status: store.StatusPending, Dependencies: []string{"b"}},
		{ID: "b", Status: store.StatusPending, Dependencies: []string{"a"}},
	}
	if _, err := ValidateGraph(all); err == nil {
		t.Error("expected cycle to be reported")
	}
}

func TestValidateGraphDetectsDangling(t *testing.T) {
	all := []*store.Task{
		{ID: "a", Status: store.StatusPending, Dependencies: []string{"ghost"}},
	}
	if _, err := ValidateGraph(all); err == nil {
		t.Error("expected dangling dependency to be reported")
	}
}

func TestStallSweepRecoversAbandonedTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-30 * time.Minute)
	saveTask(t, s, &store.Task{ID: "abandoned", AssignedAgentID: "dev-1",
		Status: store.StatusInProgress, CreatedAt: stale, UpdatedAt: stale})
	saveTask(t, s, &store.Task{ID: "active", AssignedAgentID: "dev-2",
		Status: store.StatusInProgress})
	if err := s.SaveAgentState(ctx, &store.AgentState{
		AgentID: "dev-1", Status: store.AgentWorking, CurrentTaskID: "abandoned",
	}); err != nil {
		t.Fatalf("failed to save agent state: %v", err)
	}

	detector := NewStallDetector(s, 10*time.Minute, logging.Nop())
	recovered, err := detector.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(recovered) != 1 || recovered[0] != "abandoned" {
		t.Fatalf("expected only the abandoned task recovered, got %v", recovered)
	}

	task, err := s.GetTask(ctx, "abandoned")
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.Status != store.StatusPending {
		t.Errorf("recovered task should be pending, got %s", task.Status)
	}
	if task.RetryCount != 1 {
		t.Errorf("recovered task should have retry count 1, got %d", task.RetryCount)
	}

	active, err := s.GetTask(ctx, "active")
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if active.Status != store.StatusInProgress {
		t.Errorf("fresh task should be untouched, got %s", active.Status)
	}

	state, err := s.GetAgentState(ctx, "dev-1")
	if err != nil {
		t.Fatalf("failed to reload agent state: %v", err)
	}
	if state.Status != store.AgentIdle || state.CurrentTaskID != "" {
		t.Errorf("owning agent should be released, got %+v", state)
	}
}

func TestStallSweepRecoveryIsUncapped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-30 * time.Minute)
	saveTask(t, s, &store.Task{ID: "churner", AssignedAgentID: "dev-1",
		Status: store.StatusInProgress, RetryCount: MaxRetries + 2,
		CreatedAt: stale, UpdatedAt: stale})

	detector := NewStallDetector(s, 10*time.Minute, logging.Nop())
	recovered, err := detector.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(recovered) != 1 {
		t.Fatalf("stall recovery should not respect the retry cap, got %v", recovered)
	}

	task, err := s.GetTask(ctx, "churner")
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.Status != store.StatusPending {
		t.Errorf("task should be requeued despite high retry count, got %s", task.Status)
	}
	if task.RetryCount != MaxRetries+3 {
		t.Errorf("retry count should still be bumped, got %d", task.RetryCount)
	}
}
