package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestSaveAndGetTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{
		ID:                 "task-1",
		Title:              "Implement projections endpoint",
		Description:        "Add the projections API route",
		AcceptanceCriteria: []string{"endpoint returns 200", "response is validated"},
		Priority:           2,
		AssignedAgentID:    "backend-dev-1",
		Status:             StatusPending,
		Dependencies:       []string{"task-0"},
		RetryCount:         1,
		EstimatedHours:     3.5,
		RoadmapPhase:       "P1. Core API",
		Artifacts:          []string{"https://example.com/pr/1"},
		Metadata:           map[string]string{"source": "roadmap"},
	}

	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	got, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}

	if got.Title != task.Title {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, task.Title)
	}
	if got.Status != StatusPending {
		t.Errorf("Status mismatch: got %v, want %v", got.Status, StatusPending)
	}
	if len(got.AcceptanceCriteria) != 2 {
		t.Errorf("expected 2 acceptance criteria, got %d", len(got.AcceptanceCriteria))
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "task-0" {
		t.Errorf("Dependencies mismatch: got %v", got.Dependencies)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount mismatch: got %d, want 1", got.RetryCount)
	}
	if got.Metadata["source"] != "roadmap" {
		t.Errorf("Metadata mismatch: got %v", got.Metadata)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be stamped on save")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetTask(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionGuards(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Title: "T1", Status: StatusPending}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	if err := s.Transition(ctx, "t1", StatusPending, StatusInProgress); err != nil {
		t.Fatalf("pending -> in_progress should succeed: %v", err)
	}

	// Second transition from pending must conflict: the task moved on.
	err := s.Transition(ctx, "t1", StatusPending, StatusInProgress)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Unknown task is not found, not a conflict.
	err = s.Transition(ctx, "nope", StatusPending, StatusInProgress)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionStampsUpdatedAt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Title: "T1", Status: StatusPending}
	task.CreatedAt = time.Now().Add(-time.Hour)
	task.UpdatedAt = task.CreatedAt
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	if err := s.Transition(ctx, "t1", StatusPending, StatusInProgress); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if !got.UpdatedAt.After(task.UpdatedAt) {
		t.Errorf("UpdatedAt should advance on transition: %v", got.UpdatedAt)
	}
}

func TestClaimAtMostOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Title: "T1", Status: StatusPending, AssignedAgentID: "a1"}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	if err := s.Claim(ctx, "t1", "a1"); err != nil {
		t.Fatalf("first claim should succeed: %v", err)
	}

	err := s.Claim(ctx, "t1", "a2")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second claim should conflict, got %v", err)
	}

	// Agent state was created and flipped to working by the claim.
	state, err := s.GetAgentState(ctx, "a1")
	if err != nil {
		t.Fatalf("failed to get agent state: %v", err)
	}
	if state.Status != AgentWorking {
		t.Errorf("agent should be working, got %q", state.Status)
	}
	if state.CurrentTaskID != "t1" {
		t.Errorf("agent current task should be t1, got %q", state.CurrentTaskID)
	}
}

func TestClaimConcurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Title: "T1", Status: StatusPending}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Claim(ctx, "t1", "agent")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, ErrConflict) {
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("exactly one claimer should win, got %d", won)
	}
}

func TestCompleteTaskAppendsArtifacts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{
		ID:        "t1",
		Title:     "T1",
		Status:    StatusInProgress,
		Artifacts: []string{"https://example.com/pr/1"},
	}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	if err := s.CompleteTask(ctx, "t1", []string{"https://example.com/pr/2"}, 1.5); err != nil {
		t.Fatalf("failed to complete task: %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status should be completed, got %v", got.Status)
	}
	if len(got.Artifacts) != 2 {
		t.Fatalf("existing artifacts must be retained: got %v", got.Artifacts)
	}
	if got.ActualHours != 1.5 {
		t.Errorf("ActualHours mismatch: got %v", got.ActualHours)
	}

	// Completed is terminal for normal transitions.
	err = s.CompleteTask(ctx, "t1", []string{"x"}, 0)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("completing twice should conflict, got %v", err)
	}
}

func TestFailTaskRecordsReason(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Title: "T1", Status: StatusInProgress}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	if err := s.FailTask(ctx, "t1", "no file changes provided"); err != nil {
		t.Fatalf("failed to fail task: %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("status should be failed, got %v", got.Status)
	}
	if got.Metadata["last_error"] != "no file changes provided" {
		t.Errorf("failure reason not recorded: %v", got.Metadata)
	}
}

func TestResetTaskBumpsRetry(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Title: "T1", Status: StatusFailed, RetryCount: 1}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	if err := s.ResetTask(ctx, "t1", StatusFailed, true); err != nil {
		t.Fatalf("failed to reset task: %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status should be pending, got %v", got.Status)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry count should be 2, got %d", got.RetryCount)
	}
}

func TestListAssignedOrdering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	tasks := []*Task{
		{ID: "t-low", Title: "Low", Status: StatusPending, AssignedAgentID: "a1", Priority: 5, CreatedAt: base, UpdatedAt: base},
		{ID: "t-high", Title: "High", Status: StatusPending, AssignedAgentID: "a1", Priority: 1, CreatedAt: base.Add(time.Minute), UpdatedAt: base},
		{ID: "t-tie", Title: "Tie", Status: StatusPending, AssignedAgentID: "a1", Priority: 1, CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base},
		{ID: "t-other", Title: "Other agent", Status: StatusPending, AssignedAgentID: "a2", Priority: 0, CreatedAt: base, UpdatedAt: base},
	}
	for _, task := range tasks {
		if err := s.SaveTask(ctx, task); err != nil {
			t.Fatalf("failed to save %s: %v", task.ID, err)
		}
	}

	got, err := s.ListAssigned(ctx, "a1", StatusPending)
	if err != nil {
		t.Fatalf("failed to list assigned: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 tasks for a1, got %d", len(got))
	}
	if got[0].ID != "t-high" || got[1].ID != "t-tie" || got[2].ID != "t-low" {
		t.Errorf("wrong order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestAgentStateLazyCreate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.GetAgentState(ctx, "new-agent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unseen agent, got %v", err)
	}

	state, err := s.GetOrCreateAgentState(ctx, "new-agent")
	if err != nil {
		t.Fatalf("failed to create agent state: %v", err)
	}
	if state.Status != AgentIdle {
		t.Errorf("new agent should be idle, got %q", state.Status)
	}

	// Second call returns the persisted record.
	again, err := s.GetOrCreateAgentState(ctx, "new-agent")
	if err != nil {
		t.Fatalf("failed to get agent state: %v", err)
	}
	if again.AgentID != "new-agent" {
		t.Errorf("agent ID mismatch: %q", again.AgentID)
	}
}

func TestAgentMemoryRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	state, err := s.GetOrCreateAgentState(ctx, "a1")
	if err != nil {
		t.Fatalf("failed to create agent state: %v", err)
	}

	state.SetMemory("context", "previous reasoning about the projections endpoint")
	state.CompletedTasks = append(state.CompletedTasks, "t1")
	if err := s.SaveAgentState(ctx, state); err != nil {
		t.Fatalf("failed to save agent state: %v", err)
	}

	got, err := s.GetAgentState(ctx, "a1")
	if err != nil {
		t.Fatalf("failed to get agent state: %v", err)
	}
	if got.Memory("context") == "" {
		t.Error("memory should survive a round trip")
	}
	if len(got.CompletedTasks) != 1 || got.CompletedTasks[0] != "t1" {
		t.Errorf("completed tasks mismatch: %v", got.CompletedTasks)
	}
}
