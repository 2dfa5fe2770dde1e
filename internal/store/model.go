package store

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusBlocked    TaskStatus = "blocked"
)

// Terminal reports whether the status ends the task's lifecycle.
// Completed is terminal; failed and blocked can be reset to pending.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted
}

// ParseStatus converts a string to a TaskStatus, rejecting unknown values.
func ParseStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusBlocked:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Agent state values. Status is free text in storage but these are the
// two values the scheduler acts on.
const (
	AgentIdle    = "idle"
	AgentWorking = "working"
)

// Task is a unit of work with acceptance criteria, lifecycle status, and
// optional dependencies on other tasks.
type Task struct {
	ID                 string
	Title              string
	Description        string
	AcceptanceCriteria []string
	Priority           int    // Lower = more urgent; ties broken by creation order
	AssignedAgentID    string // Weak reference, lookup only
	Status             TaskStatus
	Dependencies       []string // Task IDs that must complete first
	CreatedAt          time.Time
	UpdatedAt          time.Time // Stamped on every status mutation
	RetryCount         int
	EstimatedHours     float64
	ActualHours        float64
	RoadmapPhase       string
	Artifacts          []string          // Opaque references (PR URLs, paths)
	Metadata           map[string]string // Free-form, never interpreted by the state machine

	// Seq is the storage insertion order, used as the stable tiebreaker
	// when created_at collides. Populated on read, ignored on write.
	Seq int64
}

// Clone returns a deep copy so callers can't mutate shared state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	cp.Artifacts = append([]string(nil), t.Artifacts...)
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// AgentState tracks what one agent identity is doing. Created lazily on
// first reference; never deleted.
type AgentState struct {
	AgentID        string
	Status         string // "idle" or "working"
	CurrentTaskID  string // Task currently claimed, empty when idle
	LastActivity   time.Time
	CompletedTasks []string // Append-only history

	// memory is free-form context carried between invocations. It is kept
	// unexported so its untyped nature stays behind the accessors below.
	memory map[string]string
}

// Memory returns the value stored under key, or "" if absent.
func (s *AgentState) Memory(key string) string {
	return s.memory[key]
}

// SetMemory stores a value in the agent's scratch space.
func (s *AgentState) SetMemory(key, value string) {
	if s.memory == nil {
		s.memory = make(map[string]string)
	}
	s.memory[key] = value
}

// Agent is the immutable profile for one worker role. Profiles come from
// the configured roster at startup and are never mutated at runtime.
type Agent struct {
	ID              string
	Name            string
	Role            string
	Specializations []string
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemPrompt    string
}
