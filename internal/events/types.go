// Package events carries lifecycle notifications between the dispatcher,
// the execution pipeline, and observers such as the status reporter.
package events

import (
	"time"
)

// Event is implemented by every lifecycle notification.
type Event interface {
	EventType() string
	TaskID() string
}

// Topics group events for subscribers that only care about one slice of
// the lifecycle.
const (
	TopicTask  = "task"
	TopicSweep = "sweep"
)

const (
	EventTypeTaskClaimed    = "task.claimed"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeTaskBlocked    = "task.blocked"
	EventTypeTaskRetried    = "task.retried"
	EventTypeRetryExhausted = "task.retry_exhausted"
	EventTypeTaskStalled    = "sweep.task_stalled"
	EventTypeSweepDone      = "sweep.done"
)

// TaskClaimedEvent fires when an agent wins the claim on a pending task.
type TaskClaimedEvent struct {
	ID        string
	AgentID   string
	Title     string
	Timestamp time.Time
}

func (e TaskClaimedEvent) EventType() string { return EventTypeTaskClaimed }
func (e TaskClaimedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent fires when a task finishes with published artifacts.
type TaskCompletedEvent struct {
	ID        string
	AgentID   string
	Artifacts []string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent fires when a task fails, with the recorded reason.
type TaskFailedEvent struct {
	ID        string
	AgentID   string
	Reason    string
	Retryable bool
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent fires when a worker declares it cannot proceed.
type TaskBlockedEvent struct {
	ID        string
	AgentID   string
	Reason    string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// TaskRetriedEvent fires when a failed task is requeued.
type TaskRetriedEvent struct {
	ID         string
	RetryCount int
	Timestamp  time.Time
}

func (e TaskRetriedEvent) EventType() string { return EventTypeTaskRetried }
func (e TaskRetriedEvent) TaskID() string    { return e.ID }

// RetryExhaustedEvent fires when a task burns its last retry and needs
// operator attention.
type RetryExhaustedEvent struct {
	ID         string
	RetryCount int
	Timestamp  time.Time
}

func (e RetryExhaustedEvent) EventType() string { return EventTypeRetryExhausted }
func (e RetryExhaustedEvent) TaskID() string    { return e.ID }

// TaskStalledEvent fires when the sweep requeues an abandoned task.
type TaskStalledEvent struct {
	ID        string
	AgentID   string
	Timestamp time.Time
}

func (e TaskStalledEvent) EventType() string { return EventTypeTaskStalled }
func (e TaskStalledEvent) TaskID() string    { return e.ID }

// SweepDoneEvent summarizes a stall-recovery pass.
type SweepDoneEvent struct {
	Recovered []string
	Timestamp time.Time
}

func (e SweepDoneEvent) EventType() string { return EventTypeSweepDone }
func (e SweepDoneEvent) TaskID() string    { return "" }
