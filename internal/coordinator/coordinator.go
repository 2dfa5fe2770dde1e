// Package coordinator runs one agent's full task attempt: pick or claim a
// task, invoke the worker, interpret the response, publish the changes,
// and land the task in its final state. Every exit path releases the
// agent so a crash mid-attempt never wedges the pool.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/agentpool/internal/events"
	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/publish"
	"github.com/aristath/agentpool/internal/scheduler"
	"github.com/aristath/agentpool/internal/store"
	"github.com/aristath/agentpool/internal/worker"
)

// Failure reasons recorded in task metadata. Reporting keys off these.
const (
	ReasonInvocationFailed = "worker invocation failed"
	ReasonUnparseable      = "unparseable response"
	ReasonNoChanges        = "no file changes provided"
	ReasonPublishFailed    = "publishing failed"
)

// Outcome summarizes one task attempt.
type Outcome struct {
	TaskID   string
	AgentID  string
	Status   store.TaskStatus
	Reason   string // Set for failed and blocked outcomes
	Artifact string // PR URL or local path, when anything was published
	Degraded bool   // Artifact came from the fallback publisher
}

// Coordinator wires the scheduler, the worker, and the publisher into a
// single execution pipeline.
type Coordinator struct {
	store     store.Store
	scheduler *scheduler.Scheduler
	invoker   worker.Invoker
	publisher publish.Publisher
	bus       *events.Bus
	agents    map[string]*store.Agent
	locks     *agentLocks
	log       *logging.Logger
}

// New creates a Coordinator. agents is the configured roster keyed by
// agent ID.
func New(st store.Store, sched *scheduler.Scheduler, invoker worker.Invoker,
	publisher publish.Publisher, bus *events.Bus, agents map[string]*store.Agent,
	log *logging.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		scheduler: sched,
		invoker:   invoker,
		publisher: publisher,
		bus:       bus,
		agents:    agents,
		locks:     newAgentLocks(),
		log:       log.WithComponent("coordinator"),
	}
}

// Run executes one task attempt for the agent. With an empty taskID the
// scheduler picks the task; failing that, a failed task with retry budget
// is requeued and run. Returns (nil, nil) when there is nothing to do.
func (c *Coordinator) Run(ctx context.Context, agentID, taskID string) (*Outcome, error) {
	release := c.locks.acquire(agentID)
	defer release()

	agent, ok := c.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", agentID)
	}

	task, err := c.resolveTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	state, err := c.store.GetOrCreateAgentState(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent state: %w", err)
	}

	// A pending task needs a claim; an in_progress task assigned to this
	// agent is a resume and is already owned.
	switch task.Status {
	case store.StatusPending:
		if err := c.store.Claim(ctx, task.ID, agentID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				c.log.Debug("lost claim race", "task_id", task.ID, "agent_id", agentID)
				return nil, nil
			}
			return nil, fmt.Errorf("claiming task %s: %w", task.ID, err)
		}
	case store.StatusInProgress:
		if task.AssignedAgentID != agentID {
			return nil, fmt.Errorf("task %s is owned by %s", task.ID, task.AssignedAgentID)
		}
		// A resume re-marks the agent as working, same as a fresh claim,
		// so concurrent observers see the truth while the attempt runs.
		state.Status = store.AgentWorking
		state.CurrentTaskID = task.ID
		state.LastActivity = time.Now()
		if err := c.store.SaveAgentState(ctx, state); err != nil {
			return nil, fmt.Errorf("marking agent %s working: %w", agentID, err)
		}
	default:
		return nil, fmt.Errorf("task %s is %s, not runnable", task.ID, task.Status)
	}

	c.bus.Publish(events.TopicTask, events.TaskClaimedEvent{
		ID: task.ID, AgentID: agentID, Title: task.Title, Timestamp: time.Now(),
	})
	c.log.Info("task attempt started", "task_id", task.ID, "agent_id", agentID, "title", task.Title)

	outcome := c.execute(ctx, agent, task, state)

	// The agent is always released; where its task pointer lands depends
	// on the outcome. Completed and failed sever it, blocked and
	// in-progress keep it so the link survives for inspection and resume.
	if err := c.releaseAgent(ctx, state, task.ID, outcome); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// resolveTask picks the task to run: the explicit one, the scheduler's
// choice, or a requeued retry.
func (c *Coordinator) resolveTask(ctx context.Context, agentID, taskID string) (*store.Task, error) {
	if taskID != "" {
		task, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("loading task %s: %w", taskID, err)
		}
		return task, nil
	}

	task, err := c.scheduler.NextTaskFor(ctx, agentID)
	if err != nil || task != nil {
		return task, err
	}

	task, err = c.scheduler.NextRetryFor(ctx, agentID)
	if err != nil || task == nil {
		return nil, err
	}
	c.bus.Publish(events.TopicTask, events.TaskRetriedEvent{
		ID: task.ID, RetryCount: task.RetryCount, Timestamp: time.Now(),
	})
	return task, nil
}

// execute runs the invoke/parse/publish pipeline and lands the task in
// its final state. It never returns an error; every problem becomes a
// failed outcome so the lifecycle stays consistent.
func (c *Coordinator) execute(ctx context.Context, agent *store.Agent, task *store.Task, state *store.AgentState) *Outcome {
	started := time.Now()

	prompt := worker.BuildPrompt(task, state)
	raw, err := c.invoker.Invoke(ctx, agent, prompt)
	if err != nil {
		c.log.Error("worker invocation failed", "task_id", task.ID, "agent_id", agent.ID, "error", err.Error())
		return c.fail(ctx, task, agent.ID, ReasonInvocationFailed)
	}

	resp, err := worker.ParseResponse(raw)
	if err != nil {
		c.log.Warn("worker response not parseable", "task_id", task.ID, "agent_id", agent.ID, "error", err.Error())
		return c.fail(ctx, task, agent.ID, ReasonUnparseable)
	}

	// Every attempt must move code or docs. A response without usable
	// changes fails even when the worker declares completion.
	if !resp.HasChanges() {
		c.log.Warn("worker provided no file changes", "task_id", task.ID, "agent_id", agent.ID)
		return c.fail(ctx, task, agent.ID, ReasonNoChanges)
	}

	var changes []publish.Change
	for _, fc := range resp.UsableChanges() {
		changes = append(changes, publish.Change{Path: fc.Path, Content: fc.Content})
	}
	title := resp.Message.Summary
	if title == "" {
		title = fmt.Sprintf("Update for task %s", task.Title)
	}
	artifact, err := c.publisher.Publish(ctx, publish.Request{
		AgentID: agent.ID,
		TaskID:  task.ID,
		Title:   title,
		Body:    resp.Reasoning,
		Changes: changes,
	})
	degraded := errors.Is(err, publish.ErrDegraded)
	if err != nil && !degraded {
		c.log.Error("publishing failed", "task_id", task.ID, "agent_id", agent.ID, "error", err.Error())
		return c.fail(ctx, task, agent.ID, ReasonPublishFailed)
	}
	if degraded {
		c.log.Warn("remote publish failed, keeping degraded artifact",
			"task_id", task.ID, "agent_id", agent.ID, "artifact", artifact, "error", err.Error())
		c.recordDegraded(ctx, task, err)
	}

	// Reasoning carries forward so the next task builds on this one.
	if resp.Reasoning != "" {
		state.SetMemory("context", resp.Reasoning)
	}

	hours := time.Since(started).Hours()

	switch {
	case worker.CompletionDeclared(raw):
		if err := c.store.CompleteTask(ctx, task.ID, []string{artifact}, hours); err != nil {
			c.log.Error("completion transition failed", "task_id", task.ID, "error", err.Error())
			return c.fail(ctx, task, agent.ID, ReasonInvocationFailed)
		}
		c.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			ID: task.ID, AgentID: agent.ID, Artifacts: []string{artifact},
			Duration: time.Since(started), Timestamp: time.Now(),
		})
		c.log.Info("task completed", "task_id", task.ID, "agent_id", agent.ID, "artifact", artifact)
		return &Outcome{TaskID: task.ID, AgentID: agent.ID, Status: store.StatusCompleted, Artifact: artifact, Degraded: degraded}

	case worker.BlockerDeclared(raw):
		reason := strings.TrimSpace(resp.Message.Blockers)
		if reason == "" {
			reason = "worker reported a blocker"
		}
		c.recordArtifact(ctx, task, artifact)
		if err := c.store.BlockTask(ctx, task.ID, reason); err != nil {
			c.log.Error("block transition failed", "task_id", task.ID, "error", err.Error())
		}
		c.bus.Publish(events.TopicTask, events.TaskBlockedEvent{
			ID: task.ID, AgentID: agent.ID, Reason: reason, Timestamp: time.Now(),
		})
		c.log.Warn("task blocked", "task_id", task.ID, "agent_id", agent.ID, "reason", reason)
		return &Outcome{TaskID: task.ID, AgentID: agent.ID, Status: store.StatusBlocked, Reason: reason, Artifact: artifact, Degraded: degraded}

	default:
		// No marker either way: the task stays in progress and the agent
		// resumes it on the next cycle.
		c.recordArtifact(ctx, task, artifact)
		c.log.Info("task still in progress", "task_id", task.ID, "agent_id", agent.ID, "artifact", artifact)
		return &Outcome{TaskID: task.ID, AgentID: agent.ID, Status: store.StatusInProgress, Artifact: artifact, Degraded: degraded}
	}
}

// fail lands a task in the failed state with a recorded reason.
func (c *Coordinator) fail(ctx context.Context, task *store.Task, agentID, reason string) *Outcome {
	if err := c.store.FailTask(ctx, task.ID, reason); err != nil && !errors.Is(err, store.ErrConflict) {
		c.log.Error("failure transition failed", "task_id", task.ID, "error", err.Error())
	}
	retryable := task.RetryCount < scheduler.MaxRetries
	c.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID: task.ID, AgentID: agentID, Reason: reason, Retryable: retryable, Timestamp: time.Now(),
	})
	if !retryable {
		c.bus.Publish(events.TopicTask, events.RetryExhaustedEvent{
			ID: task.ID, RetryCount: task.RetryCount, Timestamp: time.Now(),
		})
	}
	return &Outcome{TaskID: task.ID, AgentID: agentID, Status: store.StatusFailed, Reason: reason}
}

// recordDegraded notes in task metadata that the artifact came from the
// fallback publisher, so reporting can tell a degraded local write from
// a real pull request.
func (c *Coordinator) recordDegraded(ctx context.Context, task *store.Task, cause error) {
	fresh, err := c.store.GetTask(ctx, task.ID)
	if err != nil {
		c.log.Error("degraded publish record failed", "task_id", task.ID, "error", err.Error())
		return
	}
	if fresh.Metadata == nil {
		fresh.Metadata = make(map[string]string)
	}
	fresh.Metadata["publish_degraded"] = cause.Error()
	if err := c.store.SaveTask(ctx, fresh); err != nil {
		c.log.Error("degraded publish record failed", "task_id", task.ID, "error", err.Error())
	}
}

// recordArtifact appends an artifact to a task that is not completing,
// so blocked and still-in-progress attempts keep what they published.
func (c *Coordinator) recordArtifact(ctx context.Context, task *store.Task, artifact string) {
	fresh, err := c.store.GetTask(ctx, task.ID)
	if err != nil {
		c.log.Error("artifact record failed", "task_id", task.ID, "error", err.Error())
		return
	}
	fresh.Artifacts = append(fresh.Artifacts, artifact)
	if err := c.store.SaveTask(ctx, fresh); err != nil {
		c.log.Error("artifact record failed", "task_id", task.ID, "error", err.Error())
	}
}

// releaseAgent idles the agent and saves its updated memory and history.
// The state carries any memory mutations made during execution.
func (c *Coordinator) releaseAgent(ctx context.Context, state *store.AgentState, taskID string, outcome *Outcome) error {
	state.Status = store.AgentIdle
	state.LastActivity = time.Now()
	switch outcome.Status {
	case store.StatusCompleted:
		state.CurrentTaskID = ""
		state.CompletedTasks = append(state.CompletedTasks, taskID)
	case store.StatusFailed:
		state.CurrentTaskID = ""
	default:
		state.CurrentTaskID = taskID
	}

	if err := c.store.SaveAgentState(ctx, state); err != nil {
		return fmt.Errorf("releasing agent %s: %w", state.AgentID, err)
	}
	return nil
}
