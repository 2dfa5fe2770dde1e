// Package worker turns tasks into LLM invocations and interprets the
// structured responses that come back. The coordinator owns what happens
// to the task afterwards; this package only knows how to ask and how to
// read the answer.
package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/agentpool/internal/store"
)

// Invoker sends one prompt to a model on behalf of an agent profile and
// returns the raw text response.
type Invoker interface {
	Invoke(ctx context.Context, agent *store.Agent, prompt string) (string, error)
}

// responseContract is the structured format every worker is instructed to
// reply in. The parser in this package is its counterpart.
const responseContract = "```yaml" + `
message:
  summary: One-line status
  progress: "% complete vs. phase"
  blockers: |
    - item 1 (or null)
  next_actions: |
    - action 1
file_changes:
  - path: path/to/file
    content: |
      // File content
reasoning: |
  Detailed reasoning about your approach and decisions
` + "```"

// BuildPrompt renders the user message for a task. Prior context from the
// agent's memory is appended so consecutive tasks build on each other.
func BuildPrompt(task *store.Task, state *store.AgentState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task: %s\n\n", task.Title)
	fmt.Fprintf(&b, "## Description\n%s\n\n", task.Description)

	b.WriteString("## Acceptance Criteria\n")
	for _, criterion := range task.AcceptanceCriteria {
		fmt.Fprintf(&b, "- %s\n", criterion)
	}
	b.WriteString("\n")

	deps := "None"
	if len(task.Dependencies) > 0 {
		deps = strings.Join(task.Dependencies, ", ")
	}
	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "- Task ID: %s\n", task.ID)
	fmt.Fprintf(&b, "- Priority: %d\n", task.Priority)
	fmt.Fprintf(&b, "- Roadmap Phase: %s\n", task.RoadmapPhase)
	fmt.Fprintf(&b, "- Dependencies: %s\n\n", deps)

	b.WriteString(`## Requirements
1. You MUST include file_changes in your response with at least one file change
2. File changes MUST include both path and content
3. Failure to provide file changes will result in task failure
4. Every task requires code or documentation changes

Please provide your response in the following structured format:
`)
	b.WriteString(responseContract)
	b.WriteString("\n\nWhen you're done, clearly state \"TASK COMPLETED\" or indicate what's blocking you from completing the task.\n")

	if prior := state.Memory("context"); prior != "" {
		fmt.Fprintf(&b, "\n## Previous context\n%s\n", prior)
	}
	return b.String()
}
