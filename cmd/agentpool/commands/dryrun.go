package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/agentpool/internal/store"
)

// dryRunInvoker stands in for the live API. It always completes the task
// with a single notes file, so the full claim/publish/complete pipeline
// can be exercised without credentials.
type dryRunInvoker struct{}

func (dryRunInvoker) Invoke(ctx context.Context, agent *store.Agent, prompt string) (string, error) {
	stamp := time.Now().Format(time.RFC3339)
	return "```yaml\n" +
		"message:\n" +
		"  summary: Dry-run placeholder change\n" +
		"file_changes:\n" +
		"  - path: docs/dry-run/" + agent.ID + ".md\n" +
		"    content: " + fmt.Sprintf("Dry run by %s at %s.", agent.ID, stamp) + "\n" +
		"reasoning: Dry-run invocation, no model was consulted.\n" +
		"```\n\nTASK COMPLETED\n", nil
}

func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", s)
	}
	return d, nil
}
