// Package publish turns a worker's file changes into reviewable
// artifacts. The primary path opens a GitHub pull request through the gh
// CLI; when that is unavailable the changes land in a local output
// directory instead so nothing a worker produced is ever dropped.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/agentpool/internal/logging"
)

// ErrDegraded wraps the primary publisher's error when the secondary
// produced the artifact instead. The artifact is real, but callers must
// not mistake it for a successful remote publish.
var ErrDegraded = errors.New("publish degraded to fallback")

// Change is one file to be written, path relative to the repository root.
type Change struct {
	Path    string
	Content string
}

// Request describes one publication: the agent responsible, the changes,
// and the PR title and body.
type Request struct {
	AgentID string
	TaskID  string
	Title   string
	Body    string
	Changes []Change
}

// Publisher publishes a set of file changes and returns an opaque
// artifact reference, typically a PR URL or a local path.
type Publisher interface {
	Publish(ctx context.Context, req Request) (string, error)
}

// Fallback tries the primary publisher and falls back to the secondary
// when it fails. A fallback publish returns the secondary's artifact
// together with an ErrDegraded wrapping the primary's error, so callers
// can tell a degraded local write from a real remote publish.
type Fallback struct {
	Primary   Publisher
	Secondary Publisher
	Log       *logging.Logger
}

// Publish implements Publisher.
func (f *Fallback) Publish(ctx context.Context, req Request) (string, error) {
	artifact, err := f.Primary.Publish(ctx, req)
	if err == nil {
		return artifact, nil
	}
	if f.Log != nil {
		f.Log.Warn("primary publish failed, trying fallback",
			"task_id", req.TaskID, "agent_id", req.AgentID, "error", err.Error())
	}

	artifact, ferr := f.Secondary.Publish(ctx, req)
	if ferr != nil {
		return "", fmt.Errorf("primary failed (%v), fallback failed: %w", err, ferr)
	}
	return artifact, fmt.Errorf("%w: %v", ErrDegraded, err)
}
