package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/agentpool/internal/logging"
)

// LocalPublisher writes changes under an output directory. It is the
// degraded path when no GitHub remote is reachable; the artifact it
// returns points at the directory holding the written files.
type LocalPublisher struct {
	outputDir string
	log       *logging.Logger
	now       func() time.Time
}

// NewLocalPublisher creates a publisher writing under outputDir.
func NewLocalPublisher(outputDir string, log *logging.Logger) *LocalPublisher {
	return &LocalPublisher{
		outputDir: outputDir,
		log:       log.WithComponent("local_publisher"),
		now:       time.Now,
	}
}

// Publish writes each change under a per-publication subdirectory.
func (p *LocalPublisher) Publish(ctx context.Context, req Request) (string, error) {
	if len(req.Changes) == 0 {
		return "", fmt.Errorf("nothing to publish")
	}

	dir := filepath.Join(p.outputDir, fmt.Sprintf("%s-%d", req.AgentID, p.now().Unix()))

	written := 0
	for _, change := range req.Changes {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		clean, err := safeRelPath(change.Path)
		if err != nil {
			p.log.Warn("skipping disallowed path", "path", change.Path, "task_id", req.TaskID)
			continue
		}
		abs := filepath.Join(dir, clean)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return "", fmt.Errorf("creating directory for %s: %w", clean, err)
		}
		if err := os.WriteFile(abs, []byte(change.Content), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", clean, err)
		}
		written++
	}
	if written == 0 {
		return "", fmt.Errorf("no publishable paths in request")
	}

	p.log.Info("changes written locally", "task_id", req.TaskID, "dir", dir, "files", written)
	return "file://" + dir, nil
}
