package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aristath/agentpool/internal/logging"
)

// runner executes one command in a directory and returns its stdout.
// Swappable in tests.
type runner func(ctx context.Context, dir, name string, args ...string) (string, error)

func execRunner(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // isolate the subprocess tree for clean termination
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s failed: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return stdout.String(), nil
}

// GitHubPublisher commits changes to a branch and opens a pull request
// through the gh CLI. Each publication gets its own branch named after
// the agent and the current time, mirroring one-PR-per-task review flow.
type GitHubPublisher struct {
	workdir    string
	baseBranch string
	run        runner
	log        *logging.Logger
	now        func() time.Time
}

// NewGitHubPublisher creates a publisher operating on a local checkout at
// workdir, targeting baseBranch for pull requests.
func NewGitHubPublisher(workdir, baseBranch string, log *logging.Logger) *GitHubPublisher {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &GitHubPublisher{
		workdir:    workdir,
		baseBranch: baseBranch,
		run:        execRunner,
		log:        log.WithComponent("publisher"),
		now:        time.Now,
	}
}

// Publish writes the changes on a fresh branch, pushes it, and opens a
// PR. Returns the PR URL.
func (p *GitHubPublisher) Publish(ctx context.Context, req Request) (string, error) {
	if len(req.Changes) == 0 {
		return "", fmt.Errorf("nothing to publish")
	}

	branch := fmt.Sprintf("%s-%d", req.AgentID, p.now().Unix())

	if _, err := p.run(ctx, p.workdir, "git", "checkout", "-B", branch, p.baseBranch); err != nil {
		return "", fmt.Errorf("creating branch %s: %w", branch, err)
	}

	var paths []string
	for _, change := range req.Changes {
		clean, err := safeRelPath(change.Path)
		if err != nil {
			p.log.Warn("skipping disallowed path", "path", change.Path, "task_id", req.TaskID)
			continue
		}
		abs := filepath.Join(p.workdir, clean)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return "", fmt.Errorf("creating directory for %s: %w", clean, err)
		}
		if err := os.WriteFile(abs, []byte(change.Content), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", clean, err)
		}
		paths = append(paths, clean)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no publishable paths in request")
	}

	if _, err := p.run(ctx, p.workdir, "git", append([]string{"add", "--"}, paths...)...); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	if _, err := p.run(ctx, p.workdir, "git", "commit", "-m", req.Title); err != nil {
		return "", fmt.Errorf("committing changes: %w", err)
	}
	if _, err := p.run(ctx, p.workdir, "git", "push", "-u", "origin", branch); err != nil {
		return "", fmt.Errorf("pushing branch %s: %w", branch, err)
	}

	title := fmt.Sprintf("%s (by %s)", req.Title, req.AgentID)
	body := req.Body
	if body == "" {
		body = fmt.Sprintf("Changes made by agent %s", req.AgentID)
	}
	out, err := p.run(ctx, p.workdir, "gh", "pr", "create",
		"--title", title, "--body", body,
		"--base", p.baseBranch, "--head", branch)
	if err != nil {
		return "", fmt.Errorf("opening pull request: %w", err)
	}

	url := lastNonEmptyLine(out)
	p.log.Info("pull request opened", "task_id", req.TaskID, "agent_id", req.AgentID, "url", url)
	return url, nil
}

// safeRelPath normalizes a worker-supplied path and rejects anything that
// escapes the repository root.
func safeRelPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	clean := filepath.Clean(strings.TrimPrefix(p, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the repository", p)
	}
	return clean, nil
}

// lastNonEmptyLine extracts the PR URL from gh's output, which prints the
// URL on its final line.
func lastNonEmptyLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
