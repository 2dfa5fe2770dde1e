package worker

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Response is the structured payload extracted from a worker's reply.
type Response struct {
	Message     Message      `yaml:"message"`
	FileChanges []FileChange `yaml:"file_changes"`
	Reasoning   string       `yaml:"reasoning"`
}

// Message is the worker's status block.
type Message struct {
	Summary     string `yaml:"summary"`
	Progress    string `yaml:"progress"`
	Blockers    string `yaml:"blockers"`
	NextActions string `yaml:"next_actions"`
}

// FileChange is one file the worker wants written.
type FileChange struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// HasChanges reports whether the response carries at least one usable
// file change. Entries missing a path or content don't count.
func (r *Response) HasChanges() bool {
	for _, c := range r.FileChanges {
		if c.Path != "" && c.Content != "" {
			return true
		}
	}
	return false
}

// UsableChanges returns the file changes with both path and content set.
func (r *Response) UsableChanges() []FileChange {
	var out []FileChange
	for _, c := range r.FileChanges {
		if c.Path != "" && c.Content != "" {
			out = append(out, c)
		}
	}
	return out
}

// ParseResponse extracts the structured YAML from a raw worker reply.
// A fenced yaml block is preferred; without one the whole reply is tried
// as YAML. Returns an error when nothing parseable is found, which the
// caller reports distinctly from a parsed-but-empty response.
func ParseResponse(raw string) (*Response, error) {
	section := raw
	if idx := strings.Index(raw, "```yaml"); idx >= 0 {
		section = raw[idx+len("```yaml"):]
		if end := strings.Index(section, "```"); end >= 0 {
			section = section[:end]
		}
	}

	var resp Response
	if err := yaml.Unmarshal([]byte(section), &resp); err != nil {
		return nil, fmt.Errorf("response is not valid YAML: %w", err)
	}
	if resp.Message == (Message{}) && len(resp.FileChanges) == 0 && resp.Reasoning == "" {
		return nil, fmt.Errorf("response contains no recognized fields")
	}
	return &resp, nil
}

// CompletionDeclared reports whether the worker stated the task is done.
func CompletionDeclared(raw string) bool {
	return strings.Contains(raw, "TASK COMPLETED")
}

// BlockerDeclared reports whether the worker stated it cannot proceed.
func BlockerDeclared(raw string) bool {
	return strings.Contains(raw, "BLOCKED") || strings.Contains(raw, "BLOCKER")
}
