// Package config loads the agent pool configuration: the agent roster,
// lifecycle timing, and the credentials for the worker and publisher
// integrations. Global and project files merge over built-in defaults,
// and a few environment variables override everything.
package config

import (
	"sort"
	"time"

	"github.com/aristath/agentpool/internal/store"
)

// AgentConfig defines one worker role in the roster.
type AgentConfig struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Specializations []string `json:"specializations,omitempty"`
	Model           string   `json:"model,omitempty"`
	Temperature     float64  `json:"temperature,omitempty"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
}

// GitHubConfig holds the publishing target.
type GitHubConfig struct {
	Repo       string `json:"repo,omitempty"`     // owner/name, informational
	Workdir    string `json:"workdir,omitempty"`  // Local checkout the publisher operates in
	BaseBranch string `json:"base_branch,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	DBPath       string `json:"db_path,omitempty"`
	RoadmapPath  string `json:"roadmap_path,omitempty"`
	OutputDir    string `json:"output_dir,omitempty"` // Local publish fallback target
	LogLevel     string `json:"log_level,omitempty"`
	AnthropicKey string `json:"anthropic_api_key,omitempty"`

	TaskTimeout    Duration `json:"task_timeout,omitempty"`
	StallThreshold Duration `json:"stall_threshold,omitempty"`
	Interval       Duration `json:"interval,omitempty"` // Daemon cycle interval
	MaxParallel    int      `json:"max_parallel,omitempty"`

	FallbackAgent string                 `json:"fallback_agent,omitempty"` // Gets unmatched roadmap tasks
	GitHub        GitHubConfig           `json:"github,omitempty"`
	Agents        map[string]AgentConfig `json:"agents"`
}

// Roster converts the configured agents into profiles keyed by ID.
func (c *Config) Roster() map[string]*store.Agent {
	roster := make(map[string]*store.Agent, len(c.Agents))
	for id, ac := range c.Agents {
		roster[id] = &store.Agent{
			ID:              id,
			Name:            ac.Name,
			Role:            ac.Role,
			Specializations: ac.Specializations,
			Model:           ac.Model,
			Temperature:     ac.Temperature,
			MaxTokens:       ac.MaxTokens,
			SystemPrompt:    ac.SystemPrompt,
		}
	}
	return roster
}

// AgentIDs returns the roster's IDs in stable order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Duration is a time.Duration that marshals as a string like "45m".
type Duration time.Duration

// UnmarshalJSON accepts "1h30m" style strings.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON renders the duration as a quoted string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
