package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Load reads and merges configuration from global and project paths.
// Precedence, highest first: environment, project config, global config,
// defaults. Missing files are skipped; malformed JSON is an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault loads configuration from the conventional paths.
// Global: $XDG_CONFIG_HOME/agentpool/config.json
// Project: .agentpool/config.json relative to cwd.
func LoadDefault() (*Config, error) {
	globalPath := filepath.Join(xdg.ConfigHome, "agentpool", "config.json")
	projectPath := filepath.Join(".agentpool", "config.json")
	return Load(globalPath, projectPath)
}

// mergeConfigFile overlays a JSON config file onto the base config.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.DBPath != "" {
		base.DBPath = loaded.DBPath
	}
	if loaded.RoadmapPath != "" {
		base.RoadmapPath = loaded.RoadmapPath
	}
	if loaded.OutputDir != "" {
		base.OutputDir = loaded.OutputDir
	}
	if loaded.LogLevel != "" {
		base.LogLevel = loaded.LogLevel
	}
	if loaded.AnthropicKey != "" {
		base.AnthropicKey = loaded.AnthropicKey
	}
	if loaded.TaskTimeout != 0 {
		base.TaskTimeout = loaded.TaskTimeout
	}
	if loaded.StallThreshold != 0 {
		base.StallThreshold = loaded.StallThreshold
	}
	if loaded.Interval != 0 {
		base.Interval = loaded.Interval
	}
	if loaded.MaxParallel != 0 {
		base.MaxParallel = loaded.MaxParallel
	}
	if loaded.FallbackAgent != "" {
		base.FallbackAgent = loaded.FallbackAgent
	}
	if loaded.GitHub.Repo != "" {
		base.GitHub.Repo = loaded.GitHub.Repo
	}
	if loaded.GitHub.Workdir != "" {
		base.GitHub.Workdir = loaded.GitHub.Workdir
	}
	if loaded.GitHub.BaseBranch != "" {
		base.GitHub.BaseBranch = loaded.GitHub.BaseBranch
	}

	// A file that declares agents replaces the roster entirely; merging
	// roles from different files invites half-configured agents.
	if len(loaded.Agents) > 0 {
		base.Agents = loaded.Agents
	}
	return nil
}

// applyEnv applies environment overrides. Only secrets and the publish
// target are environment-configurable; everything else lives in files.
func applyEnv(cfg *Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.AnthropicKey = key
	}
	if repo := os.Getenv("GITHUB_REPO"); repo != "" {
		cfg.GitHub.Repo = repo
	}
}
