package config

import (
	"time"
)

// DefaultConfig returns the built-in configuration: a six-role roster
// and the lifecycle timing the pool runs with out of the box.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         ".agentpool/tasks.db",
		RoadmapPath:    "docs/ROADMAP.md",
		OutputDir:      ".agentpool/output",
		LogLevel:       "info",
		TaskTimeout:    Duration(2 * time.Hour),
		StallThreshold: Duration(45 * time.Minute),
		Interval:       Duration(5 * time.Minute),
		MaxParallel:    4,
		FallbackAgent:  "tech-lead-1",
		GitHub: GitHubConfig{
			BaseBranch: "main",
		},
		Agents: map[string]AgentConfig{
			"backend-dev-1": {
				Name:            "Backend Developer",
				Role:            "backend",
				Specializations: []string{"api", "database", "backend", "sql"},
				Model:           "claude-sonnet-4-5",
				Temperature:     0.2,
				MaxTokens:       8192,
				SystemPrompt:    "You are a senior backend developer. You implement APIs, schemas, and server-side logic.",
			},
			"frontend-dev-1": {
				Name:            "Frontend Developer",
				Role:            "frontend",
				Specializations: []string{"ui", "frontend", "react"},
				Model:           "claude-sonnet-4-5",
				Temperature:     0.3,
				MaxTokens:       8192,
				SystemPrompt:    "You are a senior frontend developer. You build user interfaces and client-side logic.",
			},
			"data-scientist-1": {
				Name:            "Data Scientist",
				Role:            "data",
				Specializations: []string{"data", "model", "prediction"},
				Model:           "claude-sonnet-4-5",
				Temperature:     0.2,
				MaxTokens:       8192,
				SystemPrompt:    "You are a data scientist. You build data pipelines, models, and analyses.",
			},
			"devops-eng-1": {
				Name:            "DevOps Engineer",
				Role:            "devops",
				Specializations: []string{"devops", "deployment", "docker", "ci"},
				Model:           "claude-sonnet-4-5",
				Temperature:     0.1,
				MaxTokens:       8192,
				SystemPrompt:    "You are a DevOps engineer. You handle infrastructure, deployment, and automation.",
			},
			"qa-eng-1": {
				Name:            "QA Engineer",
				Role:            "qa",
				Specializations: []string{"test", "quality", "validation"},
				Model:           "claude-sonnet-4-5",
				Temperature:     0.1,
				MaxTokens:       8192,
				SystemPrompt:    "You are a QA engineer. You write tests and validate functionality.",
			},
			"tech-lead-1": {
				Name:            "Tech Lead",
				Role:            "lead",
				Specializations: []string{"architecture", "design", "review"},
				Model:           "claude-sonnet-4-5",
				Temperature:     0.2,
				MaxTokens:       8192,
				SystemPrompt:    "You are the tech lead. You handle architecture, design, and anything without a clear owner.",
			},
		},
	}
}
