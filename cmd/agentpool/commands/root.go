// Package commands implements the agentpool CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/agentpool/internal/config"
	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/store"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "agentpool",
	Short: "agentpool - a pool of LLM agents working through a task backlog",
	Long: `agentpool coordinates a pool of LLM-backed worker agents over a shared
task backlog. Tasks come from a markdown roadmap, move through a strict
lifecycle (pending, in_progress, completed, failed, blocked), and every
completed task publishes its changes as a pull request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// SetVersionInfo sets build-time version information.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"project config file (default .agentpool/config.json)")
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load("", configPath)
	}
	return config.LoadDefault()
}

// openStore opens the configured SQLite store.
func openStore(ctx context.Context, cfg *config.Config) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.DBPath, err)
	}
	return st, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewStderr(cfg.LogLevel)
}
