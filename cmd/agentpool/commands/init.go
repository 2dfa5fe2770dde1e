package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/agentpool/internal/config"
	"github.com/aristath/agentpool/internal/roadmap"
	"github.com/aristath/agentpool/internal/scheduler"
	"github.com/aristath/agentpool/internal/store"
)

var initRoadmapPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the task database and seed it from the roadmap",
	Long: `Parses the roadmap markdown, assigns tasks to agents by
specialization, validates the dependency graph, and seeds the backlog.
Running init again is safe: existing tasks keep their state and only the
roster assignment of new tasks changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cfgPath := configPath
		if cfgPath == "" {
			cfgPath = filepath.Join(".agentpool", "config.json")
		}
		wroteConfig, err := writeStarterConfig(cfg, cfgPath)
		if err != nil {
			return err
		}

		path := initRoadmapPath
		if path == "" {
			path = cfg.RoadmapPath
		}

		tasks, err := roadmap.ParseFile(path)
		if err != nil {
			return err
		}

		roster := cfg.Roster()
		agentList := make([]*store.Agent, 0, len(roster))
		for _, id := range cfg.AgentIDs() {
			agentList = append(agentList, roster[id])
		}
		roadmap.Assign(tasks, agentList, cfg.FallbackAgent)

		if _, err := scheduler.ValidateGraph(tasks); err != nil {
			return fmt.Errorf("roadmap produced an invalid task graph: %w", err)
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		existing, err := st.ListTasks(ctx)
		if err != nil {
			return err
		}
		seenTitles := make(map[string]bool, len(existing))
		for _, t := range existing {
			seenTitles[t.RoadmapPhase+"\x00"+t.Title] = true
		}

		seeded := 0
		for _, task := range tasks {
			if seenTitles[task.RoadmapPhase+"\x00"+task.Title] {
				continue
			}
			if err := st.SaveTask(ctx, task); err != nil {
				return fmt.Errorf("seeding task %q: %w", task.Title, err)
			}
			seeded++
		}

		green := color.New(color.FgGreen)
		green.Printf("✓ Seeded %d tasks from %s (%d already present)\n", seeded, path, len(tasks)-seeded)
		fmt.Printf("  roster: %d agents, fallback %s\n", len(roster), cfg.FallbackAgent)
		if wroteConfig {
			fmt.Printf("  wrote starter config %s\n", cfgPath)
		}
		return nil
	},
}

// writeStarterConfig persists the effective configuration on first init
// so the project's settings are visible and editable. An existing file
// is never touched.
func writeStarterConfig(cfg *config.Config, path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking config %s: %w", path, err)
	}
	if err := config.Save(cfg, path); err != nil {
		return false, err
	}
	return true, nil
}

func init() {
	initCmd.Flags().StringVar(&initRoadmapPath, "roadmap", "", "roadmap file (default from config)")
	rootCmd.AddCommand(initCmd)
}
