package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aristath/agentpool/internal/report"
	"github.com/aristath/agentpool/internal/store"
)

var statusDetailed bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backlog progress and agent health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := report.Build(ctx, st, cfg.AgentIDs(), cfg.StallThreshold.Std())
		if err != nil {
			return err
		}
		report.Render(os.Stdout, snap)

		if statusDetailed {
			tasks, err := st.ListTasks(ctx)
			if err != nil {
				return err
			}
			printTaskTable(tasks)
		}
		return nil
	},
}

// printTaskTable lists every task grouped by phase, in priority order.
func printTaskTable(tasks []*store.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].RoadmapPhase != tasks[j].RoadmapPhase {
			return tasks[i].RoadmapPhase < tasks[j].RoadmapPhase
		}
		return tasks[i].Priority < tasks[j].Priority
	})

	phase := ""
	for _, task := range tasks {
		if task.RoadmapPhase != phase {
			phase = task.RoadmapPhase
			fmt.Printf("\n%s\n", phase)
		}
		line := fmt.Sprintf("  [%-11s] %s  %s", task.Status, task.ID, task.Title)
		if task.AssignedAgentID != "" {
			line += fmt.Sprintf("  (%s)", task.AssignedAgentID)
		}
		if task.RetryCount > 0 {
			line += fmt.Sprintf("  retries: %d", task.RetryCount)
		}
		fmt.Println(line)
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusDetailed, "detailed", false, "list every task")
	rootCmd.AddCommand(statusCmd)
}
