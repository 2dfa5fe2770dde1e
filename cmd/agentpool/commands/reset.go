package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/agentpool/internal/store"
)

var (
	resetFromStatus string
	resetNewStatus  string
	resetTaskID     string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Move failed or blocked tasks back to pending",
	Long: `Requeues tasks so the next dispatch cycle can pick them up again.
Without --task-id every task in the given status is reset. Completed
tasks are never reset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		from, err := store.ParseStatus(resetFromStatus)
		if err != nil {
			return err
		}
		if from != store.StatusFailed && from != store.StatusBlocked {
			return fmt.Errorf("only failed or blocked tasks can be reset, got %q", from)
		}
		to, err := store.ParseStatus(resetNewStatus)
		if err != nil {
			return err
		}
		if to != store.StatusPending {
			return fmt.Errorf("tasks can only be reset to pending, got %q", to)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var targets []*store.Task
		if resetTaskID != "" {
			task, err := st.GetTask(ctx, resetTaskID)
			if err != nil {
				return err
			}
			targets = append(targets, task)
		} else {
			targets, err = st.ListByStatus(ctx, from)
			if err != nil {
				return err
			}
		}

		reset := 0
		for _, task := range targets {
			err := st.ResetTask(ctx, task.ID, from, false)
			if errors.Is(err, store.ErrConflict) {
				color.New(color.FgYellow).Printf("⚠ %s is not %s, skipped\n", task.ID, from)
				continue
			}
			if err != nil {
				return err
			}
			reset++
		}

		color.New(color.FgGreen).Printf("✓ Reset %d %s task(s) to pending\n", reset, from)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetFromStatus, "status", "failed", "status to reset from (failed or blocked)")
	resetCmd.Flags().StringVar(&resetNewStatus, "new-status", "pending", "status to reset to (only pending is valid)")
	resetCmd.Flags().StringVar(&resetTaskID, "task-id", "", "reset a single task")
	rootCmd.AddCommand(resetCmd)
}
