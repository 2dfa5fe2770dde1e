package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/agentpool/internal/coordinator"
	"github.com/aristath/agentpool/internal/dispatcher"
	"github.com/aristath/agentpool/internal/events"
	"github.com/aristath/agentpool/internal/publish"
	"github.com/aristath/agentpool/internal/scheduler"
	"github.com/aristath/agentpool/internal/store"
	"github.com/aristath/agentpool/internal/worker"
)

var (
	runDaemon   bool
	runInterval string
	runAgent    string
	runTask     string
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch agents against the task backlog",
	Long: `Runs one dispatch cycle: sweep for stalled tasks, then give every
agent a chance to claim and execute a task. With --daemon the cycle
repeats on an interval until interrupted. With --agent only that agent
runs, optionally against an explicit --task.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !runDryRun && cfg.AnthropicKey == "" {
			return fmt.Errorf("no Anthropic API key configured (set ANTHROPIC_API_KEY or use --dry-run)")
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		log := newLogger(cfg)
		bus := events.NewBus()
		defer bus.Close()
		go events.LogEvents(bus.SubscribeAll(0), log)

		var invoker worker.Invoker
		if runDryRun {
			invoker = dryRunInvoker{}
		} else {
			invoker = worker.NewResilientInvoker(
				worker.NewAnthropicInvoker(cfg.AnthropicKey),
				worker.NewBreakerRegistry(log),
				worker.DefaultRetryConfig(),
			)
		}

		var publisher publish.Publisher = publish.NewLocalPublisher(cfg.OutputDir, log)
		if cfg.GitHub.Workdir != "" {
			publisher = &publish.Fallback{
				Primary:   publish.NewGitHubPublisher(cfg.GitHub.Workdir, cfg.GitHub.BaseBranch, log),
				Secondary: publisher,
				Log:       log,
			}
		}

		sched := scheduler.New(st, cfg.TaskTimeout.Std(), log)
		coord := coordinator.New(st, sched, invoker, publisher, bus, cfg.Roster(), log)

		if runAgent != "" {
			outcome, err := coord.Run(ctx, runAgent, runTask)
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		}

		detector := scheduler.NewStallDetector(st, cfg.StallThreshold.Std(), log)
		disp := dispatcher.New(coord, detector, bus, cfg.AgentIDs(), cfg.MaxParallel, log)

		if runDaemon {
			interval := cfg.Interval.Std()
			if runInterval != "" {
				if interval, err = parseInterval(runInterval); err != nil {
					return err
				}
			}
			err := disp.RunDaemon(ctx, interval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		result, err := disp.RunOnce(ctx)
		if err != nil {
			return err
		}
		for _, taskID := range result.Recovered {
			color.New(color.FgYellow).Printf("⚠ requeued stalled task %s\n", taskID)
		}
		if len(result.Outcomes) == 0 {
			fmt.Println("Nothing to do.")
			return nil
		}
		for _, outcome := range result.Outcomes {
			printOutcome(outcome)
		}
		return nil
	},
}

func printOutcome(outcome *coordinator.Outcome) {
	if outcome == nil {
		fmt.Println("Nothing to do.")
		return
	}
	switch outcome.Status {
	case store.StatusCompleted:
		color.New(color.FgGreen).Printf("✓ %s completed %s", outcome.AgentID, outcome.TaskID)
		if outcome.Artifact != "" {
			fmt.Printf("  %s", outcome.Artifact)
		}
		if outcome.Degraded {
			color.New(color.FgYellow).Printf("  (remote publish failed, local fallback)")
		}
		fmt.Println()
	case store.StatusBlocked:
		color.New(color.FgYellow).Printf("⚠ %s blocked on %s: %s\n", outcome.AgentID, outcome.TaskID, outcome.Reason)
	case store.StatusFailed:
		color.New(color.FgRed).Printf("✗ %s failed %s: %s\n", outcome.AgentID, outcome.TaskID, outcome.Reason)
	default:
		fmt.Printf("… %s still working on %s\n", outcome.AgentID, outcome.TaskID)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runDaemon, "daemon", false, "run continuously")
	runCmd.Flags().StringVar(&runInterval, "interval", "", "daemon cycle interval (default from config)")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "run a single agent")
	runCmd.Flags().StringVar(&runTask, "task", "", "explicit task for --agent")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "use a canned worker instead of the live API")
	rootCmd.AddCommand(runCmd)
}
