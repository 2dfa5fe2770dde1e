// Package dispatcher drives the agent pool: one cycle sweeps for stalled
// work and then gives every agent a chance to run a task, with bounded
// parallelism across agents. The daemon mode repeats cycles on an
// interval until the context is cancelled.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/agentpool/internal/coordinator"
	"github.com/aristath/agentpool/internal/events"
	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/scheduler"
)

// CycleResult aggregates one dispatch cycle.
type CycleResult struct {
	Recovered []string               // Tasks requeued by the stall sweep
	Outcomes  []*coordinator.Outcome // One per agent that found work
}

// Dispatcher runs agents against the task backlog.
type Dispatcher struct {
	coord    *coordinator.Coordinator
	detector *scheduler.StallDetector
	bus      *events.Bus
	agentIDs []string
	parallel int
	log      *logging.Logger
}

// New creates a Dispatcher. parallel bounds how many agents execute at
// once; values below 1 default to 4.
func New(coord *coordinator.Coordinator, detector *scheduler.StallDetector,
	bus *events.Bus, agentIDs []string, parallel int, log *logging.Logger) *Dispatcher {
	if parallel < 1 {
		parallel = 4
	}
	return &Dispatcher{
		coord:    coord,
		detector: detector,
		bus:      bus,
		agentIDs: agentIDs,
		parallel: parallel,
		log:      log.WithComponent("dispatcher"),
	}
}

// RunOnce performs a single dispatch cycle. One agent's failure never
// aborts the others; only a cancelled context stops the cycle early.
func (d *Dispatcher) RunOnce(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{}

	recovered, err := d.detector.Sweep(ctx)
	if err != nil {
		d.log.Error("stall sweep failed", "error", err.Error())
	}
	result.Recovered = recovered
	for _, taskID := range recovered {
		d.bus.Publish(events.TopicSweep, events.TaskStalledEvent{ID: taskID, Timestamp: time.Now()})
	}
	if len(recovered) > 0 {
		d.bus.Publish(events.TopicSweep, events.SweepDoneEvent{Recovered: recovered, Timestamp: time.Now()})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)

	for _, agentID := range d.agentIDs {
		id := agentID
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome, err := d.coord.Run(gctx, id, "")
			if err != nil {
				// Recorded and swallowed so the rest of the pool keeps going.
				d.log.Error("agent run failed", "agent_id", id, "error", err.Error())
				return nil
			}
			if outcome != nil {
				mu.Lock()
				result.Outcomes = append(result.Outcomes, outcome)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// RunDaemon runs dispatch cycles every interval until ctx is cancelled.
// The in-flight cycle finishes before the daemon returns.
func (d *Dispatcher) RunDaemon(ctx context.Context, interval time.Duration) error {
	d.log.Info("daemon started", "interval", interval.String(), "agents", len(d.agentIDs))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("dispatch cycle failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			d.log.Info("daemon stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
