package events

import (
	"github.com/aristath/agentpool/internal/logging"
)

// LogEvents drains a subscription channel, writing one structured log
// line per event. Run it in its own goroutine for the lifetime of the
// bus; it returns when the channel closes.
func LogEvents(ch <-chan Event, log *logging.Logger) {
	for ev := range ch {
		log.Info("lifecycle event", "event", ev.EventType(), "task_id", ev.TaskID())
	}
}
