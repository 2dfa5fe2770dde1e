package events

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aristath/agentpool/internal/logging"
)

func TestLogEventsWritesEachEvent(t *testing.T) {
	bus := NewBus()
	ch := bus.SubscribeAll(8)

	bus.Publish(TopicTask, TaskClaimedEvent{ID: "task-1", AgentID: "dev-1", Timestamp: time.Now()})
	bus.Publish(TopicSweep, SweepDoneEvent{Recovered: []string{"task-2"}, Timestamp: time.Now()})
	bus.Close()

	var buf bytes.Buffer
	LogEvents(ch, logging.New(&buf, "info"))

	out := buf.String()
	if !strings.Contains(out, EventTypeTaskClaimed) || !strings.Contains(out, "task-1") {
		t.Errorf("claim event not logged: %s", out)
	}
	if !strings.Contains(out, EventTypeSweepDone) {
		t.Errorf("sweep event not logged: %s", out)
	}
}
