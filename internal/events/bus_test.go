package events

import (
	"fmt"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskClaimedEvent{
		ID:        "task-1",
		AgentID:   "backend-dev-1",
		Title:     "Implement projections endpoint",
		Timestamp: time.Now(),
	})

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got %q", received.TaskID())
		}
		if received.EventType() != EventTypeTaskClaimed {
			t.Errorf("expected event type %q, got %q", EventTypeTaskClaimed, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestMultipleSubscribersReceiveSameEvent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{
		ID:        "task-2",
		AgentID:   "backend-dev-1",
		Artifacts: []string{"https://example.com/pr/2"},
		Timestamp: time.Now(),
	})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task-2" {
				t.Errorf("subscriber %d: expected task ID 'task-2', got %q", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicTask, TaskRetriedEvent{
				ID:        fmt.Sprintf("task-%d", i),
				Timestamp: time.Now(),
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked on a full subscriber channel")
	}

	select {
	case received := <-ch:
		if received == nil {
			t.Error("received nil event")
		}
	default:
		t.Error("expected at least one buffered event")
	}
}

func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 10)

	bus.Close()

	received := 0
	for range ch {
		received++
	}
	if received != 0 {
		t.Errorf("expected 0 events after close, got %d", received)
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 10)
	bus.Close()

	bus.Publish(TopicTask, TaskClaimedEvent{ID: "task-1", Timestamp: time.Now()})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after bus was closed")
		}
	default:
	}
}

func TestTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	sweepCh := bus.Subscribe(TopicSweep, 10)

	bus.Publish(TopicTask, TaskFailedEvent{ID: "task-1", Reason: "worker invocation failed", Timestamp: time.Now()})
	bus.Publish(TopicSweep, SweepDoneEvent{Recovered: []string{"task-9"}, Timestamp: time.Now()})

	select {
	case received := <-taskCh:
		if received.EventType() != EventTypeTaskFailed {
			t.Errorf("task channel: expected failure event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("task channel: timeout waiting for event")
	}

	select {
	case received := <-sweepCh:
		if received.EventType() != EventTypeSweepDone {
			t.Errorf("sweep channel: expected sweep event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("sweep channel: timeout waiting for event")
	}

	select {
	case <-taskCh:
		t.Error("task channel received an event from another topic")
	case <-time.After(10 * time.Millisecond):
	}
	select {
	case <-sweepCh:
		t.Error("sweep channel received an event from another topic")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSubscribeAllSpansTopics(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(20)

	bus.Publish(TopicTask, TaskBlockedEvent{ID: "task-1", Reason: "missing API credentials", Timestamp: time.Now()})
	bus.Publish(TopicSweep, TaskStalledEvent{ID: "task-2", AgentID: "backend-dev-1", Timestamp: time.Now()})

	receivedTypes := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case received := <-allCh:
			receivedTypes[received.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}

	if !receivedTypes[EventTypeTaskBlocked] {
		t.Error("all-topic subscriber missed the task event")
	}
	if !receivedTypes[EventTypeTaskStalled] {
		t.Error("all-topic subscriber missed the sweep event")
	}
}
