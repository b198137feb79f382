package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInMemoryBus_Subscribe_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received int32
	unsub := bus.Subscribe(func(_ context.Context, _ Event) {
		atomic.AddInt32(&received, 1)
	})

	bus.Publish(ctx, Event{Type: TypeTaskCreated, TaskID: "t1"})
	if got := atomic.LoadInt32(&received); got != 1 {
		t.Errorf("received = %d, want 1", got)
	}

	unsub()
	bus.Publish(ctx, Event{Type: TypeTaskCreated, TaskID: "t2"})
	if got := atomic.LoadInt32(&received); got != 1 {
		t.Errorf("received after unsub = %d, want 1", got)
	}
}

func TestInMemoryBus_StampsEvents(t *testing.T) {
	bus := NewInMemoryBus()
	bus.Publish(context.Background(), Event{Type: TypeAgentSpawned, AgentID: "a1"})

	hist := bus.History("", 0)
	if len(hist) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(hist))
	}
	if hist[0].ID == "" {
		t.Error("event ID is empty")
	}
	if hist[0].Timestamp.IsZero() {
		t.Error("event Timestamp is zero")
	}
}

func TestInMemoryBus_History_FilterAndOrder(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	bus.Publish(ctx, Event{Type: TypeTaskAssigned, AgentID: "a1", Message: "first"})
	bus.Publish(ctx, Event{Type: TypeTaskAssigned, AgentID: "a2", Message: "other"})
	bus.Publish(ctx, Event{Type: TypeTaskCompleted, AgentID: "a1", Message: "second"})
	bus.Publish(ctx, Event{Type: TypeToolExecuted, AgentID: "a1", Message: "third"})

	hist := bus.History("a1", 2)
	if len(hist) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(hist))
	}
	if hist[0].Message != "second" || hist[1].Message != "third" {
		t.Errorf("History = [%q %q], want [second third]", hist[0].Message, hist[1].Message)
	}

	if all := bus.History("", 0); len(all) != 4 {
		t.Errorf("len(History all) = %d, want 4", len(all))
	}
}

func TestInMemoryBus_HistoryCap(t *testing.T) {
	bus := NewInMemoryBus()
	bus.maxHist = 3
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		bus.Publish(ctx, Event{Type: TypeTaskUpdated})
	}
	if got := len(bus.History("", 0)); got != 3 {
		t.Errorf("len(History) = %d, want 3", got)
	}
}

func TestInMemoryBus_ConcurrentPublish(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var count int32
	bus.Subscribe(func(_ context.Context, _ Event) {
		atomic.AddInt32(&count, 1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(ctx, Event{Type: TypeTaskUpdated})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&count); got != 50 {
		t.Errorf("count = %d, want 50", got)
	}
}

func TestDiscard(t *testing.T) {
	Discard.Publish(context.Background(), Event{Type: TypeTaskCreated})
	Discard.Subscribe(func(context.Context, Event) {})()
	if got := Discard.History("", 10); got != nil {
		t.Errorf("History = %v, want nil", got)
	}
}
