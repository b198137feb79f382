package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistory = 1000

// InMemoryBus is a thread-safe in-process event bus.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	history  []Event
	maxHist  int
}

// NewInMemoryBus creates an InMemoryBus with a 1000-event history cap.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[int]Handler),
		maxHist:  defaultHistory,
	}
}

// Publish stamps ev with an ID and timestamp when missing, appends it to the
// history and invokes every handler outside the lock.
func (b *InMemoryBus) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}
	targets := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		targets = append(targets, h)
	}
	b.mu.Unlock()

	for _, h := range targets {
		h(ctx, ev)
	}
}

// Subscribe registers handler for every subsequent event.
func (b *InMemoryBus) Subscribe(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// History returns the most recent limit events, oldest first. An empty
// agentID matches every event; limit <= 0 means no limit.
func (b *InMemoryBus) History(agentID string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for i := len(b.history) - 1; i >= 0; i-- {
		ev := b.history[i]
		if agentID != "" && ev.AgentID != agentID {
			continue
		}
		result = append(result, ev)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result
}
