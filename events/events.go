// Package events provides the in-process notification bus for board and
// agent loop state changes.
package events

import (
	"context"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeTaskCreated   Type = "task_created"
	TypeTaskUpdated   Type = "task_updated"
	TypeTaskAssigned  Type = "task_assigned"
	TypeTaskCompleted Type = "task_completed"
	TypeAgentSpawned  Type = "agent_spawned"
	TypeAgentUpdated  Type = "agent_updated"
	TypeAgentReset    Type = "agent_reset"
	TypeLoopStarted   Type = "loop_started"
	TypeLoopStopped   Type = "loop_stopped"
	TypeToolExecuted  Type = "tool_executed"
	TypeCycleFailed   Type = "cycle_failed"
	TypeLoopDetected  Type = "loop_detected"
)

// Event is a single state change notification.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	TaskID    string    `json:"taskId,omitempty"`
	AgentID   string    `json:"agentId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives published events.
type Handler func(ctx context.Context, ev Event)

// Bus fans events out to subscribers and keeps a bounded history.
type Bus interface {
	// Publish records ev and delivers it to every subscriber.
	Publish(ctx context.Context, ev Event)

	// Subscribe registers a handler for all events. Returns an unsubscribe function.
	Subscribe(handler Handler) (unsubscribe func())

	// History returns up to limit most recent events in chronological order,
	// optionally restricted to one agent.
	History(agentID string, limit int) []Event
}

// Discard is a Bus that drops every event.
var Discard Bus = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}
func (discard) Subscribe(Handler) func()       { return func() {} }
func (discard) History(string, int) []Event    { return nil }
