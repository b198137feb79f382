// Package task defines the task model tracked on the board.
package task

import (
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Valid reports whether s is one of the known task statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority determines scheduling order among ready tasks.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ParsePriority maps s (case-insensitive) to a Priority. The empty string
// yields PriorityMedium; anything else unknown reports ok=false.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case "", PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityLow:
		return PriorityLow, true
	}
	return PriorityMedium, false
}

// Weight returns the numeric scheduling weight. Unknown priorities weigh
// the same as PriorityMedium.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Task is a unit of work for an agent.
type Task struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          Status    `json:"status"`
	StatusMessage   string    `json:"statusMessage,omitempty"`
	Priority        Priority  `json:"priority"`
	Dependencies    []string  `json:"dependencies"`
	Subtasks        []string  `json:"subtasks"`
	ParentID        string    `json:"parentId,omitempty"`
	AssignedAgentID string    `json:"assignedAgentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of t so callers cannot alias the owner's slices.
func (t Task) Clone() Task {
	t.Dependencies = cloneIDs(t.Dependencies)
	t.Subtasks = cloneIDs(t.Subtasks)
	return t
}

// DependsOn reports whether id is a direct dependency of t.
func (t Task) DependsOn(id string) bool {
	return slices.Contains(t.Dependencies, id)
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}
