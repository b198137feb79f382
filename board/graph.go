package board

import (
	"errors"

	"github.com/GoCodeAlone/puppeteer/task"
)

// ErrCycleDetected is reported when a dependency edge would make a task
// transitively depend on itself.
var ErrCycleDetected = errors.New("circular dependency detected")

// reachesLocked reports whether target is reachable from start by following
// dependency edges. Unknown ids are treated as leaves. Caller holds b.mu.
func (b *Board) reachesLocked(start, target string) bool {
	visited := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		if t, ok := b.tasks[id]; ok {
			stack = append(stack, t.Dependencies...)
		}
	}
	return false
}

// readyLocked reports whether every dependency of t resolves to a DONE task.
// A dependency id that no longer resolves blocks the task. Caller holds b.mu.
func (b *Board) readyLocked(t *task.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := b.tasks[dep]
		if !ok || d.Status != task.StatusDone {
			return false
		}
	}
	return true
}
