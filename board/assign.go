package board

import (
	"slices"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/task"
)

// AssignNextTask hands the highest-priority ready task to an IDLE agent.
// Candidates are TODO tasks in creation order, stable-sorted by descending
// weight; the first one that can be assigned wins. The scan and the
// assignment happen under one lock acquisition, so concurrent callers never
// receive the same task.
func (b *Board) AssignNextTask(agentID string) (task.Task, bool) {
	b.mu.Lock()
	a, ok := b.agents[agentID]
	if !ok || a.Status != agent.StatusIdle {
		b.mu.Unlock()
		return task.Task{}, false
	}

	var candidates []*task.Task
	for _, id := range b.taskOrder {
		if t := b.tasks[id]; t.Status == task.StatusTodo {
			candidates = append(candidates, t)
		}
	}
	slices.SortStableFunc(candidates, func(x, y *task.Task) int {
		return y.Priority.Weight() - x.Priority.Weight()
	})

	var picked *task.Task
	for _, t := range candidates {
		if b.assignLocked(t.ID, agentID) {
			picked = t
			break
		}
	}
	if picked == nil {
		b.mu.Unlock()
		return task.Task{}, false
	}
	b.saveLocked()
	out := picked.Clone()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeTaskAssigned, TaskID: out.ID, AgentID: agentID, Message: out.Title})
	return out, true
}
