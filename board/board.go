// Package board is the authoritative store for tasks and agents. Every
// check-then-act sequence runs under one mutex, and every mutation writes a
// full snapshot through the configured Snapshotter.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/task"
)

// Errors returned by Depend.
var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrSelfDependency      = errors.New("task cannot depend on itself")
	ErrDuplicateDependency = errors.New("dependency already present")
)

// Board holds every task and agent record. Callers only ever receive copies.
type Board struct {
	mu         sync.Mutex
	tasks      map[string]*task.Task
	taskOrder  []string
	agents     map[string]*agent.Agent
	agentOrder []string

	snap   Snapshotter
	bus    events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Board.
type Option func(*Board)

// WithSnapshotter persists the board after every mutation.
func WithSnapshotter(s Snapshotter) Option {
	return func(b *Board) { b.snap = s }
}

// WithBus publishes state changes on bus.
func WithBus(bus events.Bus) Option {
	return func(b *Board) { b.bus = bus }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// New creates a Board and loads the last snapshot, if any. A snapshot that
// cannot be read is logged and the board starts empty.
func New(opts ...Option) *Board {
	b := &Board{
		tasks:  make(map[string]*task.Task),
		agents: make(map[string]*agent.Agent),
		bus:    events.Discard,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.snap != nil {
		snap, err := b.snap.Load()
		if err != nil {
			b.logger.Error("board: load snapshot", slog.Any("err", err))
		} else if snap != nil {
			b.restore(snap)
		}
	}
	return b
}

func (b *Board) restore(snap *Snapshot) {
	for _, t := range snap.Tasks {
		if t.ID == "" {
			continue
		}
		if _, dup := b.tasks[t.ID]; !dup {
			b.taskOrder = append(b.taskOrder, t.ID)
		}
		c := t.Clone()
		b.tasks[t.ID] = &c
	}
	for _, a := range snap.Agents {
		if a.ID == "" {
			continue
		}
		if _, dup := b.agents[a.ID]; !dup {
			b.agentOrder = append(b.agentOrder, a.ID)
		}
		c := a
		b.agents[a.ID] = &c
	}
	b.logger.Info("board: snapshot loaded",
		slog.Int("tasks", len(b.tasks)),
		slog.Int("agents", len(b.agents)),
	)
}

// --- tasks ---

// CreateTask adds a TODO task. An empty priority becomes MEDIUM. When
// parentID names an existing task the new task is appended to its subtasks;
// an unknown parentID is still recorded on the new task.
func (b *Board) CreateTask(title string, priority task.Priority, parentID string) task.Task {
	b.mu.Lock()
	now := b.now()
	if priority == "" {
		priority = task.PriorityMedium
	}
	t := &task.Task{
		ID:           uuid.NewString(),
		Title:        title,
		Status:       task.StatusTodo,
		Priority:     priority,
		Dependencies: []string{},
		Subtasks:     []string{},
		ParentID:     parentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	b.tasks[t.ID] = t
	b.taskOrder = append(b.taskOrder, t.ID)
	if parent, ok := b.tasks[parentID]; ok && parentID != t.ID {
		parent.Subtasks = append(parent.Subtasks, t.ID)
		parent.UpdatedAt = now
	}
	b.saveLocked()
	out := t.Clone()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeTaskCreated, TaskID: out.ID, Message: out.Title})
	return out
}

// AddDependency records that taskID cannot start before depID is DONE.
// It reports false when either id is unknown, the edge is a self edge or a
// duplicate, or the edge would close a cycle.
func (b *Board) AddDependency(taskID, depID string) bool {
	return b.Depend(taskID, depID) == nil
}

// Depend is AddDependency with the rejection reason.
func (b *Board) Depend(taskID, depID string) error {
	b.mu.Lock()
	t, ok := b.tasks[taskID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if _, ok := b.tasks[depID]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, depID)
	}
	if taskID == depID {
		b.mu.Unlock()
		return ErrSelfDependency
	}
	if t.DependsOn(depID) {
		b.mu.Unlock()
		return ErrDuplicateDependency
	}
	if b.reachesLocked(depID, taskID) {
		b.mu.Unlock()
		return ErrCycleDetected
	}
	t.Dependencies = append(t.Dependencies, depID)
	t.UpdatedAt = b.now()
	b.saveLocked()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeTaskUpdated, TaskID: taskID, Message: "depends on " + depID})
	return nil
}

// GetTask returns a copy of the task with the given id.
func (b *Board) GetTask(id string) (task.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok {
		return task.Task{}, false
	}
	return t.Clone(), true
}

// ListTasks returns copies of all tasks in creation order.
func (b *Board) ListTasks() []task.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]task.Task, 0, len(b.taskOrder))
	for _, id := range b.taskOrder {
		out = append(out, b.tasks[id].Clone())
	}
	return out
}

// UpdateTaskStatus sets the status of a task and, when message is non-nil,
// its status message. Only assignment moves a task into IN_PROGRESS, so a
// request for IN_PROGRESS on any other task is refused. Moving a held task
// out of IN_PROGRESS releases the holding agent in the same critical section.
func (b *Board) UpdateTaskStatus(id string, status task.Status, message *string) (task.Task, bool) {
	b.mu.Lock()
	t, ok := b.tasks[id]
	if !ok || !status.Valid() || (status == task.StatusInProgress && t.Status != task.StatusInProgress) {
		b.mu.Unlock()
		return task.Task{}, false
	}
	now := b.now()
	t.Status = status
	if message != nil {
		t.StatusMessage = *message
	}
	t.UpdatedAt = now

	var released string
	if status != task.StatusInProgress && t.AssignedAgentID != "" {
		if a, ok := b.agents[t.AssignedAgentID]; ok && a.CurrentTaskID == t.ID {
			a.Status = agent.StatusIdle
			a.CurrentTaskID = ""
			a.UpdatedAt = now
			released = a.ID
		}
		t.AssignedAgentID = ""
	}
	b.saveLocked()
	out := t.Clone()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeTaskUpdated, TaskID: id, AgentID: released, Message: string(status)})
	return out, true
}

// UpdateTaskStatusMessage replaces the status message of a task.
func (b *Board) UpdateTaskStatusMessage(id, message string) (task.Task, bool) {
	b.mu.Lock()
	t, ok := b.tasks[id]
	if !ok {
		b.mu.Unlock()
		return task.Task{}, false
	}
	t.StatusMessage = message
	t.UpdatedAt = b.now()
	b.saveLocked()
	out := t.Clone()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeTaskUpdated, TaskID: id, Message: message})
	return out, true
}

// --- agents ---

// SpawnAgent registers an IDLE agent. Empty config fields take the defaults.
func (b *Board) SpawnAgent(name string, cfg agent.Config) agent.Agent {
	b.mu.Lock()
	now := b.now()
	a := &agent.Agent{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    agent.StatusIdle,
		Config:    cfg.WithDefaults(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.agents[a.ID] = a
	b.agentOrder = append(b.agentOrder, a.ID)
	b.saveLocked()
	out := *a
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeAgentSpawned, AgentID: out.ID, Message: out.Name})
	return out
}

// GetAgent returns a copy of the agent with the given id.
func (b *Board) GetAgent(id string) (agent.Agent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.agents[id]
	if !ok {
		return agent.Agent{}, false
	}
	return *a, true
}

// ListAgents returns copies of all agents in spawn order.
func (b *Board) ListAgents() []agent.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]agent.Agent, 0, len(b.agentOrder))
	for _, id := range b.agentOrder {
		out = append(out, *b.agents[id])
	}
	return out
}

// UpdateAgentActivity replaces the free-text activity line of an agent.
func (b *Board) UpdateAgentActivity(id, activity string) bool {
	return b.mutateAgent(id, events.TypeAgentUpdated, activity, func(a *agent.Agent) {
		a.CurrentActivity = activity
	})
}

// SetAgentInput stores text for the agent to consume. A PAUSED agent
// resumes WORKING; no other status changes.
func (b *Board) SetAgentInput(id, input string) bool {
	return b.mutateAgent(id, events.TypeAgentUpdated, "input received", func(a *agent.Agent) {
		a.PendingInput = input
		if a.Status == agent.StatusPaused {
			a.Status = agent.StatusWorking
		}
	})
}

// ClearAgentInput drops any pending input.
func (b *Board) ClearAgentInput(id string) bool {
	return b.mutateAgent(id, events.TypeAgentUpdated, "input cleared", func(a *agent.Agent) {
		a.PendingInput = ""
	})
}

// ConsumeAgentInput clears the pending input only if it still equals input,
// so text set after the caller read it is kept.
func (b *Board) ConsumeAgentInput(id, input string) bool {
	b.mu.Lock()
	a, ok := b.agents[id]
	if !ok || a.PendingInput == "" || a.PendingInput != input {
		b.mu.Unlock()
		return false
	}
	a.PendingInput = ""
	a.UpdatedAt = b.now()
	b.saveLocked()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeAgentUpdated, AgentID: id, Message: "input consumed"})
	return true
}

// PauseAgent moves an IDLE or WORKING agent to PAUSED so its loop stops
// picking up work. A held IN_PROGRESS task goes back to TODO, since a
// paused agent holds no task.
func (b *Board) PauseAgent(id string) bool {
	b.mu.Lock()
	a, ok := b.agents[id]
	if !ok || a.Status == agent.StatusPaused {
		b.mu.Unlock()
		return false
	}
	now := b.now()
	b.releaseLocked(a, now)
	a.Status = agent.StatusPaused
	a.UpdatedAt = now
	b.saveLocked()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeAgentUpdated, AgentID: id, Message: "paused"})
	return true
}

func (b *Board) mutateAgent(id string, typ events.Type, msg string, fn func(*agent.Agent)) bool {
	b.mu.Lock()
	a, ok := b.agents[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	fn(a)
	a.UpdatedAt = b.now()
	b.saveLocked()
	b.mu.Unlock()

	b.publish(events.Event{Type: typ, AgentID: id, Message: msg})
	return true
}

// --- assignment ---

// AssignTask gives taskID to agentID. It succeeds only when the task is TODO
// with every dependency DONE and the agent is IDLE; otherwise nothing changes.
func (b *Board) AssignTask(taskID, agentID string) bool {
	b.mu.Lock()
	ok := b.assignLocked(taskID, agentID)
	if ok {
		b.saveLocked()
	}
	b.mu.Unlock()

	if ok {
		b.publish(events.Event{Type: events.TypeTaskAssigned, TaskID: taskID, AgentID: agentID})
	}
	return ok
}

func (b *Board) assignLocked(taskID, agentID string) bool {
	t, ok := b.tasks[taskID]
	if !ok || t.Status != task.StatusTodo {
		return false
	}
	a, ok := b.agents[agentID]
	if !ok || a.Status != agent.StatusIdle {
		return false
	}
	if !b.readyLocked(t) {
		return false
	}
	now := b.now()
	t.Status = task.StatusInProgress
	t.AssignedAgentID = agentID
	t.UpdatedAt = now
	a.Status = agent.StatusWorking
	a.CurrentTaskID = taskID
	a.UpdatedAt = now
	return true
}

// CompleteTask marks the task DONE and returns its agent to IDLE in one
// step. The agent must currently hold the task.
func (b *Board) CompleteTask(taskID, agentID string) bool {
	b.mu.Lock()
	t, ok := b.tasks[taskID]
	a, aok := b.agents[agentID]
	if !ok || !aok || a.CurrentTaskID != taskID || t.AssignedAgentID != agentID {
		b.mu.Unlock()
		return false
	}
	now := b.now()
	t.Status = task.StatusDone
	t.AssignedAgentID = ""
	t.UpdatedAt = now
	a.Status = agent.StatusIdle
	a.CurrentTaskID = ""
	a.UpdatedAt = now
	b.saveLocked()
	title := t.Title
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeTaskCompleted, TaskID: taskID, AgentID: agentID, Message: title})
	return true
}

// ResetAgent forces an agent back to IDLE. An IN_PROGRESS task it held
// returns to TODO without an assignee.
func (b *Board) ResetAgent(id string) bool {
	b.mu.Lock()
	a, ok := b.agents[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	now := b.now()
	b.releaseLocked(a, now)
	a.Status = agent.StatusIdle
	a.UpdatedAt = now
	b.saveLocked()
	b.mu.Unlock()

	b.publish(events.Event{Type: events.TypeAgentReset, AgentID: id})
	return true
}

// releaseLocked returns the agent's IN_PROGRESS task to TODO and clears
// CurrentTaskID.
func (b *Board) releaseLocked(a *agent.Agent, now time.Time) {
	if t, ok := b.tasks[a.CurrentTaskID]; ok && t.AssignedAgentID == a.ID && t.Status == task.StatusInProgress {
		t.Status = task.StatusTodo
		t.AssignedAgentID = ""
		t.UpdatedAt = now
	}
	a.CurrentTaskID = ""
}

// --- persistence & notification ---

// snapshotLocked builds a deep copy of the board in creation order.
func (b *Board) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Tasks:  make([]task.Task, 0, len(b.taskOrder)),
		Agents: make([]agent.Agent, 0, len(b.agentOrder)),
	}
	for _, id := range b.taskOrder {
		snap.Tasks = append(snap.Tasks, b.tasks[id].Clone())
	}
	for _, id := range b.agentOrder {
		snap.Agents = append(snap.Agents, *b.agents[id])
	}
	return snap
}

// saveLocked writes the snapshot. Failures are logged; memory stays authoritative.
func (b *Board) saveLocked() {
	if b.snap == nil {
		return
	}
	if err := b.snap.Save(b.snapshotLocked()); err != nil {
		b.logger.Error("board: save snapshot", slog.Any("err", err))
	}
}

// Snapshot returns a copy of the whole board.
func (b *Board) Snapshot() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) publish(ev events.Event) {
	b.bus.Publish(context.Background(), ev)
}
