package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/memory"
	"github.com/GoCodeAlone/puppeteer/plugin"
	"github.com/GoCodeAlone/puppeteer/provider"
	"github.com/GoCodeAlone/puppeteer/task"
)

const (
	// DefaultIdleBackoff is the wait after an iteration that found no work.
	DefaultIdleBackoff = 5 * time.Second
	// DefaultPacing is the wait after each completed cycle.
	DefaultPacing = 2 * time.Second

	statusPrompt  = "Current Status: WORKING. What is your next step?"
	previewLength = 200
)

// Board is the part of the task board an agent loop drives. Every method
// must be atomic with respect to the others.
type Board interface {
	GetAgent(id string) (Agent, bool)
	GetTask(id string) (task.Task, bool)
	AssignNextTask(agentID string) (task.Task, bool)
	CompleteTask(taskID, agentID string) bool
	ResetAgent(id string) bool
	UpdateAgentActivity(id, activity string) bool
	ConsumeAgentInput(id, input string) bool
}

// ProviderFunc resolves the decision service for an agent's config.
type ProviderFunc func(ctx context.Context, cfg Config) (provider.Provider, error)

// CachedProviders wraps fn so each distinct Config is resolved once.
func CachedProviders(fn ProviderFunc) ProviderFunc {
	var mu sync.Mutex
	cache := make(map[Config]provider.Provider)
	return func(ctx context.Context, cfg Config) (provider.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := cache[cfg]; ok {
			return p, nil
		}
		p, err := fn(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cache[cfg] = p
		return p, nil
	}
}

// LoopConfig holds the collaborators and timings shared by every agent loop.
type LoopConfig struct {
	Board     Board
	Tools     *plugin.Registry
	Providers ProviderFunc
	Memory    memory.Store // optional
	Bus       events.Bus   // optional
	Logger    *slog.Logger

	IdleBackoff time.Duration // wait when there is nothing to do
	Pacing      time.Duration // wait after each cycle
	// DecisionTimeout and ToolTimeout bound a single call when > 0.
	DecisionTimeout time.Duration
	ToolTimeout     time.Duration
	// RecentLogDays is how many daily logs feed the prompt (default 1).
	RecentLogDays int
	LoopGuard     LoopGuardConfig
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = DefaultIdleBackoff
	}
	if c.Pacing <= 0 {
		c.Pacing = DefaultPacing
	}
	if c.RecentLogDays <= 0 {
		c.RecentLogDays = 1
	}
	if c.Tools == nil {
		c.Tools = plugin.NewRegistry()
	}
	if c.Bus == nil {
		c.Bus = events.Discard
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Runtime is the observe/think/act loop of a single agent.
type Runtime struct {
	id     string
	cfg    LoopConfig
	logger *slog.Logger

	guard *loopGuard
	// warning is shown in the next prompt after the guard trips.
	warning string
}

// NewRuntime creates the loop for agentID. It does nothing until Run.
func NewRuntime(agentID string, cfg LoopConfig) *Runtime {
	cfg = cfg.withDefaults()
	return &Runtime{
		id:     agentID,
		cfg:    cfg,
		logger: cfg.Logger.With("agent", agentID),
		guard:  newLoopGuard(cfg.LoopGuard),
	}
}

// Run drives the agent until ctx is cancelled or the agent no longer exists.
// Cancellation is observed between cycles and during waits; a cycle that has
// started always runs to the end.
func (r *Runtime) Run(ctx context.Context) {
	r.logger.Info("agent loop started")
	r.publish(ctx, events.Event{Type: events.TypeLoopStarted, Message: "Agent loop started"})
	defer func() {
		r.logger.Info("agent loop stopped")
		r.publish(context.WithoutCancel(ctx), events.Event{Type: events.TypeLoopStopped, Message: "Agent loop stopped"})
	}()

	for ctx.Err() == nil {
		wait, alive := r.Step(ctx)
		if !alive {
			return
		}
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Step runs one iteration and returns how long to wait before the next.
// alive is false once the agent has disappeared.
func (r *Runtime) Step(ctx context.Context) (wait time.Duration, alive bool) {
	a, ok := r.cfg.Board.GetAgent(r.id)
	if !ok {
		r.logger.Warn("agent no longer exists, stopping loop")
		return 0, false
	}

	var taskID string
	switch a.Status {
	case StatusPaused:
		return r.cfg.IdleBackoff, true
	case StatusIdle:
		t, ok := r.cfg.Board.AssignNextTask(r.id)
		if !ok {
			return r.cfg.IdleBackoff, true
		}
		r.logger.Info("picked up task", "task", t.ID, "title", t.Title)
		r.record(ctx, "Picked up task: "+t.Title)
		r.cfg.Board.UpdateAgentActivity(r.id, "Picked up task: "+t.Title)
		taskID = t.ID
	default:
		taskID = a.CurrentTaskID
		if taskID == "" {
			r.logger.Error("agent is WORKING without a task, resetting")
			r.cfg.Board.ResetAgent(r.id)
			return 0, true
		}
	}

	r.cycle(context.WithoutCancel(ctx), taskID)
	return r.cfg.Pacing, true
}

// cycle asks the decision service for the next step on taskID and acts on it.
func (r *Runtime) cycle(ctx context.Context, taskID string) {
	t, ok := r.cfg.Board.GetTask(taskID)
	if !ok || t.Status != task.StatusInProgress || t.AssignedAgentID != r.id {
		r.logger.Error("held task is missing or not assigned to this agent, resetting", "task", taskID)
		r.cfg.Board.ResetAgent(r.id)
		return
	}
	a, ok := r.cfg.Board.GetAgent(r.id)
	if !ok {
		return
	}

	messages := r.buildPrompt(ctx, t, a.PendingInput)

	p, err := r.cfg.Providers(ctx, a.Config)
	if err != nil {
		r.fail(ctx, t, fmt.Errorf("resolve provider: %w", err))
		return
	}
	callCtx := ctx
	if r.cfg.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.DecisionTimeout)
		defer cancel()
	}
	resp, err := p.Chat(callCtx, messages)
	if err != nil {
		r.fail(ctx, t, fmt.Errorf("decision service: %w", err))
		return
	}

	d := ParseDecision(resp.Content)
	if d.Kind == DecisionMalformed {
		r.fail(ctx, t, fmt.Errorf("unparseable decision: %s", d.Reason))
		return
	}

	// The decision was read, so the input and warning it was given are spent.
	if a.PendingInput != "" {
		r.cfg.Board.ConsumeAgentInput(r.id, a.PendingInput)
	}
	r.warning = ""

	switch d.Kind {

	case DecisionComplete:
		if !r.cfg.Board.CompleteTask(t.ID, r.id) {
			r.logger.Warn("task no longer held at completion", "task", t.ID)
			return
		}
		r.logger.Info("task completed", "task", t.ID, "thought", d.Thought)
		r.record(ctx, "Completed task: "+t.Title)
		r.cfg.Board.UpdateAgentActivity(r.id, "Completed task: "+t.Title)

	case DecisionToolCall:
		tool, ok := r.cfg.Tools.Get(d.Tool)
		if !ok {
			r.logger.Warn("unknown tool", "tool", d.Tool, "task", t.ID)
			r.record(ctx, "Unknown tool: "+d.Tool)
			return
		}
		r.cfg.Board.UpdateAgentActivity(r.id, "Running "+d.Tool)
		toolCtx := plugin.WithTaskID(plugin.WithAgentID(ctx, r.id), t.ID)
		result := plugin.Invoke(toolCtx, tool, d.Args, r.cfg.ToolTimeout)

		summary := fmt.Sprintf("Executed %s: %s", d.Tool, d.Thought)
		r.logger.Info("tool executed", "tool", d.Tool, "task", t.ID, "result", preview(result))
		r.record(ctx, summary)
		r.record(ctx, fmt.Sprintf("Result of %s: %s", d.Tool, preview(result)))
		r.cfg.Board.UpdateAgentActivity(r.id, summary)
		r.publish(ctx, events.Event{Type: events.TypeToolExecuted, TaskID: t.ID, Message: summary})

		r.guard.record(t.ID, d.Tool, d.Args, result, plugin.IsError(result))
		if msg, looping := r.guard.check(); looping {
			r.logger.Warn("loop detected", "task", t.ID, "detail", msg)
			r.record(ctx, "Loop detected: "+msg)
			r.publish(ctx, events.Event{Type: events.TypeLoopDetected, TaskID: t.ID, Message: msg})
			r.warning = msg
			r.guard.reset()
		}
	}
}

// buildPrompt assembles the system and user turns for one cycle.
func (r *Runtime) buildPrompt(ctx context.Context, t task.Task, input string) []provider.Message {
	knowledge, logs := "", "No recent logs"
	if r.cfg.Memory != nil {
		k, err := r.cfg.Memory.Knowledge(ctx)
		if err != nil {
			r.logger.Warn("read knowledge", slog.Any("err", err))
		}
		knowledge = k
		recent, err := r.cfg.Memory.RecentLogs(ctx, r.cfg.RecentLogDays)
		if err != nil {
			r.logger.Warn("read recent logs", slog.Any("err", err))
		}
		if len(recent) > 0 {
			logs = strings.Join(recent, "\n")
		}
	}

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are an autonomous agent working on: %q.\n\n", t.Title)
	if t.StatusMessage != "" {
		fmt.Fprintf(&sys, "Task status: %s\n\n", t.StatusMessage)
	}
	fmt.Fprintf(&sys, "Context:\n%s\n\n", strings.TrimSpace(knowledge))
	fmt.Fprintf(&sys, "Recent Logs:\n%s\n\n", strings.TrimSpace(logs))
	fmt.Fprintf(&sys, "Available Tools:\n%s\n\n", r.cfg.Tools.Catalog())
	sys.WriteString("Respond in JSON format:\n")
	sys.WriteString(`{ "thought": "reasoning", "action": "tool_name", "args": { ... } }`)
	sys.WriteString("\nUse the action \"" + ActionComplete + "\" when the task is finished.")

	user := statusPrompt
	if input != "" {
		user += "\n\nOperator input: " + input
	}
	if r.warning != "" {
		user += "\n\nWarning: you appear to be stuck (" + r.warning + "). Try a different approach."
	}
	return []provider.Message{
		{Role: provider.RoleSystem, Content: sys.String()},
		{Role: provider.RoleUser, Content: user},
	}
}

// fail records a recoverable cycle failure. Task and agent are left as they are.
func (r *Runtime) fail(ctx context.Context, t task.Task, err error) {
	r.logger.Error("cycle failed", "task", t.ID, slog.Any("err", err))
	r.record(ctx, "Cycle failed: "+err.Error())
	r.publish(ctx, events.Event{Type: events.TypeCycleFailed, TaskID: t.ID, Message: err.Error()})
}

// record appends to the memory log; failures are logged only.
func (r *Runtime) record(ctx context.Context, entry string) {
	if r.cfg.Memory == nil {
		return
	}
	if err := r.cfg.Memory.AddLog(ctx, entry, r.id); err != nil {
		r.logger.Warn("write memory log", slog.Any("err", err))
	}
}

func (r *Runtime) publish(ctx context.Context, ev events.Event) {
	ev.AgentID = r.id
	r.cfg.Bus.Publish(ctx, ev)
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= previewLength {
		return s
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
