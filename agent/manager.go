package agent

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrAlreadyRunning = errors.New("agent loop already running")
	ErrNotRunning     = errors.New("agent loop not running")
)

type loopHandle struct {
	cancel context.CancelFunc
	// stopping is set once the loop was cancelled; the handle stays
	// registered until the goroutine exits.
	stopping bool
}

// Manager starts and stops one Runtime per agent.
type Manager struct {
	cfg LoopConfig

	mu    sync.Mutex
	loops map[string]*loopHandle
	all   sync.WaitGroup
}

// NewManager creates a Manager whose loops share cfg.
func NewManager(cfg LoopConfig) *Manager {
	return &Manager{
		cfg:   cfg.withDefaults(),
		loops: make(map[string]*loopHandle),
	}
}

// Start launches the loop for agentID. It returns ErrAlreadyRunning while a
// previous loop for the agent is still finishing its last cycle.
func (m *Manager) Start(agentID string) error {
	if _, ok := m.cfg.Board.GetAgent(agentID); !ok {
		return ErrAgentNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loops[agentID]; ok {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &loopHandle{cancel: cancel}
	m.loops[agentID] = h
	m.all.Add(1)

	rt := NewRuntime(agentID, m.cfg)
	go func() {
		defer m.all.Done()
		defer cancel()
		rt.Run(ctx)

		m.mu.Lock()
		if m.loops[agentID] == h {
			delete(m.loops, agentID)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels the loop for agentID without waiting for it. A cycle already
// in progress finishes first, and the agent cannot be started again until
// it has.
func (m *Manager) Stop(agentID string) error {
	m.mu.Lock()
	h, ok := m.loops[agentID]
	if !ok || h.stopping {
		m.mu.Unlock()
		return ErrNotRunning
	}
	h.stopping = true
	m.mu.Unlock()

	h.cancel()
	return nil
}

// Running reports whether a loop for agentID is running and not stopping.
func (m *Manager) Running(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.loops[agentID]
	return ok && !h.stopping
}

// RunningIDs returns the ids of agents with a running loop, sorted.
func (m *Manager) RunningIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.loops))
	for id, h := range m.loops {
		if !h.stopping {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// StopAll cancels every loop and waits until all of them, including loops
// stopped earlier that are still finishing a cycle, have exited or ctx ends.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	for _, h := range m.loops {
		h.stopping = true
		h.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.all.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
