// Package agent defines the worker agent record, the per-agent execution
// loop and the manager that starts and stops loops.
package agent

import "time"

// Status represents the current state of an agent.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusWorking Status = "WORKING"
	StatusPaused  Status = "PAUSED"
)

// Default decision backend for newly spawned agents.
const (
	DefaultProvider = "gemini"
	DefaultModel    = "gemini-1.5-pro"
)

// Config selects the decision backend an agent talks to.
type Config struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	APIKey   string `json:"apiKey,omitempty" yaml:"api_key"`
}

// WithDefaults fills empty fields with DefaultProvider and DefaultModel.
func (c Config) WithDefaults() Config {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return c
}

// Agent is a worker that picks up and executes tasks.
type Agent struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Status          Status    `json:"status"`
	CurrentTaskID   string    `json:"currentTaskId,omitempty"`
	CurrentActivity string    `json:"currentActivity,omitempty"`
	PendingInput    string    `json:"pendingInput,omitempty"`
	Config          Config    `json:"config"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Redacted returns a copy of a safe to expose over the API.
func (a Agent) Redacted() Agent {
	if a.Config.APIKey != "" {
		a.Config.APIKey = "********"
	}
	return a
}
