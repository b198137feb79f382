// Package api defines the REST API handlers and the interfaces they drive.
package api

import (
	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/task"
)

// Board is the part of the task board the API exposes.
// Implemented by *board.Board.
type Board interface {
	ListAgents() []agent.Agent
	GetAgent(id string) (agent.Agent, bool)
	SpawnAgent(name string, cfg agent.Config) agent.Agent
	SetAgentInput(id, input string) bool
	ClearAgentInput(id string) bool
	PauseAgent(id string) bool

	ListTasks() []task.Task
	GetTask(id string) (task.Task, bool)
	CreateTask(title string, priority task.Priority, parentID string) task.Task
	UpdateTaskStatus(id string, status task.Status, message *string) (task.Task, bool)
	UpdateTaskStatusMessage(id, message string) (task.Task, bool)
	Depend(taskID, depID string) error
}

// Loops starts and stops agent loops. Implemented by *agent.Manager.
type Loops interface {
	Start(agentID string) error
	Stop(agentID string) error
	Running(agentID string) bool
}

// AgentView is an agent as served by the API.
type AgentView struct {
	agent.Agent
	Running bool `json:"running"`
}
