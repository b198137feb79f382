package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/memory"
	"github.com/GoCodeAlone/puppeteer/task"
)

const (
	defaultLogDays      = 7
	defaultEventLimit   = 100
	maxRequestBodyBytes = 1 << 20
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Board   Board
	Loops   Loops
	Memory  memory.Store
	Bus     events.Bus
	Logger  *slog.Logger
	Version string
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.health)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("POST /api/agents", h.createAgent)
	mux.HandleFunc("GET /api/agents/{id}", h.getAgent)
	mux.HandleFunc("POST /api/agents/{id}/start", h.startAgent)
	mux.HandleFunc("POST /api/agents/{id}/stop", h.stopAgent)
	mux.HandleFunc("POST /api/agents/{id}/pause", h.pauseAgent)
	mux.HandleFunc("POST /api/agents/{id}/input", h.setInput)
	mux.HandleFunc("DELETE /api/agents/{id}/input", h.clearInput)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)

	mux.HandleFunc("GET /api/memory/logs", h.listLogs)
	mux.HandleFunc("POST /api/memory/logs", h.addLog)
	mux.HandleFunc("GET /api/memory/knowledge", h.getKnowledge)
	mux.HandleFunc("POST /api/memory/knowledge", h.addKnowledge)

	mux.HandleFunc("GET /api/events", h.listEvents)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   h.Version,
	})
}

// --- Agent handlers ---

func (h *Handlers) view(a agent.Agent) AgentView {
	return AgentView{Agent: a.Redacted(), Running: h.Loops.Running(a.ID)}
}

func (h *Handlers) listAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.Board.ListAgents()
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, h.view(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type createAgentRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
}

func (h *Handlers) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	a := h.Board.SpawnAgent(req.Name, agent.Config{
		Provider: req.Provider,
		Model:    req.Model,
		APIKey:   req.APIKey,
	})
	writeJSON(w, http.StatusCreated, h.view(a))
}

func (h *Handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.Board.GetAgent(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, h.view(a))
}

func (h *Handlers) startAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.Loops.Start(id)
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, agent.ErrAlreadyRunning):
		writeError(w, http.StatusBadRequest, "Agent loop already running")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.Logger.Info("agent loop started", "agent", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "Agent loop started", "agentId": id})
	}
}

func (h *Handlers) stopAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Loops.Stop(id); err != nil {
		if errors.Is(err, agent.ErrNotRunning) {
			writeError(w, http.StatusBadRequest, "Agent loop not running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Logger.Info("agent loop stopped", "agent", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "Agent loop stopped", "agentId": id})
}

func (h *Handlers) pauseAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.Board.GetAgent(id); !ok {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if !h.Board.PauseAgent(id) {
		writeError(w, http.StatusConflict, "Agent already paused")
		return
	}
	a, _ := h.Board.GetAgent(id)
	writeJSON(w, http.StatusOK, h.view(a))
}

func (h *Handlers) setInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Input string `json:"input"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "Input is required")
		return
	}
	if !h.Board.SetAgentInput(id, req.Input) {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	a, _ := h.Board.GetAgent(id)
	writeJSON(w, http.StatusOK, h.view(a))
}

func (h *Handlers) clearInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.Board.ClearAgentInput(id) {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	a, _ := h.Board.GetAgent(id)
	writeJSON(w, http.StatusOK, h.view(a))
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.Board.ListTasks()
	if s := r.URL.Query().Get("status"); s != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == strings.ToUpper(s) {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	ParentID string `json:"parentId"`
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	prio, ok := task.ParsePriority(req.Priority)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid priority: "+req.Priority)
		return
	}
	writeJSON(w, http.StatusCreated, h.Board.CreateTask(req.Title, prio, req.ParentID))
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, ok := h.Board.GetTask(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateTaskRequest struct {
	Status        string  `json:"status"`
	StatusMessage *string `json:"statusMessage"`
	DependencyID  string  `json:"dependencyId"`
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, ok := h.Board.GetTask(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	var req updateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	status := task.Status(strings.ToUpper(req.Status))
	if req.Status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status: "+req.Status)
		return
	}
	// Only assignment starts work; refuse before anything is applied.
	if status == task.StatusInProgress && current.Status != task.StatusInProgress {
		writeError(w, http.StatusConflict, "Task cannot move to "+string(status))
		return
	}

	if req.DependencyID != "" {
		if err := h.Board.Depend(id, req.DependencyID); err != nil {
			h.Logger.Debug("add dependency rejected", "task", id, "dependency", req.DependencyID, slog.Any("err", err))
			writeError(w, http.StatusBadRequest, "Failed to add dependency (cycle or invalid id)")
			return
		}
	}
	switch {
	case req.Status != "":
		if _, ok := h.Board.UpdateTaskStatus(id, status, req.StatusMessage); !ok {
			writeError(w, http.StatusConflict, "Task cannot move to "+string(status))
			return
		}
	case req.StatusMessage != nil:
		h.Board.UpdateTaskStatusMessage(id, *req.StatusMessage)
	}

	t, _ := h.Board.GetTask(id)
	writeJSON(w, http.StatusOK, t)
}

// --- Memory handlers ---

func (h *Handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	days := defaultLogDays
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days: "+d)
			return
		}
		days = n
	}
	logs, err := h.Memory.RecentLogs(r.Context(), days)
	if err != nil {
		h.Logger.Error("fetch logs", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}
	if logs == nil {
		logs = []string{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) addLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		AgentID string `json:"agentId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "Content and agentId are required")
		return
	}
	if err := h.Memory.AddLog(r.Context(), req.Content, req.AgentID); err != nil {
		h.Logger.Error("add log", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Failed to add log")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func (h *Handlers) getKnowledge(w http.ResponseWriter, r *http.Request) {
	k, err := h.Memory.Knowledge(r.Context())
	if err != nil {
		h.Logger.Error("fetch knowledge", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch knowledge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": k})
}

func (h *Handlers) addKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	if err := h.Memory.AddKnowledge(r.Context(), req.Content); err != nil {
		h.Logger.Error("add knowledge", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Failed to add knowledge")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// --- Events ---

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	evs := h.Bus.History(r.URL.Query().Get("agent_id"), limit)
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}
