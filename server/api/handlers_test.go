package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/board"
	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/memory"
	"github.com/GoCodeAlone/puppeteer/server/api"
	"github.com/GoCodeAlone/puppeteer/task"
)

// --- Test doubles ---

type fakeLoops struct {
	board   *board.Board
	running map[string]bool
}

func (f *fakeLoops) Start(id string) error {
	if _, ok := f.board.GetAgent(id); !ok {
		return agent.ErrAgentNotFound
	}
	if f.running[id] {
		return agent.ErrAlreadyRunning
	}
	f.running[id] = true
	return nil
}

func (f *fakeLoops) Stop(id string) error {
	if !f.running[id] {
		return agent.ErrNotRunning
	}
	delete(f.running, id)
	return nil
}

func (f *fakeLoops) Running(id string) bool { return f.running[id] }

// --- Test helpers ---

type fixture struct {
	board *board.Board
	loops *fakeLoops
	bus   *events.InMemoryBus
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem, err := memory.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	bus := events.NewInMemoryBus()
	b := board.New(board.WithBus(bus))
	f := &fixture{
		board: b,
		loops: &fakeLoops{board: b, running: make(map[string]bool)},
		bus:   bus,
		mux:   http.NewServeMux(),
	}
	h := &api.Handlers{
		Board:   b,
		Loops:   f.loops,
		Memory:  mem,
		Bus:     bus,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version: "test",
	}
	h.RegisterRoutes(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

// --- Tests ---

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/health", "")
	expectStatus(t, rr, http.StatusOK)
	resp := decodeBody[map[string]any](t, rr)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestListAgents_Empty(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/agents", "")
	expectStatus(t, rr, http.StatusOK)
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}
}

func TestCreateAndGetAgent(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/agents", `{"name":"worker","provider":"openai","apiKey":"sk-secret"}`)
	expectStatus(t, rr, http.StatusCreated)
	created := decodeBody[api.AgentView](t, rr)
	if created.Name != "worker" || created.Status != agent.StatusIdle {
		t.Errorf("created = %+v", created)
	}
	if created.Config.Provider != "openai" || created.Config.Model != agent.DefaultModel {
		t.Errorf("config = %+v", created.Config)
	}
	if created.Config.APIKey == "sk-secret" {
		t.Error("API key leaked in response")
	}

	rr = f.do(t, http.MethodGet, "/api/agents/"+created.ID, "")
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody[api.AgentView](t, rr); got.ID != created.ID {
		t.Errorf("got ID %q, want %q", got.ID, created.ID)
	}
}

func TestCreateAgent_Validation(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents", `{}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents", `{"name":`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodGet, "/api/agents/nonexistent", ""), http.StatusNotFound)
}

func TestStartStopAgent(t *testing.T) {
	f := newFixture(t)
	a := f.board.SpawnAgent("w", agent.Config{})

	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/ghost/start", ""), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/stop", ""), http.StatusBadRequest)

	rr := f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/start", "")
	expectStatus(t, rr, http.StatusOK)
	resp := decodeBody[map[string]string](t, rr)
	if resp["status"] != "Agent loop started" || resp["agentId"] != a.ID {
		t.Errorf("start = %v", resp)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/start", ""), http.StatusBadRequest)

	rr = f.do(t, http.MethodGet, "/api/agents/"+a.ID, "")
	if !decodeBody[api.AgentView](t, rr).Running {
		t.Error("Running = false after start")
	}

	rr = f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/stop", "")
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeBody[map[string]string](t, rr); resp["status"] != "Agent loop stopped" {
		t.Errorf("stop = %v", resp)
	}
}

func TestAgentInputAndPause(t *testing.T) {
	f := newFixture(t)
	a := f.board.SpawnAgent("w", agent.Config{})

	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/ghost/input", `{"input":"x"}`), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/input", `{"input":""}`), http.StatusBadRequest)

	rr := f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/pause", "")
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody[api.AgentView](t, rr).Status; got != agent.StatusPaused {
		t.Errorf("status = %s, want PAUSED", got)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/pause", ""), http.StatusConflict)
	expectStatus(t, f.do(t, http.MethodPost, "/api/agents/ghost/pause", ""), http.StatusNotFound)

	rr = f.do(t, http.MethodPost, "/api/agents/"+a.ID+"/input", `{"input":"use the staging db"}`)
	expectStatus(t, rr, http.StatusOK)
	got := decodeBody[api.AgentView](t, rr)
	if got.PendingInput != "use the staging db" || got.Status != agent.StatusWorking {
		t.Errorf("after input: %+v", got.Agent)
	}

	rr = f.do(t, http.MethodDelete, "/api/agents/"+a.ID+"/input", "")
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody[api.AgentView](t, rr).PendingInput; got != "" {
		t.Errorf("PendingInput = %q after clear", got)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/tasks", `{"title":"Parent","priority":"high"}`)
	expectStatus(t, rr, http.StatusCreated)
	parent := decodeBody[task.Task](t, rr)
	if parent.ID == "" || parent.Priority != task.PriorityHigh || parent.Status != task.StatusTodo {
		t.Errorf("parent = %+v", parent)
	}

	rr = f.do(t, http.MethodPost, "/api/tasks", `{"title":"Child","parentId":"`+parent.ID+`"}`)
	expectStatus(t, rr, http.StatusCreated)
	child := decodeBody[task.Task](t, rr)
	if child.Priority != task.PriorityMedium || child.ParentID != parent.ID {
		t.Errorf("child = %+v", child)
	}

	rr = f.do(t, http.MethodGet, "/api/tasks", "")
	expectStatus(t, rr, http.StatusOK)
	tasks := decodeBody[[]task.Task](t, rr)
	if len(tasks) != 2 || tasks[0].ID != parent.ID {
		t.Fatalf("tasks = %+v", tasks)
	}
	if len(tasks[0].Subtasks) != 1 || tasks[0].Subtasks[0] != child.ID {
		t.Errorf("parent subtasks = %v", tasks[0].Subtasks)
	}

	rr = f.do(t, http.MethodGet, "/api/tasks/"+child.ID, "")
	expectStatus(t, rr, http.StatusOK)
}

func TestUpdateTask_RefusedStatusAppliesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.board.CreateTask("a", "", "")
	b := f.board.CreateTask("b", "", "")

	body := `{"status":"IN_PROGRESS","dependencyId":"` + b.ID + `"}`
	expectStatus(t, f.do(t, http.MethodPut, "/api/tasks/"+a.ID, body), http.StatusConflict)

	got, _ := f.board.GetTask(a.ID)
	if len(got.Dependencies) != 0 {
		t.Errorf("dependencies = %v, want none after refused update", got.Dependencies)
	}
	if got.Status != task.StatusTodo {
		t.Errorf("status = %s, want TODO", got.Status)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/api/tasks", `{"priority":"LOW"}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/tasks", `{"title":"x","priority":"urgent"}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodGet, "/api/tasks/missing", ""), http.StatusNotFound)
}

func TestUpdateTask(t *testing.T) {
	f := newFixture(t)
	a := f.board.CreateTask("a", "", "")
	b := f.board.CreateTask("b", "", "")

	expectStatus(t, f.do(t, http.MethodPut, "/api/tasks/missing", `{"status":"DONE"}`), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPut, "/api/tasks/"+a.ID, `{"status":"BLOCKED"}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPut, "/api/tasks/"+a.ID, `{"status":"IN_PROGRESS"}`), http.StatusConflict)

	rr := f.do(t, http.MethodPut, "/api/tasks/"+b.ID, `{"dependencyId":"`+a.ID+`"}`)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody[task.Task](t, rr).Dependencies; len(got) != 1 || got[0] != a.ID {
		t.Errorf("dependencies = %v", got)
	}

	rr = f.do(t, http.MethodPut, "/api/tasks/"+a.ID, `{"dependencyId":"`+b.ID+`"}`)
	expectStatus(t, rr, http.StatusBadRequest)
	if resp := decodeBody[map[string]string](t, rr); resp["error"] != "Failed to add dependency (cycle or invalid id)" {
		t.Errorf("error = %q", resp["error"])
	}

	rr = f.do(t, http.MethodPut, "/api/tasks/"+a.ID, `{"status":"done","statusMessage":"shipped"}`)
	expectStatus(t, rr, http.StatusOK)
	got := decodeBody[task.Task](t, rr)
	if got.Status != task.StatusDone || got.StatusMessage != "shipped" {
		t.Errorf("task = %+v", got)
	}

	rr = f.do(t, http.MethodPut, "/api/tasks/"+b.ID, `{"statusMessage":"waiting"}`)
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody[task.Task](t, rr); got.Status != task.StatusTodo || got.StatusMessage != "waiting" {
		t.Errorf("task = %+v", got)
	}

	rr = f.do(t, http.MethodGet, "/api/tasks?status=done", "")
	if tasks := decodeBody[[]task.Task](t, rr); len(tasks) != 1 || tasks[0].ID != a.ID {
		t.Errorf("filtered tasks = %+v", tasks)
	}
}

func TestUpdateTask_ReleasesAgent(t *testing.T) {
	f := newFixture(t)
	tk := f.board.CreateTask("t", "", "")
	a := f.board.SpawnAgent("w", agent.Config{})
	if !f.board.AssignTask(tk.ID, a.ID) {
		t.Fatal("AssignTask returned false")
	}

	expectStatus(t, f.do(t, http.MethodPut, "/api/tasks/"+tk.ID, `{"status":"TODO"}`), http.StatusOK)
	got, _ := f.board.GetAgent(a.ID)
	if got.Status != agent.StatusIdle || got.CurrentTaskID != "" {
		t.Errorf("agent = %s holding %q, want IDLE", got.Status, got.CurrentTaskID)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	f := newFixture(t)

	expectStatus(t, f.do(t, http.MethodPost, "/api/memory/logs", `{"content":"x"}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/memory/logs", `{"content":"deployed","agentId":"a1"}`), http.StatusCreated)

	rr := f.do(t, http.MethodGet, "/api/memory/logs", "")
	expectStatus(t, rr, http.StatusOK)
	logs := decodeBody[[]string](t, rr)
	if len(logs) != 1 || !strings.Contains(logs[0], "(a1) deployed") {
		t.Errorf("logs = %q", logs)
	}
	expectStatus(t, f.do(t, http.MethodGet, "/api/memory/logs?days=zero", ""), http.StatusBadRequest)

	expectStatus(t, f.do(t, http.MethodPost, "/api/memory/knowledge", `{}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/memory/knowledge", `{"content":"tests live next to code"}`), http.StatusCreated)

	rr = f.do(t, http.MethodGet, "/api/memory/knowledge", "")
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody[map[string]string](t, rr)["content"]; !strings.Contains(got, "- tests live next to code") {
		t.Errorf("knowledge = %q", got)
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	a := f.board.SpawnAgent("w", agent.Config{})
	f.board.CreateTask("t", "", "")

	rr := f.do(t, http.MethodGet, "/api/events", "")
	expectStatus(t, rr, http.StatusOK)
	evs := decodeBody[[]events.Event](t, rr)
	if len(evs) != 2 || evs[0].Type != events.TypeAgentSpawned || evs[1].Type != events.TypeTaskCreated {
		t.Errorf("events = %+v", evs)
	}

	rr = f.do(t, http.MethodGet, "/api/events?agent_id="+a.ID+"&limit=5", "")
	if evs := decodeBody[[]events.Event](t, rr); len(evs) != 1 {
		t.Errorf("agent events = %+v", evs)
	}
}
