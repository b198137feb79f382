package board

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/task"
)

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

// populate builds a board exercising every field that must survive a reload.
func populate(t *testing.T, b *Board) {
	t.Helper()
	parent := b.CreateTask("parent", task.PriorityHigh, "")
	child := b.CreateTask("child", task.PriorityLow, parent.ID)
	other := b.CreateTask("other", "", "")
	if !b.AddDependency(parent.ID, child.ID) {
		t.Fatal("AddDependency returned false")
	}
	msg := "waiting on review"
	b.UpdateTaskStatus(other.ID, task.StatusDone, &msg)

	a := b.SpawnAgent("worker", agent.Config{Provider: "anthropic", Model: "claude-sonnet-4-5", APIKey: "k"})
	b.SpawnAgent("idle", agent.Config{})
	if _, ok := b.AssignNextTask(a.ID); !ok {
		t.Fatal("AssignNextTask returned false")
	}
	b.UpdateAgentActivity(a.ID, "reading files")
	b.SetAgentInput(a.ID, "prefer small commits")
}

func TestJSONFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanban.json")
	b := New(WithSnapshotter(NewJSONFile(path)), WithClock(fixedClock()))
	populate(t, b)

	reloaded := New(WithSnapshotter(NewJSONFile(path)))
	if diff := cmp.Diff(b.Snapshot(), reloaded.Snapshot()); diff != "" {
		t.Errorf("reloaded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONFile_PairFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanban.json")
	b := New(WithSnapshotter(NewJSONFile(path)))
	tk := b.CreateTask("x", "", "")
	a := b.SpawnAgent("a", agent.Config{})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var doc struct {
		Tasks  [][]json.RawMessage `json:"tasks"`
		Agents [][]json.RawMessage `json:"agents"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(doc.Tasks) != 1 || len(doc.Tasks[0]) != 2 {
		t.Fatalf("tasks = %s, want one [id, task] pair", data)
	}
	var id string
	if err := json.Unmarshal(doc.Tasks[0][0], &id); err != nil || id != tk.ID {
		t.Errorf("task pair key = %q (%v), want %q", id, err, tk.ID)
	}
	if len(doc.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(doc.Agents))
	}
	if err := json.Unmarshal(doc.Agents[0][0], &id); err != nil || id != a.ID {
		t.Errorf("agent pair key = %q (%v), want %q", id, err, a.ID)
	}
}

func TestJSONFile_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	snap, err := NewJSONFile(filepath.Join(dir, "absent.json")).Load()
	if err != nil || snap != nil {
		t.Errorf("Load(absent) = %v, %v; want nil, nil", snap, err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	if _, err := NewJSONFile(corrupt).Load(); err == nil {
		t.Error("Load(corrupt) returned nil error")
	}

	b := New(WithSnapshotter(NewJSONFile(corrupt)))
	if n := len(b.ListTasks()); n != 0 {
		t.Errorf("board from corrupt snapshot has %d tasks, want 0", n)
	}
}

type failingSnapshotter struct{ saves int }

func (f *failingSnapshotter) Load() (*Snapshot, error) { return nil, errors.New("disk on fire") }
func (f *failingSnapshotter) Save(*Snapshot) error {
	f.saves++
	return errors.New("disk full")
}

func TestBoard_PersistenceFailureIsNotFatal(t *testing.T) {
	fs := &failingSnapshotter{}
	b := New(WithSnapshotter(fs))

	tk := b.CreateTask("x", "", "")
	a := b.SpawnAgent("a", agent.Config{})
	if !b.AssignTask(tk.ID, a.ID) {
		t.Fatal("AssignTask returned false")
	}
	if fs.saves != 3 {
		t.Errorf("saves = %d, want 3", fs.saves)
	}
	got, ok := b.GetTask(tk.ID)
	if !ok || got.Status != task.StatusInProgress {
		t.Errorf("task = %+v, want IN_PROGRESS in memory", got)
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	store, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	snap, err := store.Load()
	if err != nil || snap != nil {
		t.Fatalf("Load(empty) = %v, %v; want nil, nil", snap, err)
	}

	b := New(WithSnapshotter(store), WithClock(fixedClock()))
	populate(t, b)

	reloaded := New(WithSnapshotter(store))
	if diff := cmp.Diff(b.Snapshot(), reloaded.Snapshot()); diff != "" {
		t.Errorf("reloaded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_SaveReplacesRows(t *testing.T) {
	store, err := NewSQLite(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &Snapshot{Tasks: []task.Task{
		{ID: "a", Title: "a", Status: task.StatusTodo, Priority: task.PriorityLow, Dependencies: []string{}, Subtasks: []string{}, CreatedAt: now, UpdatedAt: now},
		{ID: "b", Title: "b", Status: task.StatusTodo, Priority: task.PriorityLow, Dependencies: []string{"a"}, Subtasks: []string{}, CreatedAt: now, UpdatedAt: now},
	}}
	if err := store.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := &Snapshot{Tasks: first.Tasks[1:]}
	if err := store.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(second.Tasks, got.Tasks); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_CorruptDependenciesFailLoad(t *testing.T) {
	store, err := NewSQLite(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	b := New(WithSnapshotter(store))
	dep := b.CreateTask("dep", "", "")
	gated := b.CreateTask("gated", "", "")
	if !b.AddDependency(gated.ID, dep.ID) {
		t.Fatal("AddDependency returned false")
	}
	if _, err := store.DB().Exec(`UPDATE tasks SET dependencies = '["unterminated' WHERE id = ?`, gated.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := store.Load(); err == nil {
		t.Fatal("Load with corrupt dependencies returned nil error")
	}
	reloaded := New(WithSnapshotter(store))
	if n := len(reloaded.ListTasks()); n != 0 {
		t.Errorf("board from corrupt snapshot has %d tasks, want 0", n)
	}
}
