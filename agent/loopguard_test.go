package agent

import (
	"strings"
	"testing"
)

func TestLoopGuard(t *testing.T) {
	type call struct {
		tool   string
		args   map[string]any
		result string
		failed bool
	}
	read := func(path string) call {
		return call{tool: "read_file", args: map[string]any{"path": path}, result: "contents of " + path}
	}
	tests := []struct {
		name  string
		calls []call
		want  string // substring of the loop description; empty for none
	}{
		{name: "empty"},
		{
			name:  "varied calls",
			calls: []call{read("a"), read("b"), read("c"), read("d")},
		},
		{
			name:  "two repeats",
			calls: []call{read("a"), read("a")},
		},
		{
			name:  "three repeats",
			calls: []call{read("a"), read("a"), read("a")},
			want:  "read_file called with the same arguments 3 times in a row",
		},
		{
			name: "same error twice",
			calls: []call{
				{tool: "run_command", args: map[string]any{"command": "make"}, result: "Error executing run_command: exit status 2", failed: true},
				read("Makefile"),
				{tool: "run_command", args: map[string]any{"command": "make"}, result: "Error executing run_command: exit status 2", failed: true},
			},
			want: "run_command failed the same way 2 times",
		},
		{
			name: "different errors",
			calls: []call{
				{tool: "run_command", args: map[string]any{"command": "make"}, result: "Error executing run_command: exit status 2", failed: true},
				{tool: "run_command", args: map[string]any{"command": "make"}, result: "Error executing run_command: exit status 1", failed: true},
			},
		},
		{
			name:  "alternating",
			calls: []call{read("a"), read("b"), read("a"), read("b"), read("a"), read("b")},
			want:  "alternating between read_file and read_file 3 times",
		},
		{
			name:  "short alternation",
			calls: []call{read("a"), read("b"), read("a"), read("b")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newLoopGuard(LoopGuardConfig{})
			for _, c := range tt.calls {
				g.record("task-1", c.tool, c.args, c.result, c.failed)
			}
			msg, looping := g.check()
			if looping != (tt.want != "") {
				t.Fatalf("check = %q, %v; want looping=%v", msg, looping, tt.want != "")
			}
			if !strings.Contains(msg, tt.want) {
				t.Errorf("check = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestLoopGuard_NewTaskResets(t *testing.T) {
	g := newLoopGuard(LoopGuardConfig{MaxRepeats: 2})
	args := map[string]any{"path": "."}
	g.record("task-1", "list_files", args, ".", false)
	g.record("task-2", "list_files", args, ".", false)
	if msg, looping := g.check(); looping {
		t.Errorf("check after task switch = %q", msg)
	}
	g.record("task-2", "list_files", args, ".", false)
	if _, looping := g.check(); !looping {
		t.Error("check did not trip on second repeat within task-2")
	}
	g.reset()
	if _, looping := g.check(); looping {
		t.Error("check tripped after reset")
	}
}
