package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/puppeteer/plugin"
)

// helper: create a temp workspace directory.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tools-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// ---------- ReadFile ----------

func TestReadFile_Execute(t *testing.T) {
	ws := setupWorkspace(t)
	tool := &ReadFile{Workspace: ws}
	ctx := context.Background()

	t.Run("read existing file", func(t *testing.T) {
		content := "hello world"
		if err := os.WriteFile(filepath.Join(ws, "test.txt"), []byte(content), 0o644); err != nil {
			t.Fatalf("write test file: %v", err)
		}
		result, err := tool.Execute(ctx, map[string]any{"path": "test.txt"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != content {
			t.Errorf("expected %q, got %q", content, result)
		}
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{"path": "../../../etc/passwd"})
		if err == nil {
			t.Fatal("expected error for path traversal")
		}
	})

	t.Run("missing path arg", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{})
		if err == nil {
			t.Fatal("expected error for missing path")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{"path": "no-such-file.txt"})
		if err == nil {
			t.Fatal("expected error for non-existent file")
		}
	})
}

func TestReadFile_NoWorkspaceUsesPathAsGiven(t *testing.T) {
	path := filepath.Join(setupWorkspace(t), "abs.txt")
	if err := os.WriteFile(path, []byte("abs"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err := (&ReadFile{}).Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "abs" {
		t.Errorf("expected %q, got %q", "abs", result)
	}
}

// ---------- WriteFile ----------

func TestWriteFile_Execute(t *testing.T) {
	ws := setupWorkspace(t)
	tool := &WriteFile{Workspace: ws}
	ctx := context.Background()

	t.Run("write file", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{
			"path":    "output.txt",
			"content": "written content",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "Successfully wrote to output.txt" {
			t.Errorf("unexpected result %q", result)
		}
		data, err := os.ReadFile(filepath.Join(ws, "output.txt"))
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if string(data) != "written content" {
			t.Errorf("expected %q on disk, got %q", "written content", string(data))
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{
			"path":    "sub/dir/deep.txt",
			"content": "nested",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(ws, "sub", "dir", "deep.txt"))
		if err != nil {
			t.Fatalf("read back nested: %v", err)
		}
		if string(data) != "nested" {
			t.Errorf("expected %q, got %q", "nested", string(data))
		}
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{
			"path":    "../../escape.txt",
			"content": "bad",
		})
		if err == nil {
			t.Fatal("expected error for path traversal")
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{"content": "no path"})
		if err == nil {
			t.Fatal("expected error for missing path")
		}
	})
}

// ---------- ListFiles ----------

func TestListFiles_Execute(t *testing.T) {
	ws := setupWorkspace(t)
	tool := &ListFiles{Workspace: ws}
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(ws, "a.txt"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(ws, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Run("default path lists workspace root", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "a.txt (3 bytes)\nsubdir/"
		if result != want {
			t.Errorf("expected %q, got %q", want, result)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{"path": "subdir"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "(empty directory)" {
			t.Errorf("expected empty marker, got %q", result)
		}
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]any{"path": "../.."}); err == nil {
			t.Fatal("expected error for path traversal")
		}
	})
}

// ---------- RunCommand ----------

func TestRunCommand_Execute(t *testing.T) {
	ws := setupWorkspace(t)
	tool := &RunCommand{Workspace: ws}
	ctx := context.Background()

	t.Run("stdout", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{"command": "echo hello"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(result) != "hello" {
			t.Errorf("expected hello, got %q", result)
		}
	})

	t.Run("runs in workspace", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(ws, "marker"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
		result, err := tool.Execute(ctx, map[string]any{"command": "ls"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "marker") {
			t.Errorf("expected listing to contain marker, got %q", result)
		}
	})

	t.Run("stderr when stdout empty", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{"command": "echo oops 1>&2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(result) != "oops" {
			t.Errorf("expected oops, got %q", result)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{"command": "echo failing; exit 42"})
		if err == nil {
			t.Fatal("expected error for non-zero exit")
		}
		if !strings.Contains(err.Error(), "exit status 42") || !strings.Contains(err.Error(), "failing") {
			t.Errorf("unexpected error %q", err)
		}
	})

	t.Run("missing command", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]any{}); err == nil {
			t.Fatal("expected error for missing command")
		}
	})
}

type recordingExecutor struct {
	command string
	timeout time.Duration
}

func (r *recordingExecutor) Exec(_ context.Context, command string, timeout time.Duration) (string, string, int, error) {
	r.command = command
	r.timeout = timeout
	return "from executor", "", 0, nil
}

func TestRunCommand_UsesExecutorAndClampsTimeout(t *testing.T) {
	exe := &recordingExecutor{}
	tool := &RunCommand{Executor: exe}

	result, err := tool.Execute(context.Background(), map[string]any{"command": "make test", "timeout": float64(9999)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from executor" {
		t.Errorf("expected executor output, got %q", result)
	}
	if exe.command != "make test" {
		t.Errorf("command = %q, want make test", exe.command)
	}
	if exe.timeout != maxCommandTimeout*time.Second {
		t.Errorf("timeout = %v, want %v", exe.timeout, maxCommandTimeout*time.Second)
	}

	if _, err := tool.Execute(context.Background(), map[string]any{"command": "true"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exe.timeout != defaultCommandTimeout*time.Second {
		t.Errorf("timeout = %v, want %v", exe.timeout, defaultCommandTimeout*time.Second)
	}
}

func TestHostExecutor_Timeout(t *testing.T) {
	_, _, _, err := (&HostExecutor{}).Exec(context.Background(), "sleep 5", 50*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

// ---------- WebFetch ----------

func TestWebFetch_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><head><title>T</title><style>body{}</style></head>
<body><h1>Heading</h1><script>var x = 1;</script><p>First   paragraph.</p><p>Second</p></body></html>`)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "just <b>text</b>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tool := &WebFetch{}
	ctx := context.Background()

	t.Run("html reduced to text", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{"url": srv.URL + "/page"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(result, "HTTP 200") {
			t.Errorf("expected status line, got %q", result)
		}
		for _, want := range []string{"Heading", "First paragraph.", "Second"} {
			if !strings.Contains(result, want) {
				t.Errorf("expected %q in %q", want, result)
			}
		}
		for _, bad := range []string{"var x", "body{}", "<p>"} {
			if strings.Contains(result, bad) {
				t.Errorf("unexpected %q in %q", bad, result)
			}
		}
	})

	t.Run("plain text kept", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{"url": srv.URL + "/plain"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasSuffix(result, "just <b>text</b>") {
			t.Errorf("unexpected result %q", result)
		}
	})

	t.Run("status reported", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]any{"url": srv.URL + "/missing"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(result, "HTTP 404") {
			t.Errorf("expected 404 status line, got %q", result)
		}
	})

	t.Run("missing url", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]any{}); err == nil {
			t.Fatal("expected error for missing url")
		}
	})
}

// ---------- Builtins ----------

func TestBuiltins(t *testing.T) {
	reg := plugin.NewRegistry(Builtins(Config{Workspace: setupWorkspace(t)})...)
	want := "list_files,read_file,run_command,web_fetch,write_file"
	if got := strings.Join(reg.Names(), ","); got != want {
		t.Errorf("Names = %q, want %q", got, want)
	}

	withBrowser := Builtins(Config{Browser: NewBrowserManager(true)})
	if last := withBrowser[len(withBrowser)-1]; last.Name() != "browse_page" {
		t.Errorf("last tool = %q, want browse_page", last.Name())
	}
}

func TestBuiltins_ErrorsBecomeText(t *testing.T) {
	reg := plugin.NewRegistry(Builtins(Config{Workspace: setupWorkspace(t)})...)
	tool, ok := reg.Get("read_file")
	if !ok {
		t.Fatal("read_file not registered")
	}
	got := plugin.Invoke(context.Background(), tool, map[string]any{"path": "nope.txt"}, 0)
	if !strings.HasPrefix(got, "Error executing read_file: ") {
		t.Errorf("Invoke = %q", got)
	}
}

func TestBrowserManager_ShutdownWithoutStart(t *testing.T) {
	bm := NewBrowserManager(true)
	bm.Release("nobody")
	if err := bm.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
