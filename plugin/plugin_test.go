package plugin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeTool struct {
	name string
	desc string
	fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (f *fakeTool) Name() string           { return f.name }
func (f *fakeTool) Description() string    { return f.desc }
func (f *fakeTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.fn(ctx, args)
}

func echoTool(name string) *fakeTool {
	return &fakeTool{name: name, desc: "echoes " + name, fn: func(_ context.Context, args map[string]any) (string, error) {
		s, _ := args["text"].(string)
		return name + ":" + s, nil
	}}
}

func TestRegistry_RegisterGet(t *testing.T) {
	r := NewRegistry(echoTool("b"), echoTool("a"))

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) reported ok")
	}
	tool, ok := r.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	if tool.Name() != "a" {
		t.Errorf("Name = %q, want a", tool.Name())
	}

	if got := strings.Join(r.Names(), ","); got != "a,b" {
		t.Errorf("Names = %q, want a,b", got)
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry(echoTool("a"))
	r.Register(&fakeTool{name: "a", desc: "replacement", fn: func(context.Context, map[string]any) (string, error) {
		return "new", nil
	}})

	tool, _ := r.Get("a")
	if tool.Description() != "replacement" {
		t.Errorf("Description = %q, want replacement", tool.Description())
	}
	if n := len(r.List()); n != 1 {
		t.Errorf("len(List) = %d, want 1", n)
	}
}

func TestRegistry_Catalog(t *testing.T) {
	r := NewRegistry(echoTool("write_file"), echoTool("read_file"))
	want := "- read_file: echoes read_file\n- write_file: echoes write_file"
	if got := r.Catalog(); got != want {
		t.Errorf("Catalog =\n%s\nwant\n%s", got, want)
	}
}

func TestInvoke_Success(t *testing.T) {
	got := Invoke(context.Background(), echoTool("echo"), map[string]any{"text": "hi"}, 0)
	if got != "echo:hi" {
		t.Errorf("Invoke = %q, want echo:hi", got)
	}
	if got := Invoke(context.Background(), echoTool("echo"), nil, 0); got != "echo:" {
		t.Errorf("Invoke(nil args) = %q, want echo:", got)
	}
}

func TestInvoke_ErrorBecomesText(t *testing.T) {
	tool := &fakeTool{name: "broken", fn: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("no such file")
	}}
	got := Invoke(context.Background(), tool, nil, 0)
	if got != "Error executing broken: no such file" {
		t.Errorf("Invoke = %q", got)
	}
}

func TestInvoke_PanicBecomesText(t *testing.T) {
	tool := &fakeTool{name: "boom", fn: func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}}
	got := Invoke(context.Background(), tool, nil, 0)
	if !strings.Contains(got, "Error executing boom: panic: kaboom") {
		t.Errorf("Invoke = %q", got)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	tool := &fakeTool{name: "slow", fn: func(ctx context.Context, _ map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	start := time.Now()
	got := Invoke(context.Background(), tool, nil, 20*time.Millisecond)
	if !strings.Contains(got, "timed out after 20ms") {
		t.Errorf("Invoke = %q, want timeout text", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Invoke took %v", elapsed)
	}
}

func TestIsError(t *testing.T) {
	failed := Invoke(context.Background(), &fakeTool{name: "x", fn: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("nope")
	}}, nil, 0)
	if !IsError(failed) {
		t.Errorf("IsError(%q) = false", failed)
	}
	if IsError("echo:hi") {
		t.Error("IsError reported a normal result as failure")
	}
}
