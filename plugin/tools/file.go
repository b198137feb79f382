// Package tools provides the built-in tools registered for every agent.
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath maps a tool-supplied path onto the filesystem. Without a
// workspace the path is used as given; with one it is joined onto the
// workspace and traversal outside it is rejected.
func resolvePath(workspace, path string) (string, error) {
	if workspace == "" {
		return path, nil
	}
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(workspace, filepath.Clean(path))
	}
	absResolved, err := filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	wsResolved, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("invalid workspace: %w", err)
	}
	if !strings.HasPrefix(absResolved, wsResolved+string(filepath.Separator)) && absResolved != wsResolved {
		return "", fmt.Errorf("path outside workspace: %s", path)
	}
	return absResolved, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// ReadFile is the read_file tool.
type ReadFile struct {
	Workspace string
}

func (t *ReadFile) Name() string        { return "read_file" }
func (t *ReadFile) Description() string { return "Read the contents of a file" }
func (t *ReadFile) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the file"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFile) Execute(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path")
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs, err := resolvePath(t.Workspace, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// WriteFile is the write_file tool.
type WriteFile struct {
	Workspace string
}

func (t *WriteFile) Name() string { return "write_file" }
func (t *WriteFile) Description() string {
	return "Write content to a file, creating parent directories as needed"
}
func (t *WriteFile) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to the file"},
			"content": map[string]any{"type": "string", "description": "Content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFile) Execute(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path")
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	content := stringArg(args, "content")
	abs, err := resolvePath(t.Workspace, path)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(abs); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return "Successfully wrote to " + path, nil
}

// ListFiles is the list_files tool.
type ListFiles struct {
	Workspace string
}

func (t *ListFiles) Name() string        { return "list_files" }
func (t *ListFiles) Description() string { return "List the entries of a directory (default: current directory)" }
func (t *ListFiles) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory path (default: .)"},
		},
	}
}

func (t *ListFiles) Execute(_ context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path")
	if path == "" {
		path = "."
	}
	abs, err := resolvePath(t.Workspace, path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("list directory: %w", err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}
	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name(), info.Size())
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
