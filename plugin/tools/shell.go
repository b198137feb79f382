package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultCommandTimeout = 30
	maxCommandTimeout     = 300
)

// Executor runs a shell command and captures its output. exitCode is
// meaningful only when err is nil.
type Executor interface {
	Exec(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)
}

// HostExecutor runs commands with sh -c on the local machine.
type HostExecutor struct {
	Dir string
}

// Exec implements Executor.
func (h *HostExecutor) Exec(ctx context.Context, command string, timeout time.Duration) (string, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if h.Dir != "" {
		cmd.Dir = h.Dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return stdout.String(), stderr.String(), -1, fmt.Errorf("command timed out after %s", timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return "", "", -1, fmt.Errorf("exec command: %w", err)
	}
	return stdout.String(), stderr.String(), 0, nil
}

// RunCommand is the run_command tool. It uses Executor when set, else the host.
type RunCommand struct {
	Workspace string
	Executor  Executor
}

func (t *RunCommand) Name() string { return "run_command" }
func (t *RunCommand) Description() string {
	return "Execute a shell command and return its output"
}
func (t *RunCommand) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to execute"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30, max: 300)"},
		},
		"required": []string{"command"},
	}
}

// Execute returns stdout, or stderr when stdout is empty. A non-zero exit
// is reported as an error carrying the captured output.
func (t *RunCommand) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := stringArg(args, "command")
	if command == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := defaultCommandTimeout
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeout = int(v)
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	exe := t.Executor
	if exe == nil {
		exe = &HostExecutor{Dir: t.Workspace}
	}
	stdout, stderr, code, err := exe.Exec(ctx, command, time.Duration(timeout)*time.Second)
	if err != nil {
		return "", err
	}

	out := stdout
	if strings.TrimSpace(out) == "" {
		out = stderr
	}
	if code != 0 {
		return "", fmt.Errorf("exit status %d: %s", code, strings.TrimSpace(out))
	}
	return out, nil
}
