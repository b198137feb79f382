// Package plugin defines the tool interface agents invoke while working on
// a task, and the registry the agent loop looks tools up in.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tool is a named, side-effecting operation an agent can choose to run.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string

	// Description returns a human-readable description for prompts.
	Description() string

	// Schema returns the JSON Schema of the arguments object.
	Schema() map[string]any

	// Execute runs the tool with the given arguments and returns its textual result.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Invoke runs tool and always returns text. Errors, panics and, when
// timeout > 0, a timeout become "Error executing <name>: ..." results.
// Tools that ignore ctx keep running after a timeout; their result is
// discarded.
func Invoke(ctx context.Context, tool Tool, args map[string]any, timeout time.Duration) string {
	if args == nil {
		args = map[string]any{}
	}
	if timeout <= 0 {
		return invoke(ctx, tool, args)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan string, 1)
	go func() { done <- invoke(ctx, tool, args) }()
	select {
	case out := <-done:
		if ctx.Err() == nil {
			return out
		}
	case <-ctx.Done():
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errorText(tool.Name(), fmt.Errorf("timed out after %s", timeout))
	}
	return errorText(tool.Name(), ctx.Err())
}

func invoke(ctx context.Context, tool Tool, args map[string]any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = errorText(tool.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	res, err := tool.Execute(ctx, args)
	if err != nil {
		return errorText(tool.Name(), err)
	}
	return res
}

func errorText(name string, err error) string {
	return fmt.Sprintf("Error executing %s: %v", name, err)
}

// IsError reports whether result is the failure text produced by Invoke.
func IsError(result string) bool {
	return strings.HasPrefix(result, "Error executing ")
}
