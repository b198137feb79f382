package plugin

import "context"

type contextKey int

const (
	contextKeyAgentID contextKey = iota
	contextKeyTaskID
)

// WithAgentID returns a context carrying the id of the agent invoking a tool.
func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyAgentID, id)
}

// AgentIDFromContext returns the invoking agent's id, if set.
func AgentIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextKeyAgentID).(string)
	return v, ok && v != ""
}

// WithTaskID returns a context carrying the id of the task a tool runs for.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyTaskID, id)
}

// TaskIDFromContext returns the current task id, if set.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextKeyTaskID).(string)
	return v, ok && v != ""
}
