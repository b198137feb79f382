// Package memory stores what agents have done and what they have learned:
// an append-only activity log grouped by day, and a single body of durable
// knowledge fed into every agent prompt.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Store is implemented by FileStore and SQLiteStore.
type Store interface {
	// AddLog appends an entry to today's activity log.
	AddLog(ctx context.Context, content, agentID string) error

	// RecentLogs returns up to days daily logs, newest first. Days without
	// entries are skipped.
	RecentLogs(ctx context.Context, days int) ([]string, error)

	// AddKnowledge appends a durable fact.
	AddKnowledge(ctx context.Context, content string) error

	// Knowledge returns every recorded fact.
	Knowledge(ctx context.Context) (string, error)
}

const (
	dayLayout   = "2006-01-02"
	clockLayout = "15:04:05"
)

// Option configures a store.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for background errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// formatLog renders one log line: "- [15:04:05] (agent) content".
func formatLog(at time.Time, agentID, content string) string {
	content = strings.ReplaceAll(strings.TrimSpace(content), "\n", " ")
	if agentID == "" {
		return "- [" + at.Format(clockLayout) + "] " + content
	}
	return "- [" + at.Format(clockLayout) + "] (" + agentID + ") " + content
}

func formatFact(content string) string {
	return "- " + strings.ReplaceAll(strings.TrimSpace(content), "\n", " ")
}

// pastDays returns the day keys from today back days-1 days.
func pastDays(now time.Time, days int) []string {
	keys := make([]string, 0, days)
	for i := range days {
		keys = append(keys, now.AddDate(0, 0, -i).Format(dayLayout))
	}
	return keys
}
