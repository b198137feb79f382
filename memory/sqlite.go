package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_logs (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	agent_id   TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	day        TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_logs_day ON memory_logs(day);
CREATE TABLE IF NOT EXISTS memory_knowledge (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// SQLiteStore keeps memory in the memory_logs and memory_knowledge tables.
// It renders entries in the same markdown shape as FileStore.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates the memory tables in db if needed. The caller owns db.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("memory: create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: o.now}, nil
}

// AddLog implements Store.
func (s *SQLiteStore) AddLog(ctx context.Context, content, agentID string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_logs (id, agent_id, content, day, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), agentID, content, now.Format(dayLayout), now,
	)
	if err != nil {
		return fmt.Errorf("memory: add log: %w", err)
	}
	return nil
}

// RecentLogs implements Store.
func (s *SQLiteStore) RecentLogs(ctx context.Context, days int) ([]string, error) {
	var out []string
	for _, day := range pastDays(s.now(), days) {
		log, err := s.dayLog(ctx, day)
		if err != nil {
			return nil, err
		}
		if log != "" {
			out = append(out, log)
		}
	}
	return out, nil
}

func (s *SQLiteStore) dayLog(ctx context.Context, day string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, content, created_at FROM memory_logs WHERE day = ? ORDER BY seq`, day)
	if err != nil {
		return "", fmt.Errorf("memory: query logs %s: %w", day, err)
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var agentID, content string
		var at time.Time
		if err := rows.Scan(&agentID, &content, &at); err != nil {
			return "", fmt.Errorf("memory: scan log: %w", err)
		}
		sb.WriteString(formatLog(at.In(s.now().Location()), agentID, content))
		sb.WriteByte('\n')
	}
	return sb.String(), rows.Err()
}

// AddKnowledge implements Store.
func (s *SQLiteStore) AddKnowledge(ctx context.Context, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_knowledge (id, content, created_at) VALUES (?, ?, ?)`,
		uuid.New().String(), content, s.now(),
	)
	if err != nil {
		return fmt.Errorf("memory: add knowledge: %w", err)
	}
	return nil
}

// Knowledge implements Store.
func (s *SQLiteStore) Knowledge(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content FROM memory_knowledge ORDER BY seq`)
	if err != nil {
		return "", fmt.Errorf("memory: query knowledge: %w", err)
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("memory: scan knowledge: %w", err)
		}
		sb.WriteString(formatFact(content))
		sb.WriteByte('\n')
	}
	return sb.String(), rows.Err()
}
