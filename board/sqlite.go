package board

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/task"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	seq               INTEGER NOT NULL,
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	status            TEXT NOT NULL,
	status_message    TEXT NOT NULL DEFAULT '',
	priority          TEXT NOT NULL DEFAULT 'MEDIUM',
	dependencies      TEXT NOT NULL DEFAULT '[]',
	subtasks          TEXT NOT NULL DEFAULT '[]',
	parent_id         TEXT NOT NULL DEFAULT '',
	assigned_agent_id TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	seq              INTEGER NOT NULL,
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	status           TEXT NOT NULL,
	current_task_id  TEXT NOT NULL DEFAULT '',
	current_activity TEXT NOT NULL DEFAULT '',
	pending_input    TEXT NOT NULL DEFAULT '',
	provider         TEXT NOT NULL DEFAULT '',
	model            TEXT NOT NULL DEFAULT '',
	api_key          TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);
`

// SQLite stores snapshots in a SQLite database, one row per record. Each
// Save rewrites both tables inside a single transaction.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at dbPath and ensures the
// tables exist. The caller is responsible for calling Close.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLite) Close() error { return s.db.Close() }

// DB exposes the connection so other stores can share the database file.
func (s *SQLite) DB() *sql.DB { return s.db }

// Load reads every row back in insertion order. Empty tables yield nil, nil.
func (s *SQLite) Load() (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.Query(`SELECT id, title, status, status_message, priority, dependencies,
		subtasks, parent_id, assigned_agent_id, created_at, updated_at FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		snap.Tasks = append(snap.Tasks, *t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT id, name, status, current_task_id, current_activity, pending_input,
		provider, model, api_key, created_at, updated_at FROM agents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a agent.Agent
		var status string
		if err := rows.Scan(&a.ID, &a.Name, &status, &a.CurrentTaskID, &a.CurrentActivity, &a.PendingInput,
			&a.Config.Provider, &a.Config.Model, &a.Config.APIKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Status = agent.Status(status)
		snap.Agents = append(snap.Agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	if len(snap.Tasks) == 0 && len(snap.Agents) == 0 {
		return nil, nil
	}
	return snap, nil
}

// Save replaces the stored rows with snap.
func (s *SQLite) Save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return fmt.Errorf("clear agents: %w", err)
	}

	for i, t := range snap.Tasks {
		deps, _ := json.Marshal(nonNil(t.Dependencies))
		subs, _ := json.Marshal(nonNil(t.Subtasks))
		_, err := tx.Exec(`
			INSERT INTO tasks
				(seq, id, title, status, status_message, priority, dependencies, subtasks,
				 parent_id, assigned_agent_id, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			i, t.ID, t.Title, string(t.Status), t.StatusMessage, string(t.Priority),
			string(deps), string(subs), t.ParentID, t.AssignedAgentID,
			t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	for i, a := range snap.Agents {
		_, err := tx.Exec(`
			INSERT INTO agents
				(seq, id, name, status, current_task_id, current_activity, pending_input,
				 provider, model, api_key, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			i, a.ID, a.Name, string(a.Status), a.CurrentTaskID, a.CurrentActivity, a.PendingInput,
			a.Config.Provider, a.Config.Model, a.Config.APIKey,
			a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*task.Task, error) {
	var t task.Task
	var status, priority, depsJSON, subsJSON string
	err := s.Scan(
		&t.ID, &t.Title, &status, &t.StatusMessage, &priority,
		&depsJSON, &subsJSON, &t.ParentID, &t.AssignedAgentID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	if err := json.Unmarshal([]byte(depsJSON), &t.Dependencies); err != nil {
		return nil, fmt.Errorf("task %s dependencies: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(subsJSON), &t.Subtasks); err != nil {
		return nil, fmt.Errorf("task %s subtasks: %w", t.ID, err)
	}
	t.Dependencies = nonNil(t.Dependencies)
	t.Subtasks = nonNil(t.Subtasks)
	return &t, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
