package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/task"
)

// Snapshot is the full persisted state of a Board, in creation order.
type Snapshot struct {
	Tasks  []task.Task
	Agents []agent.Agent
}

// Snapshotter persists whole-board snapshots.
type Snapshotter interface {
	// Load returns the last saved snapshot, or nil when none exists.
	Load() (*Snapshot, error)

	// Save overwrites the stored snapshot.
	Save(snap *Snapshot) error
}

// wireSnapshot is the on-disk document: each collection is a list of
// [id, record] pairs.
type wireSnapshot struct {
	Tasks  [][2]json.RawMessage `json:"tasks"`
	Agents [][2]json.RawMessage `json:"agents"`
}

// MarshalJSON encodes s as {"tasks": [[id, task], ...], "agents": [[id, agent], ...]}.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	w := wireSnapshot{
		Tasks:  make([][2]json.RawMessage, 0, len(s.Tasks)),
		Agents: make([][2]json.RawMessage, 0, len(s.Agents)),
	}
	for _, t := range s.Tasks {
		pair, err := encodePair(t.ID, t)
		if err != nil {
			return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
		}
		w.Tasks = append(w.Tasks, pair)
	}
	for _, a := range s.Agents {
		pair, err := encodePair(a.ID, a)
		if err != nil {
			return nil, fmt.Errorf("encode agent %s: %w", a.ID, err)
		}
		w.Agents = append(w.Agents, pair)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the pair-list document. The record id wins over the
// pair key when both are present.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Tasks = make([]task.Task, 0, len(w.Tasks))
	for i, pair := range w.Tasks {
		var t task.Task
		id, err := decodePair(pair, &t)
		if err != nil {
			return fmt.Errorf("decode task %d: %w", i, err)
		}
		if t.ID == "" {
			t.ID = id
		}
		if t.Priority == "" {
			t.Priority = task.PriorityMedium
		}
		s.Tasks = append(s.Tasks, t)
	}
	s.Agents = make([]agent.Agent, 0, len(w.Agents))
	for i, pair := range w.Agents {
		var a agent.Agent
		id, err := decodePair(pair, &a)
		if err != nil {
			return fmt.Errorf("decode agent %d: %w", i, err)
		}
		if a.ID == "" {
			a.ID = id
		}
		s.Agents = append(s.Agents, a)
	}
	return nil
}

func encodePair(id string, v any) ([2]json.RawMessage, error) {
	key, err := json.Marshal(id)
	if err != nil {
		return [2]json.RawMessage{}, err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return [2]json.RawMessage{}, err
	}
	return [2]json.RawMessage{key, val}, nil
}

func decodePair(pair [2]json.RawMessage, v any) (string, error) {
	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil {
		return "", fmt.Errorf("key: %w", err)
	}
	if err := json.Unmarshal(pair[1], v); err != nil {
		return "", fmt.Errorf("record %s: %w", id, err)
	}
	return id, nil
}

// JSONFile stores snapshots as a single JSON document on disk.
type JSONFile struct {
	Path string
}

// NewJSONFile returns a JSONFile writing to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

// Load reads the snapshot file. A missing file yields nil, nil.
func (f *JSONFile) Load() (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.Path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", f.Path, err)
	}
	return &snap, nil
}

// Save writes the snapshot to a temp file beside Path and renames it over
// the previous one.
func (f *JSONFile) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
