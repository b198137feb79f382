package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const knowledgeFile = "MEMORY.md"

// FileStore keeps memory as markdown: one <dir>/logs/YYYY-MM-DD.md file per
// day and the knowledge base in <dir>/MEMORY.md. The knowledge file is cached
// and the cache is dropped whenever the file changes on disk, so hand edits
// show up in the next prompt.
type FileStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex // serialises appends

	cacheMu sync.RWMutex
	cached  string
	valid   bool
	gen     uint64 // bumped on every invalidation

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileStore creates the directory layout under dir. If the file watcher
// cannot start, knowledge is read from disk on every call instead.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("memory: create dir: %w", err)
	}
	s := &FileStore{
		dir:    dir,
		logger: o.logger,
		now:    o.now,
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("memory: knowledge watcher unavailable", slog.Any("err", err))
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		s.logger.Warn("memory: knowledge watcher unavailable", slog.Any("err", err))
		return s, nil
	}
	s.watcher = watcher
	s.wg.Add(1)
	go s.watch()
	return s, nil
}

func (s *FileStore) watch() {
	defer s.wg.Done()
	target := filepath.Join(s.dir, knowledgeFile)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == target {
				s.invalidate()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("memory: watcher error", slog.Any("err", err))
			s.invalidate()
		}
	}
}

func (s *FileStore) invalidate() {
	s.cacheMu.Lock()
	s.valid = false
	s.gen++
	s.cacheMu.Unlock()
}

// Close stops the knowledge watcher.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

func (s *FileStore) logPath(day string) string {
	return filepath.Join(s.dir, "logs", day+".md")
}

func (s *FileStore) appendLine(path, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AddLog implements Store.
func (s *FileStore) AddLog(_ context.Context, content, agentID string) error {
	now := s.now()
	if err := s.appendLine(s.logPath(now.Format(dayLayout)), formatLog(now, agentID, content)); err != nil {
		return fmt.Errorf("memory: add log: %w", err)
	}
	return nil
}

// RecentLogs implements Store.
func (s *FileStore) RecentLogs(ctx context.Context, days int) ([]string, error) {
	var out []string
	for _, day := range pastDays(s.now(), days) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(s.logPath(day))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("memory: read log %s: %w", day, err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

// AddKnowledge implements Store.
func (s *FileStore) AddKnowledge(_ context.Context, content string) error {
	if err := s.appendLine(filepath.Join(s.dir, knowledgeFile), formatFact(content)); err != nil {
		return fmt.Errorf("memory: add knowledge: %w", err)
	}
	s.invalidate()
	return nil
}

// Knowledge implements Store.
func (s *FileStore) Knowledge(_ context.Context) (string, error) {
	var gen uint64
	if s.watcher != nil {
		s.cacheMu.RLock()
		if s.valid {
			defer s.cacheMu.RUnlock()
			return s.cached, nil
		}
		gen = s.gen
		s.cacheMu.RUnlock()
	}

	data, err := os.ReadFile(filepath.Join(s.dir, knowledgeFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("memory: read knowledge: %w", err)
	}
	if s.watcher != nil {
		s.cacheMu.Lock()
		// A change seen while reading leaves the cache invalid.
		if s.gen == gen {
			s.cached, s.valid = string(data), true
		}
		s.cacheMu.Unlock()
	}
	return string(data), nil
}
