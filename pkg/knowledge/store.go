// Package knowledge holds operator-maintained facts as a flat YAML map.
// Agent prompts read them for context. The file stays human-editable:
// external edits hot-reload through a file watcher, and programmatic
// writes rewrite the document atomically so an editor never sees a
// half-written file.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/reelworks/reeler/pkg/atomicfile"
)

// reloadDebounce collapses the event bursts editors produce into one
// reload.
const reloadDebounce = 500 * time.Millisecond

// Store implements ports.KnowledgeBase over one YAML file.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]string

	watcher *fsnotify.Watcher
}

// NewStore loads the document at path. A missing file is an empty store;
// the file appears on the first Set.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger.With("component", "knowledge"),
	}

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// All returns a copy of every entry.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Set stores key=value and rewrites the backing file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.entries)+1)
	for k, v := range s.entries {
		next[k] = v
	}
	next[key] = value

	if err := s.persist(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// Delete removes key and rewrites the backing file. Deleting an absent
// key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	next := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		if k != key {
			next[k] = v
		}
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// StartWatcher begins hot-reloading on external file changes. It watches
// the parent directory because atomic replaces retire the watched inode.
// The watcher stops when ctx is cancelled.
func (s *Store) StartWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create knowledge watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("create knowledge dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch knowledge dir: %w", err)
	}

	s.watcher = watcher
	s.logger.Info("Watching knowledge base", "path", s.path)
	go s.watchLoop(ctx)
	return nil
}

func (s *Store) watchLoop(ctx context.Context) {
	base := filepath.Base(s.path)
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = s.watcher.Close()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := s.Reload(); err != nil {
					s.logger.Warn("Knowledge reload failed; keeping previous document", "error", err)
				}
			})

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Knowledge watcher error", "error", err)
		}
	}
}

// Reload re-reads the backing file. On failure the previous document
// stays in effect.
func (s *Store) Reload() error {
	entries, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info("Knowledge base reloaded", "entries", len(entries))
	return nil
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}

	entries := map[string]string{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *Store) persist(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create knowledge dir: %w", err)
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal knowledge base: %w", err)
	}
	if err := atomicfile.WriteAtomic(s.path, data); err != nil {
		return fmt.Errorf("write knowledge base: %w", err)
	}
	return nil
}
