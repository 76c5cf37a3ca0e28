// Package checkpoint persists per-run state: the run.md front-matter
// document, the line-oriented event journal, and the incomplete-run scan
// that feeds crash recovery. Full-document writes are atomic; journal
// writes are appends.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reelworks/reeler/pkg/atomicfile"
	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
)

// On-disk names inside a run workspace.
const (
	RunDocName  = "run.md"
	JournalName = "events.log"
)

// Store reads and writes run-metadata documents and event journals under a
// runs root directory (one subdirectory per run).
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a store rooted at the runs directory.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger.With("component", "checkpoint")}
}

// RunDocPath returns the run-metadata document path for a run.
func (s *Store) RunDocPath(runID string) string {
	return filepath.Join(s.root, runID, RunDocName)
}

// JournalPath returns the event journal path for a run.
func (s *Store) JournalPath(runID string) string {
	return filepath.Join(s.root, runID, JournalName)
}

// SaveState rewrites the run document's front matter, preserving the prose
// body and any unknown keys already present.
func (s *Store) SaveState(runID string, state *models.RunState) error {
	path := s.RunDocPath(runID)

	doc := &Document{Extra: map[string]any{}}
	if data, err := os.ReadFile(path); err == nil {
		doc = ParseDocument(data)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	state.UpdatedAt = time.Now().UTC()
	doc.State = state

	out, err := doc.Render()
	if err != nil {
		return err
	}
	return atomicfile.WriteAtomic(path, out)
}

// LoadState reads the run's persisted state. Missing, empty, or
// unparseable documents yield the absent-state marker rather than an
// error; I/O failures other than absence are returned.
func (s *Store) LoadState(runID string) (*models.RunState, bool, error) {
	path := s.RunDocPath(runID)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	doc := ParseDocument(data)
	if doc.State == nil {
		s.logger.Warn("Run document has no usable front matter", "run_id", runID, "path", path)
		return nil, false, nil
	}
	return doc.State, true, nil
}

// AppendNote appends one line to the run document's prose body.
func (s *Store) AppendNote(runID, note string) error {
	path := s.RunDocPath(runID)

	doc := &Document{Extra: map[string]any{}}
	if data, err := os.ReadFile(path); err == nil {
		doc = ParseDocument(data)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if doc.Body != "" && !strings.HasSuffix(doc.Body, "\n") {
		doc.Body += "\n"
	}
	doc.Body += note + "\n"

	out, err := doc.Render()
	if err != nil {
		return err
	}
	return atomicfile.WriteAtomic(path, out)
}

// AppendEvent appends one journal line:
// <ISO8601> | <namespace.event> | <stage> | <compact_json>
func (s *Store) AppendEvent(runID string, ev events.Event) error {
	stage := string(ev.Stage)
	if stage == "" {
		stage = "-"
	}
	line := fmt.Sprintf("%s | %s | %s | %s",
		ev.Timestamp.UTC().Format(time.RFC3339), ev.Name, stage, ev.DataJSON())

	// Queue events can arrive before the run is first claimed and its
	// workspace created.
	path := s.JournalPath(runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir for %s: %w", runID, err)
	}
	return atomicfile.AppendLine(path, []byte(line))
}

// ReadJournal returns up to maxLines of the run's most recent journal
// lines, oldest first. maxLines <= 0 returns everything.
func (s *Store) ReadJournal(runID string, maxLines int) ([]string, error) {
	data, err := os.ReadFile(s.JournalPath(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// ListIncompleteRuns scans the runs root and returns, in run-id order, the
// states of runs that are neither finished nor terminally failed.
// Unreadable documents are logged and skipped.
func (s *Store) ListIncompleteRuns() ([]*models.RunState, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan runs root %s: %w", s.root, err)
	}

	var out []*models.RunState
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		state, ok, err := s.LoadState(entry.Name())
		if err != nil {
			s.logger.Warn("Skipping unreadable run", "run_id", entry.Name(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		if state.Status != models.RunStatusRunning || state.Finished() {
			continue
		}
		out = append(out, state)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}
