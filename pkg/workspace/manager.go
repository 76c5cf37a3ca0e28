// Package workspace manages per-run directories. A workspace is uniquely
// owned by one run, exists from the moment the run is first claimed, and
// is never deleted by the manager: retention is someone else's concern.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/models"
)

// Well-known file names inside a workspace.
const (
	SourceVideoName = "source.mp4"
	FinalReelName   = "final-reel.mp4"
	SideGenDirName  = "sidegen"
	JobsFileName    = "jobs.json"
)

// Manager creates and enumerates run workspaces under one runs root.
type Manager struct {
	root   string
	store  *checkpoint.Store
	logger *slog.Logger
}

// NewManager creates a manager over the runs root directory.
func NewManager(root string, store *checkpoint.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: root, store: store, logger: logger.With("component", "workspace")}
}

// Root returns the runs root directory.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates the run's directory if absent and returns its handle.
// The caller must Close the handle on scope exit to persist final state.
func (m *Manager) Acquire(runID string) (*Workspace, error) {
	dir := filepath.Join(m.root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("acquire workspace %s: %w", runID, err)
	}
	return &Workspace{runID: runID, dir: dir, store: m.store, logger: m.logger}, nil
}

// List returns the run ids of all existing workspaces, sorted. The run-id
// format makes the sort chronological.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Workspace is a handle on one run's directory. It exposes path helpers
// only; file writes go through the atomic store in the owning components.
type Workspace struct {
	runID  string
	dir    string
	store  *checkpoint.Store
	logger *slog.Logger
}

// RunID returns the owning run's id.
func (w *Workspace) RunID() string { return w.runID }

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// RunDocPath returns the run-metadata document path.
func (w *Workspace) RunDocPath() string {
	return filepath.Join(w.dir, checkpoint.RunDocName)
}

// JournalPath returns the event journal path.
func (w *Workspace) JournalPath() string {
	return filepath.Join(w.dir, checkpoint.JournalName)
}

// SourceVideoPath returns where the fetched source video lives.
func (w *Workspace) SourceVideoPath() string {
	return filepath.Join(w.dir, SourceVideoName)
}

// FinalReelPath returns the terminal artifact path.
func (w *Workspace) FinalReelPath() string {
	return filepath.Join(w.dir, FinalReelName)
}

// SideGenDir returns the side-generation directory.
func (w *Workspace) SideGenDir() string {
	return filepath.Join(w.dir, SideGenDirName)
}

// JobsFilePath returns the side-generation jobs file path.
func (w *Workspace) JobsFilePath() string {
	return filepath.Join(w.SideGenDir(), JobsFileName)
}

// ArtifactPath returns the path of a named artifact in the workspace.
func (w *Workspace) ArtifactPath(name string) string {
	return filepath.Join(w.dir, name)
}

// Close persists the final run state. Contents are never deleted.
func (w *Workspace) Close(final *models.RunState) error {
	if final == nil {
		return nil
	}
	if err := w.store.SaveState(w.runID, final); err != nil {
		return fmt.Errorf("persist final state for %s: %w", w.runID, err)
	}
	w.logger.Debug("Workspace closed", "run_id", w.runID, "stage", final.Stage, "status", final.Status)
	return nil
}
