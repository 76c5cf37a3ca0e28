package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	store := checkpoint.NewStore(root, nil)
	return NewManager(root, store, nil), root
}

func TestAcquireCreatesDirectory(t *testing.T) {
	m, root := newTestManager(t)

	ws, err := m.Acquire("20260314-150405-000123-deadbeef")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "20260314-150405-000123-deadbeef"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "20260314-150405-000123-deadbeef", ws.RunID())
}

func TestAcquireIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Acquire("run-a")
	require.NoError(t, err)
	second, err := m.Acquire("run-a")
	require.NoError(t, err)

	assert.Equal(t, first.Dir(), second.Dir())
}

func TestPathHelpers(t *testing.T) {
	m, root := newTestManager(t)
	ws, err := m.Acquire("run-a")
	require.NoError(t, err)

	base := filepath.Join(root, "run-a")
	assert.Equal(t, filepath.Join(base, "run.md"), ws.RunDocPath())
	assert.Equal(t, filepath.Join(base, "events.log"), ws.JournalPath())
	assert.Equal(t, filepath.Join(base, "source.mp4"), ws.SourceVideoPath())
	assert.Equal(t, filepath.Join(base, "final-reel.mp4"), ws.FinalReelPath())
	assert.Equal(t, filepath.Join(base, "sidegen"), ws.SideGenDir())
	assert.Equal(t, filepath.Join(base, "sidegen", "jobs.json"), ws.JobsFilePath())
	assert.Equal(t, filepath.Join(base, "transcript.md"), ws.ArtifactPath("transcript.md"))
}

func TestClosePersistsFinalState(t *testing.T) {
	root := t.TempDir()
	store := checkpoint.NewStore(root, nil)
	m := NewManager(root, store, nil)

	ws, err := m.Acquire("run-a")
	require.NoError(t, err)

	state := models.NewRunState("run-a", "sha256:abc")
	state.MarkCompleted(models.StageRouter)
	state.Stage = models.StageResearch
	require.NoError(t, ws.Close(state))

	loaded, found, err := store.LoadState("run-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StageResearch, loaded.Stage)
	assert.Equal(t, []models.PipelineStage{models.StageRouter}, loaded.StagesCompleted)
}

func TestCloseWithNilStateIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	ws, err := m.Acquire("run-a")
	require.NoError(t, err)

	require.NoError(t, ws.Close(nil))

	_, err = os.Stat(ws.RunDocPath())
	assert.True(t, os.IsNotExist(err))
}

func TestListReturnsSortedRunIDs(t *testing.T) {
	m, root := newTestManager(t)

	for _, id := range []string{"20260314-2", "20260313-1", "20260315-3"} {
		_, err := m.Acquire(id)
		require.NoError(t, err)
	}
	// Stray files are not workspaces.
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	ids, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260313-1", "20260314-2", "20260315-3"}, ids)
}

func TestListMissingRootReturnsEmpty(t *testing.T) {
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "absent"), nil)
	m := NewManager(filepath.Join(t.TempDir(), "absent"), store, nil)

	ids, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
