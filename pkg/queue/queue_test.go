package queue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/reelworks/reeler/pkg/models"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return q
}

func testItem(runID string, at time.Time) *models.QueueItem {
	return &models.QueueItem{
		RunID:       runID,
		SubmittedAt: at,
		SourceURL:   "https://example.com/watch?v=" + runID,
		MessageText: "standard",
	}
}

// listDir returns the .json entries of one queue directory.
func listDir(t *testing.T, q *Queue, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(q.Root(), dir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestEnqueueClaimOrder(t *testing.T) {
	q := newTestQueue(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := q.Enqueue(testItem("r-second", base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = q.Enqueue(testItem("r-first", base))
	require.NoError(t, err)

	claim, err := q.ClaimNext()
	require.NoError(t, err)
	assert.Equal(t, "r-first", claim.Item().RunID, "oldest submission claims first")
	require.NoError(t, claim.Commit())

	claim, err = q.ClaimNext()
	require.NoError(t, err)
	assert.Equal(t, "r-second", claim.Item().RunID)
	require.NoError(t, claim.Commit())
}

func TestClaimMovesItemThroughDirectories(t *testing.T) {
	q := newTestQueue(t)
	name, err := q.Enqueue(testItem("r1", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, []string{name}, listDir(t, q, DirInbox))

	claim, err := q.ClaimNext()
	require.NoError(t, err)

	// In exactly one directory at every observable instant.
	assert.Empty(t, listDir(t, q, DirInbox))
	assert.Equal(t, []string{name}, listDir(t, q, DirProcessing))
	assert.Empty(t, listDir(t, q, DirCompleted))

	require.NoError(t, claim.Commit())
	assert.Empty(t, listDir(t, q, DirProcessing))
	assert.Equal(t, []string{name}, listDir(t, q, DirCompleted))
}

func TestReleaseReturnsItemToInbox(t *testing.T) {
	q := newTestQueue(t)
	name, err := q.Enqueue(testItem("r1", time.Now()))
	require.NoError(t, err)

	claim, err := q.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, claim.Release())

	assert.Equal(t, []string{name}, listDir(t, q, DirInbox))

	// The released item is claimable again.
	again, err := q.ClaimNext()
	require.NoError(t, err)
	assert.Equal(t, "r1", again.Item().RunID)
	require.NoError(t, again.Commit())
}

func TestClaimDisposeIsSingleShot(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(testItem("r1", time.Now()))
	require.NoError(t, err)

	claim, err := q.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, claim.Commit())
	assert.Error(t, claim.Release())
	assert.Error(t, claim.Commit())
}

func TestClaimNextEmpty(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.ClaimNext()
	assert.ErrorIs(t, err, ErrNoItemsAvailable)
}

func TestUnparseableItemSkippedNotDropped(t *testing.T) {
	q := newTestQueue(t)

	bad := filepath.Join(q.Root(), DirInbox, "20260501100000-00000000-0000-0000-0000-000000000000.json")
	require.NoError(t, os.WriteFile(bad, []byte("this is not json"), 0o644))
	_, err := q.Enqueue(testItem("r-good", time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	claim, err := q.ClaimNext()
	require.NoError(t, err)
	assert.Equal(t, "r-good", claim.Item().RunID)
	require.NoError(t, claim.Commit())

	// The malformed item is still in the inbox.
	assert.Equal(t, []string{filepath.Base(bad)}, listDir(t, q, DirInbox))

	// An inbox holding only the malformed item reports empty.
	_, err = q.ClaimNext()
	assert.ErrorIs(t, err, ErrNoItemsAvailable)
}

func TestLockContentionSkipsToNextCandidate(t *testing.T) {
	q := newTestQueue(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	firstName, err := q.Enqueue(testItem("r-locked", base))
	require.NoError(t, err)
	_, err = q.Enqueue(testItem("r-free", base.Add(time.Second)))
	require.NoError(t, err)

	// Hold the first item's lock the way a competing claimer would.
	lockPath := filepath.Join(q.Root(), DirInbox, firstName+lockSuffix)
	holder, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX|unix.LOCK_NB))

	claim, err := q.ClaimNext()
	require.NoError(t, err)
	assert.Equal(t, "r-free", claim.Item().RunID, "contended candidate is skipped")
	require.NoError(t, claim.Commit())

	// Only the contended item remains; the claim now reports contention.
	_, err = q.ClaimNext()
	var lockErr *QueueLockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, 1, lockErr.Contended)

	// Once the holder lets go the item is claimable: a crashed holder is
	// the same case, the OS drops its lock with the process.
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_UN))
	claim, err = q.ClaimNext()
	require.NoError(t, err)
	assert.Equal(t, "r-locked", claim.Item().RunID)
	require.NoError(t, claim.Commit())
}

func TestRecoverProcessing(t *testing.T) {
	q := newTestQueue(t)
	name, err := q.Enqueue(testItem("r1", time.Now()))
	require.NoError(t, err)

	_, err = q.ClaimNext()
	require.NoError(t, err)
	require.Equal(t, []string{name}, listDir(t, q, DirProcessing))

	// Simulate a crash: the claim is never disposed. A fresh start
	// returns the orphan to the inbox.
	moved, err := q.RecoverProcessing()
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, []string{name}, listDir(t, q, DirInbox))
}

func TestSweepCompleted(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(testItem("r-old", time.Now()))
	require.NoError(t, err)
	claim, err := q.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, claim.Commit())

	oldPath := filepath.Join(q.Root(), DirCompleted, claim.File())
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	_, err = q.Enqueue(testItem("r-new", time.Now()))
	require.NoError(t, err)
	claim, err = q.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, claim.Commit())

	removed, err := q.SweepCompleted(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, listDir(t, q, DirCompleted), 1)
}

func TestCounts(t *testing.T) {
	q := newTestQueue(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(testItem("r", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	claim, err := q.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, claim.Commit())
	_, err = q.ClaimNext()
	require.NoError(t, err)

	inbox, processing, completed, err := q.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, inbox)
	assert.Equal(t, 1, processing)
	assert.Equal(t, 1, completed)
}
