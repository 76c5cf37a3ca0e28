// Package queue implements the durable request queue: three sibling
// directories under one root, with every item living in exactly one of
// them at any instant. Producers write to inbox/; the consumer claims the
// lexicographically first item under an exclusive advisory lock and moves
// it through processing/ to completed/ (or back to inbox/ on release).
// Every movement is a single rename.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/reelworks/reeler/pkg/atomicfile"
	"github.com/reelworks/reeler/pkg/models"
)

// Queue subdirectory names.
const (
	DirInbox      = "inbox"
	DirProcessing = "processing"
	DirCompleted  = "completed"
)

const lockSuffix = ".lock"

// Queue is a directory-backed FIFO rooted at one directory. A single
// daemon owns a given root; the per-item advisory locks make concurrent
// claimers safe regardless.
type Queue struct {
	root   string
	logger *slog.Logger
}

// New creates the queue directories if absent and returns the queue.
func New(root string, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{DirInbox, DirProcessing, DirCompleted} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create queue dir %s: %w", dir, err)
		}
	}
	return &Queue{root: root, logger: logger.With("component", "queue")}, nil
}

// Root returns the queue root directory.
func (q *Queue) Root() string {
	return q.root
}

// ItemName builds the queue filename for a submission instant:
// YYYYMMDDHHMMSS-<uuid>.json. The uuid prevents same-second collisions;
// the timestamp prefix keeps lexicographic order time-monotonic.
func ItemName(at time.Time) string {
	return fmt.Sprintf("%s-%s.json", at.UTC().Format("20060102150405"), uuid.NewString())
}

// Enqueue writes the item atomically into inbox/ and returns its filename.
func (q *Queue) Enqueue(item *models.QueueItem) (string, error) {
	if item.SubmittedAt.IsZero() {
		item.SubmittedAt = time.Now().UTC()
	}
	name := ItemName(item.SubmittedAt)
	if err := atomicfile.WriteJSON(filepath.Join(q.root, DirInbox, name), item); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	q.logger.Info("Enqueued request", "file", name, "run_id", item.RunID)
	return name, nil
}

// ClaimNext claims the oldest inbox item: it takes a non-blocking
// exclusive lock on the item's companion lock file, renames the item into
// processing/, and returns it with a disposer. Lock-contended candidates
// are skipped; unparseable items are logged and left in place, never
// dropped. Returns ErrNoItemsAvailable on an empty or fully-unparseable
// inbox and a *QueueLockError when candidates existed but all were
// contended.
func (q *Queue) ClaimNext() (*Claim, error) {
	names, err := q.listInbox()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoItemsAvailable
	}

	contended := 0
	for _, name := range names {
		claim, status := q.tryClaim(name)
		switch status {
		case claimOK:
			return claim, nil
		case claimContended:
			contended++
		case claimSkip:
		}
	}

	if contended > 0 {
		return nil, &QueueLockError{Contended: contended}
	}
	return nil, ErrNoItemsAvailable
}

type claimStatus int

const (
	claimOK claimStatus = iota
	claimContended
	claimSkip
)

func (q *Queue) tryClaim(name string) (*Claim, claimStatus) {
	inboxPath := filepath.Join(q.root, DirInbox, name)
	lockPath := inboxPath + lockSuffix

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		q.logger.Warn("Cannot open queue lock file", "file", name, "error", err)
		return nil, claimSkip
	}
	// The lock protects only the inbox→processing transition; it is
	// released and its file removed before returning, success or not.
	defer func() {
		_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, claimContended
		}
		q.logger.Warn("Queue lock failed", "file", name, "error", err)
		return nil, claimSkip
	}

	data, err := os.ReadFile(inboxPath)
	if errors.Is(err, fs.ErrNotExist) {
		// Claimed by a racing process between listing and locking.
		return nil, claimSkip
	}
	if err != nil {
		q.logger.Warn("Cannot read queue item", "file", name, "error", err)
		return nil, claimSkip
	}

	var item models.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		q.logger.Warn("Unparseable queue item left in inbox", "file", name, "error", err)
		return nil, claimSkip
	}

	processingPath := filepath.Join(q.root, DirProcessing, name)
	if err := os.Rename(inboxPath, processingPath); err != nil {
		q.logger.Warn("Cannot move queue item to processing", "file", name, "error", err)
		return nil, claimSkip
	}

	q.logger.Info("Claimed queue item", "file", name, "run_id", item.RunID)
	return &Claim{queue: q, name: name, item: &item}, claimOK
}

func (q *Queue) listInbox() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, DirInbox))
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RecoverProcessing returns orphaned processing/ items to inbox/. Called
// once at startup, before the first claim: anything still in processing/
// belongs to a run the previous process did not finish.
func (q *Queue) RecoverProcessing() (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, DirProcessing))
	if err != nil {
		return 0, fmt.Errorf("list processing: %w", err)
	}

	moved := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		from := filepath.Join(q.root, DirProcessing, e.Name())
		to := filepath.Join(q.root, DirInbox, e.Name())
		if err := os.Rename(from, to); err != nil {
			q.logger.Warn("Cannot recover processing item", "file", e.Name(), "error", err)
			continue
		}
		q.logger.Info("Recovered orphaned queue item", "file", e.Name())
		moved++
	}
	return moved, nil
}

// SweepCompleted removes completed/ items older than the retention age,
// returning the number pruned.
func (q *Queue) SweepCompleted(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, DirCompleted))
	if err != nil {
		return 0, fmt.Errorf("list completed: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(q.root, DirCompleted, e.Name())); err != nil {
			q.logger.Warn("Cannot prune completed item", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Counts returns the number of items in inbox, processing and completed.
func (q *Queue) Counts() (inbox, processing, completed int, err error) {
	count := func(dir string) (int, error) {
		entries, err := os.ReadDir(filepath.Join(q.root, dir))
		if err != nil {
			return 0, err
		}
		n := 0
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				n++
			}
		}
		return n, nil
	}

	if inbox, err = count(DirInbox); err != nil {
		return 0, 0, 0, err
	}
	if processing, err = count(DirProcessing); err != nil {
		return 0, 0, 0, err
	}
	if completed, err = count(DirCompleted); err != nil {
		return 0, 0, 0, err
	}
	return inbox, processing, completed, nil
}
