package queue

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reelworks/reeler/pkg/models"
)

// Claim is an exclusively held queue item sitting in processing/. Exactly
// one of Commit or Release must be called to dispose of it.
type Claim struct {
	queue *Queue
	name  string
	item  *models.QueueItem
	done  bool
}

// Item returns the claimed payload.
func (c *Claim) Item() *models.QueueItem {
	return c.item
}

// File returns the item's queue filename.
func (c *Claim) File() string {
	return c.name
}

// Commit moves the item to completed/. The run is done, whatever its
// outcome; the item will never be claimed again.
func (c *Claim) Commit() error {
	return c.dispose(DirCompleted, "committed")
}

// Release returns the item to inbox/ for a later claim, preserving its
// filename and therefore its queue position.
func (c *Claim) Release() error {
	return c.dispose(DirInbox, "released")
}

func (c *Claim) dispose(dir, verb string) error {
	if c.done {
		return fmt.Errorf("queue item %s already disposed", c.name)
	}
	from := filepath.Join(c.queue.root, DirProcessing, c.name)
	to := filepath.Join(c.queue.root, dir, c.name)
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("%s queue item %s: %w", verb, c.name, err)
	}
	c.done = true
	c.queue.logger.Info("Queue item "+verb, "file", c.name, "run_id", c.item.RunID)
	return nil
}
