package queue

import (
	"errors"
	"fmt"
)

// ErrNoItemsAvailable indicates the inbox holds no claimable items.
var ErrNoItemsAvailable = errors.New("no queue items available")

// QueueLockError indicates every inbox candidate was lock-contended. The
// caller should treat it as transient and retry on its next poll.
type QueueLockError struct {
	Contended int
}

// Error implements the error interface.
func (e *QueueLockError) Error() string {
	return fmt.Sprintf("all %d queue candidates are lock-contended", e.Contended)
}
