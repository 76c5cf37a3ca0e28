package checkpoint

import (
	"context"

	"github.com/reelworks/reeler/pkg/events"
)

// JournalListener appends every run-scoped event to that run's journal
// file. It is the journal's single writer; the bus serialises deliveries.
type JournalListener struct {
	store *Store
}

// NewJournalListener creates the journal listener.
func NewJournalListener(store *Store) *JournalListener {
	return &JournalListener{store: store}
}

// HandleEvent implements events.Listener. Events without a run id have no
// journal to live in and are ignored.
func (l *JournalListener) HandleEvent(_ context.Context, ev events.Event) error {
	if ev.RunID == "" {
		return nil
	}
	return l.store.AppendEvent(ev.RunID, ev)
}
