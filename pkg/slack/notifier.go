package slack

import (
	"context"
	"fmt"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// Notifier is a bus listener that turns queue and stage events into
// concise channel updates: one message when a request is accepted and
// queued, one per stage as the run progresses. Clarifications, resume
// notices, failure summaries and the final delivery are sent directly by
// their owners, so the notifier stays out of those to keep it to one
// message per user-relevant event.
type Notifier struct {
	messenger ports.Messaging
}

// NewNotifier creates the listener. messenger may be nil; every event is
// then ignored.
func NewNotifier(messenger ports.Messaging) *Notifier {
	return &Notifier{messenger: messenger}
}

// HandleEvent implements events.Listener.
func (n *Notifier) HandleEvent(ctx context.Context, ev events.Event) error {
	if n.messenger == nil {
		return nil
	}

	var text string
	switch ev.Name {
	case events.EventQueueItemEnqueued:
		text = fmt.Sprintf(":inbox_tray: Accepted your request; queued as run %s.", ev.RunID)
	case events.EventStageEntered:
		text = fmt.Sprintf(":clapper: Run %s: %s (stage %d of %d).",
			ev.RunID, ev.Stage, ev.Stage.Index()+1, models.StageCount())
	default:
		return nil
	}
	return n.messenger.Notify(ctx, text)
}
