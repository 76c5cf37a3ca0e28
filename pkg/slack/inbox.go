package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/reelworks/reeler/pkg/ports"
)

// seenCap bounds the duplicate-suppression set; the cursor already keeps
// re-reads rare, so resetting it is harmless.
const seenCap = 4096

// Inbox polls the channel for new inbound requests. It implements
// ports.MessageSource. Only messages posted after construction are
// returned; history from before the daemon started is never replayed
// as new work.
type Inbox struct {
	client  *Client
	allowed []string
	lastTS  string
	seen    map[string]struct{}
	logger  *slog.Logger
}

// NewInbox creates an inbox cursored at the current time.
func NewInbox(client *Client, allowedUsers []string, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		client:  client,
		allowed: allowedUsers,
		lastTS:  fmt.Sprintf("%d.000000", time.Now().Unix()),
		seen:    make(map[string]struct{}),
		logger:  logger.With("component", "slack-inbox"),
	}
}

// Poll returns new messages from allowed human senders, oldest first.
// Each message is delivered at most once across polls.
func (i *Inbox) Poll(ctx context.Context) ([]ports.InboundMessage, error) {
	if i == nil || i.client == nil {
		return nil, nil
	}

	msgs, err := i.client.History(ctx, i.lastTS, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("poll channel: %w", err)
	}

	var out []ports.InboundMessage
	for idx := len(msgs) - 1; idx >= 0; idx-- {
		msg := msgs[idx]
		// Slack timestamps are fixed-width decimal seconds, so string
		// comparison orders them correctly.
		if msg.Timestamp > i.lastTS {
			i.lastTS = msg.Timestamp
		}
		if _, dup := i.seen[msg.Timestamp]; dup {
			continue
		}
		i.seen[msg.Timestamp] = struct{}{}

		if !isHumanMessage(msg) {
			continue
		}
		if !senderAllowed(i.allowed, msg.User) {
			i.logger.Debug("Ignoring message from unlisted sender", "user", msg.User)
			continue
		}
		out = append(out, ports.InboundMessage{
			ID:     msg.Timestamp,
			Sender: msg.User,
			Text:   strings.TrimSpace(msg.Text),
			At:     parseSlackTS(msg.Timestamp),
		})
	}

	if len(i.seen) > seenCap {
		i.seen = make(map[string]struct{})
	}
	return out, nil
}

// parseSlackTS converts a "seconds.micros" Slack timestamp to time.Time.
func parseSlackTS(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	var micros int64
	if frac != "" {
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, micros*int64(time.Microsecond)).UTC()
}
