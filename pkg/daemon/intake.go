package daemon

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// ParseRequest turns one inbound message into a queue item. The first
// token that parses as an http(s) URL becomes the source; the remaining
// words stay as the free-text message for the agents. Slack wraps links
// in angle brackets, optionally with a |label suffix, so tokens are
// unwrapped before parsing.
func ParseRequest(msg ports.InboundMessage) (*models.QueueItem, error) {
	var sourceURL string
	var rest []string
	for _, tok := range strings.Fields(msg.Text) {
		if sourceURL == "" {
			if u, ok := fetchableURL(tok); ok {
				sourceURL = u
				continue
			}
		}
		rest = append(rest, tok)
	}
	if sourceURL == "" {
		return nil, fmt.Errorf("message %s carries no http(s) URL", msg.ID)
	}

	now := msg.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &models.QueueItem{
		RunID:       models.NewRunID(now),
		SubmittedAt: now,
		SourceURL:   sourceURL,
		MessageText: strings.Join(rest, " "),
	}, nil
}

// fetchableURL unwraps Slack link markup and checks for a fetchable
// http(s) URL.
func fetchableURL(tok string) (string, bool) {
	tok = strings.TrimPrefix(tok, "<")
	tok = strings.TrimSuffix(tok, ">")
	if i := strings.IndexByte(tok, '|'); i >= 0 {
		tok = tok[:i]
	}
	u, err := url.Parse(tok)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return tok, true
}
