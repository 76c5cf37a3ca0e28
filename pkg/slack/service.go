package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
)

// defaultAskPoll is how often AskUser re-reads the channel for a reply.
const defaultAskPoll = 3 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	ChannelID    string
	AllowedUsers []string
}

// Service sends user-facing messages and collects replies. It implements
// ports.Messaging. Nil-safe: all methods are no-ops when the service is
// nil, so callers stay unconditional.
type Service struct {
	client  *Client
	allowed []string
	poll    time.Duration
	logger  *slog.Logger
}

// NewService creates a new messaging service.
// Returns nil if Token or ChannelID is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.ChannelID), cfg.AllowedUsers)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, allowedUsers []string) *Service {
	return newService(client, allowedUsers)
}

func newService(client *Client, allowedUsers []string) *Service {
	return &Service{
		client:  client,
		allowed: allowedUsers,
		poll:    defaultAskPoll,
		logger:  slog.Default().With("component", "slack-service"),
	}
}

// Notify sends a one-way message to the channel.
func (s *Service) Notify(ctx context.Context, text string) error {
	if s == nil {
		return nil
	}
	if _, err := s.client.PostMessage(ctx, text, postTimeout); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// AskUser posts a question and polls the channel for the first reply from
// an allowed user. The boolean reports whether an answer arrived before
// the timeout; an expired timeout is not an error.
func (s *Service) AskUser(ctx context.Context, prompt string, timeout time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}

	askedAt, err := s.client.PostMessage(ctx, prompt, postTimeout)
	if err != nil {
		return "", false, fmt.Errorf("post question: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-deadline.C:
			s.logger.Info("Question went unanswered", "timeout", timeout)
			return "", false, nil
		case <-ticker.C:
			msgs, err := s.client.History(ctx, askedAt, historyPageSize)
			if err != nil {
				// Transient; the next tick retries.
				s.logger.Warn("Reply poll failed", "error", err)
				continue
			}
			// Newest first from the API; walk backwards for the
			// earliest qualifying reply.
			for i := len(msgs) - 1; i >= 0; i-- {
				msg := msgs[i]
				if !isHumanMessage(msg) || !senderAllowed(s.allowed, msg.User) {
					continue
				}
				return strings.TrimSpace(msg.Text), true, nil
			}
		}
	}
}

// SendFile delivers a local file to the channel with a caption.
func (s *Service) SendFile(ctx context.Context, path, caption string) error {
	if s == nil {
		return nil
	}
	if err := s.client.UploadFile(ctx, path, caption); err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	return nil
}

// isHumanMessage filters out bot posts, joins, edits and other channel
// noise; only plain user messages qualify.
func isHumanMessage(msg goslack.Message) bool {
	return msg.BotID == "" && msg.SubType == "" && msg.User != "" && msg.Text != ""
}

// senderAllowed applies the user allowlist. An empty list admits any
// human sender.
func senderAllowed(allowed []string, user string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, u := range allowed {
		if u == user {
			return true
		}
	}
	return false
}
