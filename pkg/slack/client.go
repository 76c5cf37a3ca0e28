// Package slack is the messaging adapter: user notifications, the
// clarification question/answer exchange, reel delivery, and the inbound
// request inbox all ride the same channel. Every surface is fail-open;
// a missing token yields nil services whose methods are no-ops.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goslack "github.com/slack-go/slack"
)

const (
	postTimeout    = 5 * time.Second
	historyTimeout = 5 * time.Second
	uploadTimeout  = 2 * time.Minute

	historyPageSize = 50
)

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

// NewClient creates a new Slack API client.
func NewClient(token, channelID string) *Client {
	return &Client{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithAPIURL creates a Slack API client that targets a custom API URL.
// Useful for testing with a mock server.
func NewClientWithAPIURL(token, channelID, apiURL string) *Client {
	return &Client{
		api:       goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channelID: channelID,
		logger:    slog.Default().With("component", "slack-client"),
	}
}

// PostMessage sends markdown text to the configured channel and returns
// the message timestamp for reply correlation.
func (c *Client) PostMessage(ctx context.Context, text string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		goslack.MsgOptionBlocks(BuildNote(text)...),
		goslack.MsgOptionText(truncateForSlack(text), false),
	)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return ts, nil
}

// History fetches channel messages newer than oldest (a Slack message
// timestamp, exclusive). Slack returns newest first.
func (c *Client) History(ctx context.Context, oldest string, limit int) ([]goslack.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	params := &goslack.GetConversationHistoryParameters{
		ChannelID: c.channelID,
		Oldest:    oldest,
		Limit:     limit,
	}
	history, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("conversations.history failed: %w", err)
	}
	return history.Messages, nil
}

// UploadFile shares a local file into the channel with a caption.
func (c *Client) UploadFile(ctx context.Context, path, caption string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat upload file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = c.api.UploadFileContext(ctx, goslack.UploadFileParameters{
		File:           path,
		Filename:       filepath.Base(path),
		FileSize:       int(info.Size()),
		Channel:        c.channelID,
		InitialComment: caption,
	})
	if err != nil {
		return fmt.Errorf("files.upload failed: %w", err)
	}
	return nil
}
