package slack

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// futureTS fabricates a Slack timestamp comfortably after the inbox
// cursor (which starts at construction time).
func futureTS(offset int) string {
	return fmt.Sprintf("%d.%06d", time.Now().Unix()+3600, offset)
}

func TestInboxReturnsNewHumanMessagesOldestFirst(t *testing.T) {
	mock := newSlackMock(t)
	inbox := NewInbox(mock.client(), nil, nil)

	mock.addMessage(wireMsg{User: "U1", Text: "make a reel https://example.com/a", TS: futureTS(1)})
	mock.addMessage(wireMsg{User: "U2", Text: "and another https://example.com/b", TS: futureTS(2)})

	msgs, err := inbox.Poll(context.Background())

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "U1", msgs[0].Sender)
	assert.Equal(t, "make a reel https://example.com/a", msgs[0].Text)
	assert.Equal(t, "U2", msgs[1].Sender)
	assert.True(t, msgs[0].At.Before(msgs[1].At))
}

func TestInboxNeverReplaysHistoryFromBeforeStartup(t *testing.T) {
	mock := newSlackMock(t)
	// Posted long before the inbox existed.
	mock.addMessage(wireMsg{User: "U1", Text: "old request", TS: "1700000000.000100"})

	inbox := NewInbox(mock.client(), nil, nil)
	msgs, err := inbox.Poll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The cursor went out with the request.
	oldest := mock.oldestParams()
	require.Len(t, oldest, 1)
	assert.NotEmpty(t, oldest[0])
}

func TestInboxDeliversEachMessageOnce(t *testing.T) {
	mock := newSlackMock(t)
	inbox := NewInbox(mock.client(), nil, nil)

	mock.addMessage(wireMsg{User: "U1", Text: "make a reel", TS: futureTS(1)})

	first, err := inbox.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := inbox.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestInboxDeduplicatesWithinOneBatch(t *testing.T) {
	mock := newSlackMock(t)
	inbox := NewInbox(mock.client(), nil, nil)

	// The API can hand back overlapping pages; the same id must not
	// surface twice.
	ts := futureTS(1)
	mock.addMessage(wireMsg{User: "U1", Text: "make a reel", TS: ts})
	mock.addMessage(wireMsg{User: "U1", Text: "make a reel", TS: ts})

	msgs, err := inbox.Poll(context.Background())

	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestInboxSkipsBotsAndChannelNoise(t *testing.T) {
	mock := newSlackMock(t)
	inbox := NewInbox(mock.client(), nil, nil)

	mock.addMessage(wireMsg{BotID: "B1", Text: "bot chatter", TS: futureTS(1)})
	mock.addMessage(wireMsg{User: "U1", SubType: "channel_join", Text: "joined", TS: futureTS(2)})
	mock.addMessage(wireMsg{User: "U1", Text: "real request", TS: futureTS(3)})

	msgs, err := inbox.Poll(context.Background())

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "real request", msgs[0].Text)
}

func TestInboxEnforcesAllowlist(t *testing.T) {
	mock := newSlackMock(t)
	inbox := NewInbox(mock.client(), []string{"U_OWNER"}, nil)

	mock.addMessage(wireMsg{User: "U_STRANGER", Text: "ignore me", TS: futureTS(1)})
	mock.addMessage(wireMsg{User: "U_OWNER", Text: "take me", TS: futureTS(2)})

	msgs, err := inbox.Poll(context.Background())

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "U_OWNER", msgs[0].Sender)
}

func TestParseSlackTS(t *testing.T) {
	at := parseSlackTS("1700000000.000200")
	assert.Equal(t, int64(1700000000), at.Unix())
	assert.Equal(t, 200*time.Microsecond, time.Duration(at.Nanosecond()))
}
