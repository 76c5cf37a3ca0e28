package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/ports"
)

func TestParseRequest(t *testing.T) {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		text        string
		wantURL     string
		wantMessage string
	}{
		{
			name:    "bare url",
			text:    "https://example.com/v",
			wantURL: "https://example.com/v",
		},
		{
			name:    "slack angle brackets",
			text:    "<https://example.com/v>",
			wantURL: "https://example.com/v",
		},
		{
			name:    "slack link with label",
			text:    "<https://example.com/v|this talk>",
			wantURL: "https://example.com/v",
		},
		{
			name:        "message around the url",
			text:        "please make https://example.com/v punchy",
			wantURL:     "https://example.com/v",
			wantMessage: "please make punchy",
		},
		{
			name:        "first url wins",
			text:        "https://example.com/a see also https://example.com/b",
			wantURL:     "https://example.com/a",
			wantMessage: "see also https://example.com/b",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item, err := ParseRequest(ports.InboundMessage{ID: "1.0", Text: tc.text, At: at})
			require.NoError(t, err)
			assert.Equal(t, tc.wantURL, item.SourceURL)
			assert.Equal(t, tc.wantMessage, item.MessageText)
			assert.NotEmpty(t, item.RunID)
			assert.Equal(t, at, item.SubmittedAt)
		})
	}
}

func TestParseRequestRejectsMessagesWithoutURL(t *testing.T) {
	for _, text := range []string{
		"make me a reel please",
		"ftp://example.com/v",
		"",
	} {
		_, err := ParseRequest(ports.InboundMessage{ID: "1.0", Text: text})
		require.Error(t, err, "text %q", text)
		assert.Contains(t, err.Error(), "no http(s) URL")
	}
}
