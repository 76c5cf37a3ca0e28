package slack

import (
	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

// BuildNote wraps plain markdown text in a single section block.
func BuildNote(text string) []goslack.Block {
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(text), false, false),
			nil, nil,
		),
	}
}

// truncateForSlack bounds text to Slack's block limit. The limit counts
// characters, so truncation works on runes and never splits one.
func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated)_"
}
