package models

import "time"

// QueueItem is the JSON document stored under the queue directories. At
// any instant an item lives in exactly one of inbox/, processing/ or
// completed/; movement between them is a single rename.
type QueueItem struct {
	RunID       string     `json:"run_id"`
	SubmittedAt time.Time  `json:"submitted_at"`
	SourceURL   string     `json:"source_url"`
	MessageText string     `json:"message_text"`
	Directives  Directives `json:"directives"`
}

// Request extracts the request payload carried by the item.
func (i *QueueItem) Request() Request {
	return Request{
		SourceURL:   i.SourceURL,
		MessageText: i.MessageText,
		Directives:  i.Directives,
	}
}
