package slack

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// wireMsg is the subset of the Slack message schema the mock emits.
type wireMsg struct {
	Type    string `json:"type"`
	User    string `json:"user,omitempty"`
	BotID   string `json:"bot_id,omitempty"`
	SubType string `json:"subtype,omitempty"`
	Text    string `json:"text,omitempty"`
	TS      string `json:"ts"`
}

type postedMessage struct {
	Channel string
	Text    string
	TS      string
}

type uploadRecord struct {
	Channel   string
	Caption   string
	Filename  string
	BodyBytes int
}

// slackMock speaks just enough of the Slack web API for these tests:
// chat.postMessage, conversations.history, and the three-step external
// file upload.
type slackMock struct {
	srv *httptest.Server

	mu            sync.Mutex
	posts         []postedMessage
	messages      []wireMsg
	historyOldest []string
	uploads       []uploadRecord
	postSeq       int
}

func newSlackMock(t *testing.T) *slackMock {
	t.Helper()
	m := &slackMock{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", m.handlePost)
	mux.HandleFunc("/conversations.history", m.handleHistory)
	mux.HandleFunc("/files.getUploadURLExternal", m.handleGetUploadURL)
	mux.HandleFunc("/upload", m.handleUpload)
	mux.HandleFunc("/files.completeUploadExternal", m.handleComplete)
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *slackMock) client() *Client {
	return NewClientWithAPIURL("xoxb-test", "C123", m.srv.URL+"/")
}

// addMessage scripts a channel message for subsequent history calls.
func (m *slackMock) addMessage(msg wireMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Type == "" {
		msg.Type = "message"
	}
	m.messages = append(m.messages, msg)
}

func (m *slackMock) postedMessages() []postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]postedMessage(nil), m.posts...)
}

func (m *slackMock) uploadRecords() []uploadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uploadRecord(nil), m.uploads...)
}

func (m *slackMock) oldestParams() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.historyOldest...)
}

func (m *slackMock) handlePost(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.postSeq++
	ts := fmt.Sprintf("1800000000.%06d", m.postSeq)
	m.posts = append(m.posts, postedMessage{
		Channel: r.FormValue("channel"),
		Text:    r.FormValue("text"),
		TS:      ts,
	})
	m.mu.Unlock()
	writeJSON(w, map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": ts})
}

// handleHistory mimics Slack ordering: only messages strictly newer than
// oldest, newest first.
func (m *slackMock) handleHistory(w http.ResponseWriter, r *http.Request) {
	oldest := r.FormValue("oldest")

	m.mu.Lock()
	m.historyOldest = append(m.historyOldest, oldest)
	var out []wireMsg
	for i := len(m.messages) - 1; i >= 0; i-- {
		if oldest == "" || m.messages[i].TS > oldest {
			out = append(out, m.messages[i])
		}
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{"ok": true, "messages": out})
}

func (m *slackMock) handleGetUploadURL(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.uploads = append(m.uploads, uploadRecord{Filename: r.FormValue("filename")})
	m.mu.Unlock()
	writeJSON(w, map[string]any{"ok": true, "upload_url": m.srv.URL + "/upload", "file_id": "F001"})
}

func (m *slackMock) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	if n := len(m.uploads); n > 0 {
		m.uploads[n-1].BodyBytes = len(body)
	}
	m.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (m *slackMock) handleComplete(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if n := len(m.uploads); n > 0 {
		m.uploads[n-1].Channel = r.FormValue("channel_id")
		m.uploads[n-1].Caption = r.FormValue("initial_comment")
	}
	m.mu.Unlock()
	writeJSON(w, map[string]any{"ok": true, "files": []map[string]string{{"id": "F001", "title": "upload"}}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
