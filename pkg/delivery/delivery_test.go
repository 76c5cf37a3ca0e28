package delivery

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/workspace"
)

type stubProbe struct {
	info ports.MediaInfo
	err  error
}

func (p *stubProbe) Probe(context.Context, string) (ports.MediaInfo, error) {
	return p.info, p.err
}

type stubUploader struct {
	url   string
	err   error
	paths []string
}

func (u *stubUploader) Upload(_ context.Context, path string) (string, error) {
	u.paths = append(u.paths, path)
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

type sentFile struct {
	path    string
	caption string
}

type stubMessenger struct {
	files []sentFile
	err   error
}

func (m *stubMessenger) Notify(context.Context, string) error { return nil }

func (m *stubMessenger) AskUser(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, nil
}

func (m *stubMessenger) SendFile(_ context.Context, path, caption string) error {
	if m.err != nil {
		return m.err
	}
	m.files = append(m.files, sentFile{path: path, caption: caption})
	return nil
}

// newWorkspace acquires a run workspace and optionally drops a final reel
// into it.
func newWorkspace(t *testing.T, withReel bool) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	mgr := workspace.NewManager(root, checkpoint.NewStore(root, nil), nil)
	ws, err := mgr.Acquire("20260101-090000-000001-aa")
	require.NoError(t, err)
	if withReel {
		require.NoError(t, os.WriteFile(ws.FinalReelPath(), []byte("reel"), 0o644))
	}
	return ws
}

func testState() *models.RunState {
	s := models.NewRunState("20260101-090000-000001-aa", "sha256:test")
	s.Stage = models.StageDelivery
	return s
}

func TestDeliverSendsReelWithStats(t *testing.T) {
	probe := &stubProbe{info: ports.MediaInfo{
		DurationS: 42,
		Width:     1080,
		Height:    1920,
		SizeBytes: 5 * 1024 * 1024,
	}}
	up := &stubUploader{url: "https://cdn.example.com/reels/r1.mp4"}
	msg := &stubMessenger{}
	ws := newWorkspace(t, true)

	err := New(probe, up, msg, nil).Deliver(context.Background(), ws, testState())
	require.NoError(t, err)

	require.Equal(t, []string{ws.FinalReelPath()}, up.paths)
	require.Len(t, msg.files, 1)
	assert.Equal(t, ws.FinalReelPath(), msg.files[0].path)
	assert.Contains(t, msg.files[0].caption, "42s")
	assert.Contains(t, msg.files[0].caption, "1080x1920")
	assert.Contains(t, msg.files[0].caption, "5.0 MiB")
	assert.Contains(t, msg.files[0].caption, "https://cdn.example.com/reels/r1.mp4")
}

func TestDeliverFailsWithoutReel(t *testing.T) {
	up := &stubUploader{url: "https://cdn.example.com/x"}
	ws := newWorkspace(t, false)

	err := New(nil, up, &stubMessenger{}, nil).Deliver(context.Background(), ws, testState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "final reel missing")
	assert.Empty(t, up.paths, "nothing should upload without an artifact")
}

func TestDeliverUploadFailureAborts(t *testing.T) {
	up := &stubUploader{err: errors.New("bucket unreachable")}
	msg := &stubMessenger{}
	ws := newWorkspace(t, true)

	err := New(nil, up, msg, nil).Deliver(context.Background(), ws, testState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload final reel")
	assert.Empty(t, msg.files, "no send after a failed upload")
}

func TestDeliverSendFailureAborts(t *testing.T) {
	msg := &stubMessenger{err: errors.New("channel gone")}
	ws := newWorkspace(t, true)

	err := New(nil, &stubUploader{url: "https://cdn.example.com/x"}, msg, nil).Deliver(context.Background(), ws, testState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send final reel")
}

func TestDeliverProbeFailureDegradesCaption(t *testing.T) {
	probe := &stubProbe{err: errors.New("ffprobe exploded")}
	msg := &stubMessenger{}
	ws := newWorkspace(t, true)

	err := New(probe, &stubUploader{url: "https://cdn.example.com/x"}, msg, nil).Deliver(context.Background(), ws, testState())
	require.NoError(t, err)
	require.Len(t, msg.files, 1)
	assert.Equal(t, "Your reel is ready\nhttps://cdn.example.com/x", msg.files[0].caption)
}

func TestDeliverWithAllPortsNil(t *testing.T) {
	ws := newWorkspace(t, true)

	err := New(nil, nil, nil, nil).Deliver(context.Background(), ws, testState())
	require.NoError(t, err)
}

func TestBuildCaption(t *testing.T) {
	tests := []struct {
		name string
		info ports.MediaInfo
		url  string
		want string
	}{
		{
			name: "full stats and url",
			info: ports.MediaInfo{DurationS: 30, Width: 1080, Height: 1920, SizeBytes: 2048},
			url:  "https://cdn.example.com/r.mp4",
			want: "Your reel is ready (30s, 1080x1920, 2.0 KiB)\nhttps://cdn.example.com/r.mp4",
		},
		{
			name: "no stats",
			url:  "https://cdn.example.com/r.mp4",
			want: "Your reel is ready\nhttps://cdn.example.com/r.mp4",
		},
		{
			name: "stats without url",
			info: ports.MediaInfo{DurationS: 12, SizeBytes: 512},
			want: "Your reel is ready (12s, 512 B)",
		},
		{
			name: "bare",
			want: "Your reel is ready",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildCaption(tc.info, tc.url))
		})
	}
}
