package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/pipeline"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/queue"
	"github.com/reelworks/reeler/pkg/throttle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedExecutor struct {
	mu     sync.Mutex
	result error
	onExec func()
	runs   []string
	reqs   []*models.Request
}

func (e *scriptedExecutor) Execute(_ context.Context, runID string, req *models.Request) error {
	e.mu.Lock()
	e.runs = append(e.runs, runID)
	e.reqs = append(e.reqs, req)
	cb := e.onExec
	err := e.result
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	return err
}

func (e *scriptedExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runs...)
}

func (e *scriptedExecutor) requests() []*models.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*models.Request(nil), e.reqs...)
}

type healthyMonitor struct{}

func (healthyMonitor) Snapshot(context.Context) (models.ResourceSnapshot, error) {
	return models.ResourceSnapshot{
		MemoryAvailableBytes: 16 << 30,
		CPULoadNormalised:    0.1,
		TemperatureCelsius:   40,
	}, nil
}

type scriptedSource struct {
	mu   sync.Mutex
	msgs []ports.InboundMessage
}

func (s *scriptedSource) Poll(context.Context) ([]ports.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.msgs
	s.msgs = nil
	return out, nil
}

type harness struct {
	daemon  *Daemon
	queue   *queue.Queue
	exec    *scriptedExecutor
	source  *scriptedSource
	stopper *Stopper
	events  func() []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	q, err := queue.New(t.TempDir(), nil)
	require.NoError(t, err)

	bus := events.NewBus(nil)
	var mu sync.Mutex
	var seen []events.Event
	bus.Subscribe(events.ListenerFunc(func(_ context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev)
		return nil
	}))

	h := &harness{
		queue:   q,
		exec:    &scriptedExecutor{},
		source:  &scriptedSource{},
		stopper: &Stopper{},
		events: func() []events.Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]events.Event(nil), seen...)
		},
	}
	h.daemon = New(Deps{
		Queue:        q,
		Runner:       h.exec,
		Throttler:    throttle.New(healthyMonitor{}, bus, nil, throttle.Config{}, nil),
		Bus:          bus,
		Inbox:        h.source,
		Stop:         h.stopper,
		Retention:    24 * time.Hour,
		PollInterval: 20 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

// start runs the daemon in the background and returns a wait func that
// yields Run's error.
func (h *harness) start(t *testing.T) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- h.daemon.Run(ctx) }()

	return func() error {
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			cancel()
			t.Fatal("daemon did not stop in time")
			return nil
		}
	}
}

func eventNames(evs []events.Event) []string {
	names := make([]string, 0, len(evs))
	for _, ev := range evs {
		names = append(names, ev.Name)
	}
	return names
}

func TestDaemonProcessesQueueItem(t *testing.T) {
	h := newHarness(t)
	_, err := h.queue.Enqueue(&models.QueueItem{
		RunID:     "20260101-090000-000001-aa",
		SourceURL: "https://example.com/v",
	})
	require.NoError(t, err)

	wait := h.start(t)
	require.Eventually(t, func() bool {
		_, _, completed, cerr := h.queue.Counts()
		return cerr == nil && completed == 1
	}, 3*time.Second, 10*time.Millisecond)

	h.stopper.RequestStop()
	require.NoError(t, wait())

	assert.Equal(t, []string{"20260101-090000-000001-aa"}, h.exec.executed())

	names := eventNames(h.events())
	assert.Contains(t, names, events.EventDaemonStarted)
	assert.Contains(t, names, events.EventQueueItemClaimed)
	assert.Contains(t, names, events.EventQueueItemCommitted)
	assert.Contains(t, names, events.EventDaemonStopping)
}

func TestDaemonReleasesInterruptedRun(t *testing.T) {
	h := newHarness(t)
	h.exec.result = fmt.Errorf("at CONTENT: %w", pipeline.ErrInterrupted)
	h.exec.onExec = h.stopper.RequestStop

	_, err := h.queue.Enqueue(&models.QueueItem{
		RunID:     "20260101-090000-000001-aa",
		SourceURL: "https://example.com/v",
	})
	require.NoError(t, err)

	wait := h.start(t)
	require.NoError(t, wait())

	inbox, processing, completed, err := h.queue.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, inbox, "interrupted item goes back for the next daemon")
	assert.Zero(t, processing)
	assert.Zero(t, completed)
	assert.Contains(t, eventNames(h.events()), events.EventQueueItemReleased)
}

func TestDaemonCommitsTerminalFailure(t *testing.T) {
	h := newHarness(t)
	h.exec.result = &pipeline.RunFailedError{
		RunID: "20260101-090000-000001-aa",
		Stage: models.StageContent,
		Err:   errors.New("recovery exhausted"),
	}
	h.exec.onExec = h.stopper.RequestStop

	_, err := h.queue.Enqueue(&models.QueueItem{
		RunID:     "20260101-090000-000001-aa",
		SourceURL: "https://example.com/v",
	})
	require.NoError(t, err)

	wait := h.start(t)
	require.NoError(t, wait())

	inbox, _, completed, err := h.queue.Counts()
	require.NoError(t, err)
	assert.Zero(t, inbox, "terminal failures are not re-claimed")
	assert.Equal(t, 1, completed)
	assert.Contains(t, eventNames(h.events()), events.EventQueueItemCommitted)
}

func TestDaemonEnqueuesInboundMessages(t *testing.T) {
	h := newHarness(t)
	h.source.msgs = []ports.InboundMessage{{
		ID:     "1700000000.000100",
		Sender: "U1",
		Text:   "make it pop <https://example.com/watch?v=abc> 45s max",
		At:     time.Now().UTC(),
	}}
	h.exec.onExec = h.stopper.RequestStop

	wait := h.start(t)
	require.NoError(t, wait())

	reqs := h.exec.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://example.com/watch?v=abc", reqs[0].SourceURL)
	assert.Equal(t, "make it pop 45s max", reqs[0].MessageText)

	_, _, completed, err := h.queue.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Contains(t, eventNames(h.events()), events.EventQueueItemEnqueued)
}

func TestDaemonRecoversOrphanedItems(t *testing.T) {
	h := newHarness(t)

	// Simulate a crash: an item stranded in processing/ by a dead process.
	name, err := h.queue.Enqueue(&models.QueueItem{
		RunID:     "20260101-090000-000001-aa",
		SourceURL: "https://example.com/v",
	})
	require.NoError(t, err)
	require.NoError(t, os.Rename(
		filepath.Join(h.queue.Root(), queue.DirInbox, name),
		filepath.Join(h.queue.Root(), queue.DirProcessing, name)))

	h.exec.onExec = h.stopper.RequestStop
	wait := h.start(t)
	require.NoError(t, wait())

	assert.Equal(t, []string{"20260101-090000-000001-aa"}, h.exec.executed())
}

func TestDaemonSweepsExpiredCompletedItems(t *testing.T) {
	h := newHarness(t)

	_, err := h.queue.Enqueue(&models.QueueItem{
		RunID:     "20260101-090000-000001-aa",
		SourceURL: "https://example.com/v",
	})
	require.NoError(t, err)
	claim, err := h.queue.ClaimNext()
	require.NoError(t, err)
	require.NoError(t, claim.Commit())

	old := time.Now().Add(-48 * time.Hour)
	done := filepath.Join(h.queue.Root(), queue.DirCompleted, claim.File())
	require.NoError(t, os.Chtimes(done, old, old))

	wait := h.start(t)
	require.Eventually(t, func() bool {
		_, _, completed, cerr := h.queue.Counts()
		return cerr == nil && completed == 0
	}, 3*time.Second, 10*time.Millisecond)

	h.stopper.RequestStop()
	require.NoError(t, wait())
}
