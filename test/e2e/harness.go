// Package e2e boots the full pipeline against scripted ports and drives
// whole runs through the real queue, checkpoint store, stage runner,
// recovery chain, side-generation orchestrator and daemon loop.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/daemon"
	"github.com/reelworks/reeler/pkg/delivery"
	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/pipeline"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/qa"
	"github.com/reelworks/reeler/pkg/queue"
	"github.com/reelworks/reeler/pkg/recovery"
	"github.com/reelworks/reeler/pkg/sidegen"
	"github.com/reelworks/reeler/pkg/throttle"
	"github.com/reelworks/reeler/pkg/workspace"
)

// App is one wired pipeline instance over scripted external ports. Two
// apps built with WithRoots over the same directories model two daemon
// processes sharing a queue and runs root across a restart.
type App struct {
	QueueRoot string
	RunsRoot  string
	ConfigDir string

	Queue      *queue.Queue
	Store      *checkpoint.Store
	Workspaces *workspace.Manager
	Bus        *events.Bus
	Recorder   *EventRecorder

	Dispatcher *ScriptedDispatcher
	Messenger  *RecordingMessenger
	Generation *ScriptedGeneration
	Uploader   *RecordingUploader
	Downloader *RecordingDownloader

	Runner  *pipeline.Runner
	Planner *pipeline.Planner
	Stopper *daemon.Stopper

	logger *slog.Logger
}

type appConfig struct {
	queueRoot   string
	runsRoot    string
	generation  *ScriptedGeneration
	gateTimeout time.Duration
}

// AppOption configures the app under construction.
type AppOption func(*appConfig)

// WithRoots pins the queue and runs roots so several apps can share them.
func WithRoots(queueRoot, runsRoot string) AppOption {
	return func(c *appConfig) {
		c.queueRoot = queueRoot
		c.runsRoot = runsRoot
	}
}

// WithGeneration enables side generation backed by the scripted provider.
func WithGeneration(gen *ScriptedGeneration) AppOption {
	return func(c *appConfig) { c.generation = gen }
}

// WithGateTimeout overrides the side-generation await budget.
func WithGateTimeout(d time.Duration) AppOption {
	return func(c *appConfig) { c.gateTimeout = d }
}

// NewApp wires a pipeline instance. Every run-facing port is a scripted
// fake; everything between them is the real thing.
func NewApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()

	cfg := &appConfig{gateTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.queueRoot == "" {
		cfg.queueRoot = t.TempDir()
	}
	if cfg.runsRoot == "" {
		cfg.runsRoot = t.TempDir()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := checkpoint.NewStore(cfg.runsRoot, logger)
	spaces := workspace.NewManager(cfg.runsRoot, store, logger)
	q, err := queue.New(cfg.queueRoot, logger)
	require.NoError(t, err)

	bus := events.NewBus(logger)
	bus.Subscribe(checkpoint.NewJournalListener(store))
	recorder := NewEventRecorder()
	bus.Subscribe(recorder)

	dispatcher := NewScriptedDispatcher()
	messenger := &RecordingMessenger{}

	critic := qa.NewCritic(dispatcher, nil, time.Minute, logger)
	chain := recovery.NewChain(messenger, logger)
	configDir := t.TempDir() // empty: stages run on placeholder documents
	stages := pipeline.NewStageRunner(dispatcher, critic, chain, configDir, time.Minute, logger)

	gate := sidegen.NewGate(cfg.gateTimeout, logger)
	var newSideGen pipeline.SideGenFactory
	if cfg.generation != nil {
		gen := cfg.generation
		newSideGen = func(ws *workspace.Workspace, runID string) *sidegen.Orchestrator {
			sgCfg := sidegen.Config{
				PollInitial: 2 * time.Millisecond,
				PollMax:     10 * time.Millisecond,
			}
			return sidegen.NewOrchestrator(gen, nil, ws.SideGenDir(), runID, sgCfg, logger)
		}
	}

	uploader := &RecordingUploader{URL: "https://cdn.example.com/reel.mp4"}
	downloader := &RecordingDownloader{}
	stopper := &daemon.Stopper{}

	runner := pipeline.NewRunner(pipeline.RunnerDeps{
		Workspaces:    spaces,
		Store:         store,
		Bus:           bus,
		Stages:        stages,
		Gate:          gate,
		NewSideGen:    newSideGen,
		Deliverer:     delivery.New(staticProbe{}, uploader, messenger, logger),
		Downloader:    downloader,
		Messenger:     messenger,
		StopRequested: stopper.Stopping,
		Logger:        logger,
	})
	planner := pipeline.NewPlanner(store, bus, messenger, logger)

	return &App{
		QueueRoot:  cfg.queueRoot,
		RunsRoot:   cfg.runsRoot,
		ConfigDir:  configDir,
		Queue:      q,
		Store:      store,
		Workspaces: spaces,
		Bus:        bus,
		Recorder:   recorder,
		Dispatcher: dispatcher,
		Messenger:  messenger,
		Generation: cfg.generation,
		Uploader:   uploader,
		Downloader: downloader,
		Runner:     runner,
		Planner:    planner,
		Stopper:    stopper,
		logger:     logger,
	}
}

// Enqueue writes one request into the queue and returns its run id.
func (a *App) Enqueue(t *testing.T, sourceURL, message string) string {
	t.Helper()
	runID := models.NewRunID(time.Now())
	_, err := a.Queue.Enqueue(&models.QueueItem{
		RunID:       runID,
		SourceURL:   sourceURL,
		MessageText: message,
	})
	require.NoError(t, err)
	return runID
}

// StartDaemon runs the service loop in the background and returns a stop
// function that latches the soft stop and waits for the loop to exit.
// inbox may be nil.
func (a *App) StartDaemon(t *testing.T, inbox ports.MessageSource) func() {
	t.Helper()

	d := daemon.New(daemon.Deps{
		Queue:        a.Queue,
		Runner:       a.Runner,
		Planner:      a.Planner,
		Throttler:    throttle.New(staticMonitor{}, a.Bus, a.Messenger, throttle.Config{}, a.logger),
		Bus:          a.Bus,
		Inbox:        inbox,
		Messenger:    a.Messenger,
		Stop:         a.Stopper,
		PollInterval: 10 * time.Millisecond,
		Logger:       a.logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	return func() {
		a.Stopper.RequestStop()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			cancel()
			t.Fatal("daemon did not stop in time")
		}
	}
}

// ExecuteRun drives one request synchronously through the run loop,
// bypassing the queue.
func (a *App) ExecuteRun(runID string, req *models.Request) error {
	return a.Runner.Execute(context.Background(), runID, req)
}

// WaitForEvent blocks until the recorder has seen the named event.
func (a *App) WaitForEvent(t *testing.T, name string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.Recorder.Count(name) > 0
	}, timeout, 10*time.Millisecond, "waiting for event %s", name)
}

// State loads the persisted run state, failing the test when none exists.
func (a *App) State(t *testing.T, runID string) *models.RunState {
	t.Helper()
	state, ok, err := a.Store.LoadState(runID)
	require.NoError(t, err)
	require.True(t, ok, "no persisted state for run %s", runID)
	return state
}

// WorkspaceDir returns the run's workspace directory.
func (a *App) WorkspaceDir(runID string) string {
	return filepath.Join(a.RunsRoot, runID)
}
