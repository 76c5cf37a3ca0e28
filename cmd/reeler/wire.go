package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/config"
	"github.com/reelworks/reeler/pkg/daemon"
	"github.com/reelworks/reeler/pkg/delivery"
	"github.com/reelworks/reeler/pkg/dispatch"
	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/knowledge"
	"github.com/reelworks/reeler/pkg/media"
	"github.com/reelworks/reeler/pkg/monitor"
	"github.com/reelworks/reeler/pkg/pipeline"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/qa"
	"github.com/reelworks/reeler/pkg/queue"
	"github.com/reelworks/reeler/pkg/recovery"
	"github.com/reelworks/reeler/pkg/sidegen"
	"github.com/reelworks/reeler/pkg/slack"
	"github.com/reelworks/reeler/pkg/throttle"
	"github.com/reelworks/reeler/pkg/uploader"
	"github.com/reelworks/reeler/pkg/videogen"
	"github.com/reelworks/reeler/pkg/workspace"
)

// core is the machinery shared by the run and daemon commands.
type core struct {
	cfg       *config.Settings
	bus       *events.Bus
	store     *checkpoint.Store
	spaces    *workspace.Manager
	queue     *queue.Queue
	knowledge *knowledge.Store
	messenger *slack.Service
	throttler *throttle.Throttler
	planner   *pipeline.Planner
	runner    *pipeline.Runner
	stopper   *daemon.Stopper
}

// loadEnv loads config/.env the way the settings loader will see it.
// Absence is normal outside deployments; the real environment wins.
func loadEnv(configDir string) {
	if configDir == "" {
		configDir = os.Getenv("CONFIG_DIR")
	}
	if configDir == "" {
		configDir = "./config"
	}
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file loaded", "path", envPath)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}
}

// buildCore wires the shared run machinery from settings: durable state,
// the event bus, messaging, agents, QA, recovery, media and side
// generation, ending with the run loop itself.
func buildCore(ctx context.Context, cfg *config.Settings) (*core, error) {
	// 1. Durable state: checkpoints, workspaces, the file queue.
	store := checkpoint.NewStore(cfg.Paths.WorkspaceRoot, nil)
	spaces := workspace.NewManager(cfg.Paths.WorkspaceRoot, store, nil)
	q, err := queue.New(cfg.Paths.QueueRoot, nil)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	// 2. Event bus. The journal listener gives every run an append-only
	// record of its transitions.
	bus := events.NewBus(nil)
	bus.Subscribe(checkpoint.NewJournalListener(store))

	// 3. Messaging. The service is nil-safe, so downstream wiring stays
	// unconditional; the ack notifier only subscribes when enabled.
	messenger := slack.NewService(slack.ServiceConfig{
		Token:        cfg.Slack.BotToken,
		ChannelID:    cfg.Slack.ChannelID,
		AllowedUsers: cfg.Slack.AllowedUsers,
	})
	if messenger != nil {
		bus.Subscribe(slack.NewNotifier(messenger))
	}

	// 4. Knowledge base.
	kn, err := knowledge.NewStore(cfg.Paths.KnowledgeBasePath, nil)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}

	// 5. Admission throttle over live host readings.
	throttler := throttle.New(monitor.NewSystemMonitor(nil), bus, messenger, throttle.Config{
		MemoryFloorBytes:    cfg.Throttle.MemoryFloorBytes(),
		CPUCeiling:          cfg.Throttle.CPUCeiling,
		TemperatureCeilingC: cfg.Throttle.TemperatureCeilingC,
		PollInterval:        cfg.Throttle.PollInterval(),
	}, nil)

	// 6. Agent dispatch, the QA critic and the recovery chain. The
	// fallback dispatcher stays a true nil unless a model is configured.
	agent := dispatch.NewCLIDispatcher(cfg.Agent.CLIBin, cfg.Agent.Model, nil)
	var fallback ports.AgentDispatch
	if cfg.Agent.FallbackModel != "" {
		fallback = dispatch.NewCLIDispatcher(cfg.Agent.CLIBin, cfg.Agent.FallbackModel, nil)
	}
	critic := qa.NewCritic(agent, fallback, cfg.Agent.Timeout(), nil)
	chain := recovery.NewChain(messenger, nil)
	stages := pipeline.NewStageRunner(agent, critic, chain, cfg.Paths.ConfigDir, cfg.Agent.Timeout(), nil)

	// 7. Media tools and final-artifact upload.
	downloader := media.NewDownloader(cfg.Media.YtDlpBin, nil)
	encoder := media.NewEncoder(cfg.Media.FfmpegBin, nil)
	prober := media.NewProber(cfg.Media.FfprobeBin, nil)

	var files ports.FileDelivery
	if cfg.S3.Enabled() {
		up, err := uploader.NewS3Uploader(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix, nil)
		if err != nil {
			return nil, fmt.Errorf("init s3 uploader: %w", err)
		}
		files = up
	}

	// 8. Side generation runs only when the clip service is configured;
	// the await gate still exists either way and completes empty.
	var newSideGen pipeline.SideGenFactory
	if cfg.VideoGen.Enabled() {
		gen := videogen.NewClient(cfg.VideoGen.BaseURL, cfg.VideoGen.APIKey, nil)
		sgCfg := sidegen.Config{
			MaxClips:   cfg.SideGen.MaxClips,
			CropPixels: cfg.SideGen.CropPixels,
		}
		newSideGen = func(ws *workspace.Workspace, runID string) *sidegen.Orchestrator {
			return sidegen.NewOrchestrator(gen, encoder, ws.SideGenDir(), runID, sgCfg, nil)
		}
	}
	gate := sidegen.NewGate(cfg.SideGen.Timeout(), nil)

	// 9. Delivery and the run loop.
	stopper := &daemon.Stopper{}
	runner := pipeline.NewRunner(pipeline.RunnerDeps{
		Workspaces:    spaces,
		Store:         store,
		Bus:           bus,
		Stages:        stages,
		Gate:          gate,
		NewSideGen:    newSideGen,
		Deliverer:     delivery.New(prober, files, messenger, nil),
		Downloader:    downloader,
		Messenger:     messenger,
		StopRequested: stopper.Stopping,
	})

	return &core{
		cfg:       cfg,
		bus:       bus,
		store:     store,
		spaces:    spaces,
		queue:     q,
		knowledge: kn,
		messenger: messenger,
		throttler: throttler,
		planner:   pipeline.NewPlanner(store, bus, messenger, nil),
		runner:    runner,
		stopper:   stopper,
	}, nil
}

// softStopOnSignal latches a soft stop on the first SIGINT or SIGTERM so
// the stage in flight finishes, and hard-cancels on the second.
func softStopOnSignal(ctx context.Context, cancel context.CancelFunc, stop *daemon.Stopper) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			slog.Info("Shutdown signal received, finishing the current stage", "signal", s)
			stop.RequestStop()
		case <-ctx.Done():
			return
		}
		select {
		case s := <-sig:
			slog.Warn("Second signal, aborting now", "signal", s)
			cancel()
		case <-ctx.Done():
		}
	}()
}
