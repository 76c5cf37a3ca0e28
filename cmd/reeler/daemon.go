package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeler/pkg/api"
	"github.com/reelworks/reeler/pkg/config"
	"github.com/reelworks/reeler/pkg/daemon"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/slack"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the reeler service loop",
		Long: `Poll the messaging channel for requests, consume the queue under
resource admission, and keep the supervisor heartbeat alive. Interrupt
once to finish the current stage and exit; interrupt again to abort.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runDaemon(cmd.Context(), configDir)
		},
	}
}

func runDaemon(ctx context.Context, configDir string) error {
	loadEnv(configDir)
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}

	var inbox ports.MessageSource
	if cfg.Slack.Enabled() {
		client := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.ChannelID)
		inbox = slack.NewInbox(client, cfg.Slack.AllowedUsers, nil)
	}

	var watchdog *daemon.Watchdog
	if cfg.Daemon.WatchdogWindowS > 0 {
		watchdog = daemon.NewWatchdog(cfg.Daemon.WatchdogWindow(), nil)
	}

	var ops *api.Server
	if cfg.API.Enabled() {
		ops = api.NewServer(c.queue, c.store, c.spaces, cfg.API.AuthToken, nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	softStopOnSignal(ctx, cancel, c.stopper)

	d := daemon.New(daemon.Deps{
		Queue:     c.queue,
		Runner:    c.runner,
		Planner:   c.planner,
		Throttler: c.throttler,
		Bus:       c.bus,
		Inbox:     inbox,
		Messenger: c.messenger,
		Watchdog:  watchdog,
		API:       ops,
		APIAddr:   cfg.API.ListenAddr,
		Knowledge: c.knowledge,
		Stop:      c.stopper,
		Retention: cfg.Daemon.QueueRetention(),
	})
	return d.Run(ctx)
}
