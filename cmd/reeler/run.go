package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeler/pkg/config"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/pipeline"
	"github.com/reelworks/reeler/pkg/workspace"
)

type runOptions struct {
	message        string
	targetDuration int
	moments        int
	resumePath     string
	startStage     int
	timeoutS       int
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [source-url]",
		Short: "Produce one reel from a source video URL",
		Long: `Run the full pipeline once, in the foreground, and deliver the reel.

The source URL may be omitted when resuming an existing workspace with
--resume. Interrupt once to finish the current stage and stop; interrupt
again to abort immediately.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return pipeline.NewUserArgumentError(
					fmt.Sprintf("expected one source URL, got %d arguments", len(args)),
					"quote the message and pass it with --message")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runOnce(cmd.Context(), configDir, args, opts)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&opts.message, "message", "m", "", "free-text guidance forwarded to the agents")
	fl.IntVar(&opts.targetDuration, "target-duration", 0, "target reel duration in seconds")
	fl.IntVar(&opts.moments, "moments", 0, "number of highlight moments to select")
	fl.StringVar(&opts.resumePath, "resume", "", "existing workspace directory to resume")
	fl.IntVar(&opts.startStage, "start-stage", 0, "1-based stage to force as the starting point (needs --resume)")
	fl.IntVar(&opts.timeoutS, "timeout", 0, "overall run budget in seconds (0 means no limit)")
	return cmd
}

// runOnce validates the arguments, wires the machinery and drives a
// single run to delivery. Argument problems surface before any side
// effect on disk.
func runOnce(ctx context.Context, configDir string, args []string, opts *runOptions) error {
	req, err := buildRequest(args, opts)
	if err != nil {
		return err
	}
	if err := pipeline.ValidateDirectives(req.Directives); err != nil {
		return err
	}

	loadEnv(configDir)
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	runID := models.NewRunID(time.Now())
	if opts.resumePath != "" {
		// Resuming adopts the workspace where it lives; the run id is
		// the directory name.
		abs, err := filepath.Abs(opts.resumePath)
		if err != nil {
			return fmt.Errorf("resolve resume path: %w", err)
		}
		cfg.Paths.WorkspaceRoot = filepath.Dir(abs)
		runID = filepath.Base(abs)
	}

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	softStopOnSignal(ctx, cancel, c.stopper)

	if opts.timeoutS > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(opts.timeoutS)*time.Second)
		defer timeoutCancel()
	}

	if err := c.runner.Execute(ctx, runID, req); err != nil {
		return err
	}
	fmt.Printf("reel ready: %s\n", filepath.Join(cfg.Paths.WorkspaceRoot, runID, workspace.FinalReelName))
	return nil
}

// buildRequest turns CLI arguments into the run request. A source URL is
// required unless an existing workspace is being resumed.
func buildRequest(args []string, opts *runOptions) (*models.Request, error) {
	var source string
	if len(args) == 1 {
		source = args[0]
		u, err := url.Parse(source)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, pipeline.NewUserArgumentError(
				fmt.Sprintf("source %q is not an http(s) URL", source),
				"pass the video page URL, e.g. https://example.com/watch?v=abc")
		}
	} else if opts.resumePath == "" {
		return nil, pipeline.NewUserArgumentError(
			"a source video URL is required",
			"pass the URL as the first argument, or --resume an existing workspace")
	}

	return &models.Request{
		SourceURL:   source,
		MessageText: opts.message,
		Directives: models.Directives{
			TargetDurationS: opts.targetDuration,
			SegmentCount:    opts.moments,
			ResumePath:      opts.resumePath,
			StartStage:      opts.startStage,
		},
	}, nil
}
