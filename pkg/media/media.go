// Package media wraps the external video tools the pipeline shells out
// to: yt-dlp for source download, ffmpeg for encode and crop work, and
// ffprobe for inspection. Each tool runs as a one-shot subprocess with a
// bounded stderr tail kept for failure reports.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/reelworks/reeler/pkg/dispatch"
)

const (
	ringCapacity    = 64
	stderrTailLines = 8
)

// ToolError reports one failed tool invocation. ExitCode is -1 when the
// process never ran or died on a signal.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   []string
	Err      error
}

func (e *ToolError) Error() string {
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("%s: %v; stderr: %s", e.Tool, e.Err, e.Stderr[len(e.Stderr)-1])
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// runner executes one external tool with the shared cancellation ladder:
// context expiry sends SIGTERM, and killGrace later the process group is
// killed outright.
type runner struct {
	bin       string
	killGrace time.Duration
	logger    *slog.Logger
}

func newRunner(bin, fallback string, logger *slog.Logger) runner {
	if bin == "" {
		bin = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return runner{
		bin:       bin,
		killGrace: dispatch.DefaultKillGrace,
		logger:    logger.With("component", "media"),
	}
}

func (r runner) run(ctx context.Context, stdout io.Writer, args ...string) error {
	ring := dispatch.NewLineRing(ringCapacity)

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = ring
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.killGrace

	started := time.Now()
	r.logger.Debug("Running media tool", "bin", r.bin, "args", args)

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		tail := ring.LastN(stderrTailLines)
		r.logger.Warn("Media tool failed",
			"bin", r.bin,
			"exit_code", exitCode,
			"elapsed", time.Since(started).Round(time.Millisecond),
			"stderr", tail,
			"error", err)
		return &ToolError{Tool: filepath.Base(r.bin), ExitCode: exitCode, Stderr: tail, Err: err}
	}

	r.logger.Debug("Media tool finished", "bin", r.bin, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}
