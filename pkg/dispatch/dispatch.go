// Package dispatch runs the reasoning CLI as a one-shot subprocess. The
// prompt goes in on stdin, the reply comes back on stdout, and a bounded
// stderr tail is kept for failure reports. Stage work and QA critiques
// both go through this adapter; the QA fallback ladder is two dispatchers
// configured with different models.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultKillGrace bounds how long a timed-out agent may linger
	// between SIGTERM and SIGKILL.
	DefaultKillGrace = 5 * time.Second

	ringCapacity    = 64
	stderrTailLines = 8
)

// CLIDispatcher implements ports.AgentDispatch by invoking a
// command-line agent once per call.
type CLIDispatcher struct {
	bin       string
	model     string
	killGrace time.Duration
	logger    *slog.Logger
}

// NewCLIDispatcher creates a dispatcher for the given binary. model may
// be empty; the agent then runs with its own default.
func NewCLIDispatcher(bin, model string, logger *slog.Logger) *CLIDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIDispatcher{
		bin:       bin,
		model:     model,
		killGrace: DefaultKillGrace,
		logger:    logger.With("component", "dispatch"),
	}
}

// Dispatch runs one agent invocation and returns its full stdout.
// timeout bounds the call; on expiry the process receives SIGTERM and,
// after a short grace, SIGKILL. The returned error wraps the context
// error on timeout so callers can tell a slow agent from a broken one.
func (d *CLIDispatcher) Dispatch(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if d.bin == "" {
		return "", &DispatchError{Bin: d.bin, ExitCode: -1, Err: errors.New("agent binary not configured")}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var args []string
	if d.model != "" {
		args = append(args, "--model", d.model)
	}

	ring := NewLineRing(ringCapacity)
	var stdout bytes.Buffer

	cmd := exec.CommandContext(ctx, d.bin, args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = ring
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = d.killGrace

	started := time.Now()
	d.logger.Debug("Dispatching agent", "bin", d.bin, "model", d.model, "prompt_bytes", len(prompt))

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		tail := ring.LastN(stderrTailLines)
		d.logger.Warn("Agent invocation failed",
			"bin", d.bin,
			"model", d.model,
			"exit_code", exitCode,
			"elapsed", time.Since(started).Round(time.Millisecond),
			"stderr", tail,
			"error", err)
		return "", &DispatchError{Bin: d.bin, ExitCode: exitCode, Stderr: tail, Err: err}
	}

	reply := stdout.String()
	d.logger.Debug("Agent replied",
		"bin", d.bin,
		"elapsed", time.Since(started).Round(time.Millisecond),
		"reply_bytes", len(reply))
	return reply, nil
}
