// Package recovery walks the four-level ladder for a stage whose QA gate
// could not be satisfied: RETRY, FORK, FRESH, then ESCALATE to the user.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// ExecOptions selects what context survives into one recovery attempt.
type ExecOptions struct {
	// KeepArtifacts leaves prior stage artifacts available to the agent.
	KeepArtifacts bool
	// KeepHistory leaves prior attempt rationale available to the agent.
	KeepHistory bool
}

// OptionsFor maps an executing level to its context-stripping rules.
// RETRY keeps everything, FORK drops history, FRESH drops both.
func OptionsFor(level models.RecoveryLevel) ExecOptions {
	switch level {
	case models.RecoveryRetry:
		return ExecOptions{KeepArtifacts: true, KeepHistory: true}
	case models.RecoveryFork:
		return ExecOptions{KeepArtifacts: true}
	default:
		return ExecOptions{}
	}
}

// ExecFunc re-runs one stage invocation under the given options and
// returns the approved artifact path.
type ExecFunc func(ctx context.Context, opts ExecOptions) (string, error)

// Chain escalates through recovery levels for one failed stage.
type Chain struct {
	messenger ports.Messaging
	logger    *slog.Logger
}

// NewChain creates a chain. messenger may be nil; escalation then only
// publishes the event.
func NewChain(messenger ports.Messaging, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{messenger: messenger, logger: logger.With("component", "recovery")}
}

// Run attempts RETRY, FORK and FRESH in order and stops at the first
// success. Each level is announced before it executes and never repeats.
// When all three fail the chain escalates: event, user notification, and
// a RecoveryExhausted error. A cancelled context aborts the walk without
// escalating so shutdowns do not page anyone.
func (c *Chain) Run(ctx context.Context, pub *events.Publisher, stage models.PipelineStage, cause error, exec ExecFunc) (models.RecoveryResult, error) {
	lastErr := cause

	for _, level := range models.RecoveryLevels() {
		if level == models.RecoveryEscalate {
			break
		}
		pub.RecoveryLevelAttempted(ctx, stage, level)
		c.logger.Info("Attempting recovery level", "run_id", pub.RunID(), "stage", stage, "level", level)

		artifact, err := exec(ctx, OptionsFor(level))
		if err == nil {
			c.logger.Info("Recovery succeeded", "run_id", pub.RunID(), "stage", stage, "level", level)
			return models.RecoveryResult{Level: level, Succeeded: true, FinalArtifact: artifact}, nil
		}
		lastErr = err
		c.logger.Warn("Recovery level failed", "run_id", pub.RunID(), "stage", stage, "level", level, "error", err)

		if ctx.Err() != nil {
			return models.RecoveryResult{Level: level}, fmt.Errorf("recovery interrupted at %s: %w", level, ctx.Err())
		}
	}

	pub.RecoveryLevelAttempted(ctx, stage, models.RecoveryEscalate)
	summary := fmt.Sprintf("Run %s needs attention: stage %s failed after RETRY, FORK and FRESH recovery. Last error: %v",
		pub.RunID(), stage, lastErr)
	pub.RecoveryEscalated(ctx, stage, summary)
	c.notify(ctx, ":rotating_light: "+summary)

	return models.RecoveryResult{Level: models.RecoveryEscalate}, NewRecoveryExhausted(stage, lastErr)
}

// notify delivers the escalation message. Failures are swallowed; the
// chain has already done all it can.
func (c *Chain) notify(ctx context.Context, text string) {
	if c.messenger == nil {
		return
	}
	if err := c.messenger.Notify(ctx, text); err != nil {
		c.logger.Warn("Escalation notification failed", "error", err)
	}
}
