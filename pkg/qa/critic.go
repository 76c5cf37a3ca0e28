// Package qa turns stage output into a structured PASS/REWORK/FAIL
// judgement by asking a critic model to review it against the stage's
// gate criteria. The rework loop itself lives with the stage runner;
// this package owns one critique round trip.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

const (
	// InlineThresholdBytes is the largest artifact embedded verbatim in a
	// critique prompt. Anything larger is described instead of quoted.
	InlineThresholdBytes = 15000

	// DefaultMaxAttempts bounds critique rounds per stage invocation.
	DefaultMaxAttempts = 3

	// SyntheticFix is prescribed when a critique reply cannot be parsed.
	SyntheticFix = "restate output in the declared schema"

	// minCritiqueTimeout floors the critique budget regardless of how
	// short the agent budget is.
	minCritiqueTimeout = 300 * time.Second
)

// Artifact is one stage output presented to the critic.
type Artifact struct {
	Path string
	Data []byte
}

// Critic obtains structured judgements through the dispatch port, trying
// the preferred model first and one fallback on garbled or failed
// replies.
type Critic struct {
	preferred    ports.AgentDispatch
	fallback     ports.AgentDispatch
	agentTimeout time.Duration
	logger       *slog.Logger
}

// NewCritic creates a critic. fallback may be nil to disable the second
// rung of the ladder.
func NewCritic(preferred, fallback ports.AgentDispatch, agentTimeout time.Duration, logger *slog.Logger) *Critic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Critic{
		preferred:    preferred,
		fallback:     fallback,
		agentTimeout: agentTimeout,
		logger:       logger.With("component", "qa"),
	}
}

// Timeout is the per-critique dispatch budget: half the agent budget,
// floored so slow hosts still get a full judgement.
func (c *Critic) Timeout() time.Duration {
	half := c.agentTimeout / 2
	if half < minCritiqueTimeout {
		return minCritiqueTimeout
	}
	return half
}

// Critique judges the given artifacts against the stage's gate criteria.
// A reply that cannot be parsed on either ladder rung degrades to a
// synthetic REWORK so the stage runner can burn an attempt and re-invoke
// the agent. An error is returned only when no rung produced any reply.
func (c *Critic) Critique(ctx context.Context, stage models.PipelineStage, criteria string, artifacts []Artifact) (models.QACritique, error) {
	prompt := buildPrompt(stage, criteria, artifacts)
	timeout := c.Timeout()

	reply, err := c.preferred.Dispatch(ctx, prompt, timeout)
	if err == nil {
		critique, perr := ParseCritique(reply)
		if perr == nil {
			return critique, nil
		}
		c.logger.Warn("Critique unparseable on preferred model", "stage", stage, "error", perr)
	} else {
		c.logger.Warn("Critique dispatch failed on preferred model", "stage", stage, "error", err)
	}

	if c.fallback == nil {
		if err != nil {
			return models.QACritique{}, fmt.Errorf("critique dispatch for %s: %w", stage, err)
		}
		return syntheticRework(), nil
	}

	fbReply, fbErr := c.fallback.Dispatch(ctx, prompt, timeout)
	if fbErr == nil {
		critique, perr := ParseCritique(fbReply)
		if perr == nil {
			return critique, nil
		}
		c.logger.Warn("Critique unparseable on fallback model", "stage", stage, "error", perr)
		return syntheticRework(), nil
	}
	c.logger.Warn("Critique dispatch failed on fallback model", "stage", stage, "error", fbErr)

	if err != nil {
		// Neither rung produced a reply.
		return models.QACritique{}, fmt.Errorf("critique dispatch for %s: %w", stage, fbErr)
	}
	// The preferred rung replied, just not in schema.
	return syntheticRework(), nil
}

func syntheticRework() models.QACritique {
	return models.QACritique{
		Decision:          models.QARework,
		Blockers:          []string{"critique reply was not valid JSON"},
		PrescriptiveFixes: []string{SyntheticFix},
	}
}
