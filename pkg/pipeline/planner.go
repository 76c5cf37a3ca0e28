package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// RecoveryPlan describes how one unfinished run resumes after a restart.
type RecoveryPlan struct {
	RunID           string
	ResumeFrom      models.PipelineStage
	StagesCompleted []models.PipelineStage
	StagesRemaining []models.PipelineStage
}

// Planner inspects unfinished runs at daemon startup and announces the
// resume point for each. The actual resumption happens when the matching
// queue item is re-claimed.
type Planner struct {
	store     ports.StateStore
	bus       *events.Bus
	messenger ports.Messaging
	logger    *slog.Logger
}

// NewPlanner creates a crash-recovery planner. messenger may be nil.
func NewPlanner(store ports.StateStore, bus *events.Bus, messenger ports.Messaging, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{store: store, bus: bus, messenger: messenger, logger: logger.With("component", "planner")}
}

// PlanFor computes the resume point for one run: the first stage in
// canonical order not yet completed. The persisted current stage is
// deliberately ignored; stages_completed is the durable truth.
func PlanFor(state *models.RunState) (RecoveryPlan, bool) {
	resume, ok := state.ResumeFrom()
	if !ok {
		return RecoveryPlan{}, false
	}

	plan := RecoveryPlan{
		RunID:           state.RunID,
		ResumeFrom:      resume,
		StagesCompleted: append([]models.PipelineStage(nil), state.StagesCompleted...),
	}
	reached := false
	for _, stage := range models.StageOrder() {
		if stage == resume {
			reached = true
		}
		if reached && !state.Completed(stage) {
			plan.StagesRemaining = append(plan.StagesRemaining, stage)
		}
	}
	return plan, true
}

// PlanAll plans every incomplete run, publishing one resume_planned event
// and sending one user notification per run. Notification failure never
// blocks recovery.
func (p *Planner) PlanAll(ctx context.Context) ([]RecoveryPlan, error) {
	states, err := p.store.ListIncompleteRuns()
	if err != nil {
		return nil, fmt.Errorf("list incomplete runs: %w", err)
	}

	var plans []RecoveryPlan
	for _, state := range states {
		plan, ok := PlanFor(state)
		if !ok {
			continue
		}
		plans = append(plans, plan)

		pub := events.NewPublisher(p.bus, state.RunID)
		pub.ResumePlanned(ctx, events.ResumePlanPayload{
			ResumeFrom:      plan.ResumeFrom,
			StagesCompleted: len(plan.StagesCompleted),
			StagesTotal:     models.StageCount(),
		})

		p.logger.Info("Planned crash resume",
			"run_id", state.RunID,
			"resume_from", plan.ResumeFrom,
			"completed", len(plan.StagesCompleted))

		if p.messenger != nil {
			msg := fmt.Sprintf("Resuming your run %s from %s (%d of %d stages completed)",
				state.RunID, plan.ResumeFrom, len(plan.StagesCompleted), models.StageCount())
			if err := p.messenger.Notify(ctx, msg); err != nil {
				p.logger.Warn("Resume notification failed", "run_id", state.RunID, "error", err)
			}
		}
	}
	return plans, nil
}

// ValidateDirectives enforces the CLI resume preconditions. It must run
// before any side effect so a bad invocation leaves no trace.
func ValidateDirectives(d models.Directives) error {
	if d.ResumePath != "" {
		info, err := os.Stat(d.ResumePath)
		if err != nil || !info.IsDir() {
			return NewUserArgumentError(
				fmt.Sprintf("resume path %q does not exist", d.ResumePath),
				"pass a workspace directory created by a previous run")
		}
	}

	if d.StartStage != 0 {
		if d.StartStage < 1 || d.StartStage > models.StageCount() {
			return NewUserArgumentError(
				fmt.Sprintf("start stage %d out of range", d.StartStage),
				fmt.Sprintf("choose a stage between 1 and %d", models.StageCount()))
		}
		if d.StartStage > 1 && d.ResumePath == "" {
			return NewUserArgumentError(
				"starting past the first stage requires a resume path",
				"add --resume <workspace-dir> so prior artifacts are available")
		}
	}
	return nil
}
