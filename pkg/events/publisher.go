package events

import (
	"context"

	"github.com/reelworks/reeler/pkg/models"
)

// Publisher is a run-scoped convenience wrapper that stamps every event
// with the run id and publishes it on the bus.
type Publisher struct {
	bus   *Bus
	runID string
}

// NewPublisher creates a publisher for one run.
func NewPublisher(bus *Bus, runID string) *Publisher {
	return &Publisher{bus: bus, runID: runID}
}

// RunID returns the run this publisher is bound to.
func (p *Publisher) RunID() string {
	return p.runID
}

func (p *Publisher) publish(ctx context.Context, name string, stage models.PipelineStage, data any) {
	p.bus.Publish(ctx, New(name, p.runID, stage, data))
}

// StageEntered publishes pipeline.stage_entered.
func (p *Publisher) StageEntered(ctx context.Context, stage models.PipelineStage) {
	p.publish(ctx, EventStageEntered, stage, nil)
}

// StageCompleted publishes pipeline.stage_completed.
func (p *Publisher) StageCompleted(ctx context.Context, stage models.PipelineStage) {
	p.publish(ctx, EventStageCompleted, stage, nil)
}

// StageFailed publishes pipeline.stage_failed.
func (p *Publisher) StageFailed(ctx context.Context, stage models.PipelineStage, reason string) {
	p.publish(ctx, EventStageFailed, stage, FailurePayload{Reason: reason})
}

// RunCompleted publishes the run's terminal success event.
func (p *Publisher) RunCompleted(ctx context.Context) {
	p.publish(ctx, EventRunCompleted, "", nil)
}

// RunFailed publishes the run's terminal failure event.
func (p *Publisher) RunFailed(ctx context.Context, reason string) {
	p.publish(ctx, EventRunFailed, "", FailurePayload{Reason: reason})
}

// GatePassed publishes qa.gate_passed.
func (p *Publisher) GatePassed(ctx context.Context, stage models.PipelineStage, critique models.QACritique, attempt int) {
	p.publish(ctx, EventGatePassed, stage, GatePayload{Score: critique.Score, Attempt: attempt})
}

// GateReworked publishes qa.gate_reworked with the prescriptive fixes.
func (p *Publisher) GateReworked(ctx context.Context, stage models.PipelineStage, critique models.QACritique, attempt int) {
	p.publish(ctx, EventGateReworked, stage, GatePayload{
		Score:    critique.Score,
		Attempt:  attempt,
		Blockers: critique.Blockers,
		Fixes:    critique.PrescriptiveFixes,
	})
}

// GateFailed publishes qa.gate_failed.
func (p *Publisher) GateFailed(ctx context.Context, stage models.PipelineStage, critique models.QACritique, attempt int) {
	p.publish(ctx, EventGateFailed, stage, GatePayload{
		Score:    critique.Score,
		Attempt:  attempt,
		Blockers: critique.Blockers,
	})
}

// RecoveryLevelAttempted publishes recovery.level_attempted.
func (p *Publisher) RecoveryLevelAttempted(ctx context.Context, stage models.PipelineStage, level models.RecoveryLevel) {
	p.publish(ctx, EventRecoveryLevelAttempted, stage, RecoveryLevelPayload{Level: level})
}

// RecoveryEscalated publishes recovery.escalated.
func (p *Publisher) RecoveryEscalated(ctx context.Context, stage models.PipelineStage, summary string) {
	p.publish(ctx, EventRecoveryEscalated, stage, EscalationPayload{Summary: summary})
}

// ResumePlanned publishes recovery.resume_planned.
func (p *Publisher) ResumePlanned(ctx context.Context, plan ResumePlanPayload) {
	p.publish(ctx, EventResumePlanned, plan.ResumeFrom, plan)
}

// SideGenGateStarted publishes sidegen.gate_started.
func (p *Publisher) SideGenGateStarted(ctx context.Context) {
	p.publish(ctx, EventSideGenGateStarted, models.StageSideGenAwait, nil)
}

// SideGenGateRetried publishes sidegen.gate_retried.
func (p *Publisher) SideGenGateRetried(ctx context.Context, resubmitted int) {
	p.publish(ctx, EventSideGenGateRetried, models.StageSideGenAwait, SideGenGatePayload{Resubmitted: resubmitted})
}

// SideGenGateCompleted publishes sidegen.gate_completed.
func (p *Publisher) SideGenGateCompleted(ctx context.Context, ready, total int) {
	p.publish(ctx, EventSideGenGateCompleted, models.StageSideGenAwait, SideGenGatePayload{ClipsReady: ready, JobsTotal: total})
}

// SideGenGateTimeout publishes sidegen.gate_timeout.
func (p *Publisher) SideGenGateTimeout(ctx context.Context, pending int) {
	p.publish(ctx, EventSideGenGateTimeout, models.StageSideGenAwait, SideGenGatePayload{Pending: pending})
}
