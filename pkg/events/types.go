// Package events provides the in-process publish/subscribe backbone of the
// pipeline.
//
// Event names are namespaced:
//
//	pipeline.*  run and stage lifecycle
//	qa.*        reflection-gate outcomes
//	recovery.*  recovery-chain progress and resume planning
//	sidegen.*   side-generation await-gate lifecycle
//	queue.*     queue item movement
//	resource.*  admission throttling
//	daemon.*    process lifecycle
//
// Delivery is sequential in subscription order; a failing listener is
// logged and skipped, never propagated. Publish order is preserved across
// events. The bus is process-scoped and keeps nothing: durability belongs
// to the journal listener.
package events

import (
	"encoding/json"
	"time"

	"github.com/reelworks/reeler/pkg/models"
)

// Pipeline lifecycle events.
const (
	EventStageEntered   = "pipeline.stage_entered"
	EventStageCompleted = "pipeline.stage_completed"
	EventStageFailed    = "pipeline.stage_failed"
	EventRunCompleted   = "pipeline.run_completed"
	EventRunFailed      = "pipeline.run_failed"
)

// QA gate events.
const (
	EventGatePassed   = "qa.gate_passed"
	EventGateReworked = "qa.gate_reworked"
	EventGateFailed   = "qa.gate_failed"
)

// Recovery events.
const (
	EventRecoveryLevelAttempted = "recovery.level_attempted"
	EventRecoveryEscalated      = "recovery.escalated"
	EventResumePlanned          = "recovery.resume_planned"
)

// Side-generation gate events.
const (
	EventSideGenGateStarted   = "sidegen.gate_started"
	EventSideGenGateRetried   = "sidegen.gate_retried"
	EventSideGenGateCompleted = "sidegen.gate_completed"
	EventSideGenGateTimeout   = "sidegen.gate_timeout"
)

// Queue events.
const (
	EventQueueItemEnqueued  = "queue.item_enqueued"
	EventQueueItemClaimed   = "queue.item_claimed"
	EventQueueItemCommitted = "queue.item_committed"
	EventQueueItemReleased  = "queue.item_released"
)

// Resource admission events.
const (
	EventResourceBlocked = "resource.blocked"
	EventResourceResumed = "resource.resumed"
)

// Daemon lifecycle events.
const (
	EventDaemonStarted  = "daemon.started"
	EventDaemonStopping = "daemon.stopping"
)

// Event is one pipeline occurrence. Stage is empty for events that are not
// tied to a stage; RunID is empty for daemon-scoped events.
type Event struct {
	Timestamp time.Time
	Name      string
	Stage     models.PipelineStage
	RunID     string
	Data      any
}

// New builds an event stamped with the current UTC time.
func New(name, runID string, stage models.PipelineStage, data any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Name:      name,
		Stage:     stage,
		RunID:     runID,
		Data:      data,
	}
}

// DataJSON renders the payload as compact JSON, "{}" when absent, and a
// best-effort error object when the payload cannot be marshalled.
func (e Event) DataJSON() string {
	if e.Data == nil {
		return "{}"
	}
	b, err := json.Marshal(e.Data)
	if err != nil {
		return `{"marshal_error":true}`
	}
	return string(b)
}
