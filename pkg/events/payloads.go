package events

import "github.com/reelworks/reeler/pkg/models"

// GatePayload accompanies qa.* events.
type GatePayload struct {
	Score    int      `json:"score"`
	Attempt  int      `json:"attempt"`
	Blockers []string `json:"blockers,omitempty"`
	Fixes    []string `json:"fixes,omitempty"`
}

// FailurePayload accompanies pipeline.stage_failed and pipeline.run_failed.
type FailurePayload struct {
	Reason string `json:"reason"`
}

// RecoveryLevelPayload accompanies recovery.level_attempted.
type RecoveryLevelPayload struct {
	Level models.RecoveryLevel `json:"level"`
}

// EscalationPayload accompanies recovery.escalated.
type EscalationPayload struct {
	Summary string `json:"summary"`
}

// ResumePlanPayload accompanies recovery.resume_planned.
type ResumePlanPayload struct {
	ResumeFrom      models.PipelineStage `json:"resume_from"`
	StagesCompleted int                  `json:"stages_completed"`
	StagesTotal     int                  `json:"stages_total"`
}

// SideGenGatePayload accompanies sidegen.gate_* events.
type SideGenGatePayload struct {
	ClipsReady  int `json:"clips_ready,omitempty"`
	JobsTotal   int `json:"jobs_total,omitempty"`
	Resubmitted int `json:"resubmitted,omitempty"`
	Pending     int `json:"pending,omitempty"`
}

// QueueItemPayload accompanies queue.item_* events.
type QueueItemPayload struct {
	File string `json:"file"`
}

// ResourcePayload accompanies resource.* events.
type ResourcePayload struct {
	Reasons []string `json:"reasons,omitempty"`
}

// DaemonPayload accompanies daemon.* events.
type DaemonPayload struct {
	Reason string `json:"reason,omitempty"`
}
