package models

import "time"

// RunStatus is the coarse lifecycle of a run, recorded alongside the
// current stage so crash recovery can tell resumable work from runs that
// already reached a terminal outcome.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsValid returns true if the run status is a known value.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// RunState is the durable per-run checkpoint record, persisted as the
// front matter of the workspace run document. Field names here are the
// on-disk key names.
type RunState struct {
	RunID              string                `yaml:"run_id" json:"run_id"`
	Stage              PipelineStage         `yaml:"stage" json:"stage"`
	Status             RunStatus             `yaml:"status" json:"status"`
	StagesCompleted    []PipelineStage       `yaml:"stages_completed" json:"stages_completed"`
	UpdatedAt          time.Time             `yaml:"updated_at" json:"updated_at"`
	RequestFingerprint string                `yaml:"request_fingerprint" json:"request_fingerprint"`
	Attempts           map[PipelineStage]int `yaml:"attempts" json:"attempts"`
}

// NewRunState returns the state of a freshly claimed run positioned at the
// first stage.
func NewRunState(runID, fingerprint string) *RunState {
	return &RunState{
		RunID:              runID,
		Stage:              StageRouter,
		Status:             RunStatusRunning,
		StagesCompleted:    []PipelineStage{},
		UpdatedAt:          time.Now().UTC(),
		RequestFingerprint: fingerprint,
		Attempts:           map[PipelineStage]int{},
	}
}

// Completed reports whether the stage is in the completed set.
func (s *RunState) Completed(stage PipelineStage) bool {
	for _, done := range s.StagesCompleted {
		if done == stage {
			return true
		}
	}
	return false
}

// MarkCompleted appends the stage to the completed set, preserving
// insertion order and skipping duplicates.
func (s *RunState) MarkCompleted(stage PipelineStage) {
	if s.Completed(stage) {
		return
	}
	s.StagesCompleted = append(s.StagesCompleted, stage)
	s.UpdatedAt = time.Now().UTC()
}

// RecordAttempt increments the attempt counter for the stage.
func (s *RunState) RecordAttempt(stage PipelineStage) {
	if s.Attempts == nil {
		s.Attempts = map[PipelineStage]int{}
	}
	s.Attempts[stage]++
	s.UpdatedAt = time.Now().UTC()
}

// ResumeFrom returns the first stage in canonical order that is not yet in
// the completed set. The boolean is false when every stage, including the
// terminal one, is already complete.
func (s *RunState) ResumeFrom() (PipelineStage, bool) {
	for _, stage := range stageOrder {
		if !s.Completed(stage) {
			return stage, true
		}
	}
	return "", false
}

// Finished reports whether the run reached its terminal stage.
func (s *RunState) Finished() bool {
	return s.Completed(StageDelivery)
}
