package models

import "fmt"

// PipelineStage identifies one step of the reel pipeline. Stages execute in
// the order returned by StageOrder. SIDEGEN_AWAIT is a non-agent gate and
// DELIVERY bypasses the agent/QA machinery entirely.
type PipelineStage string

const (
	StageRouter          PipelineStage = "ROUTER"
	StageResearch        PipelineStage = "RESEARCH"
	StageTranscript      PipelineStage = "TRANSCRIPT"
	StageContent         PipelineStage = "CONTENT"
	StageLayoutDetective PipelineStage = "LAYOUT_DETECTIVE"
	StageFFmpegEngineer  PipelineStage = "FFMPEG_ENGINEER"
	StageSideGenAwait    PipelineStage = "SIDEGEN_AWAIT"
	StageAssembly        PipelineStage = "ASSEMBLY"
	StageDelivery        PipelineStage = "DELIVERY"
)

var stageOrder = []PipelineStage{
	StageRouter,
	StageResearch,
	StageTranscript,
	StageContent,
	StageLayoutDetective,
	StageFFmpegEngineer,
	StageSideGenAwait,
	StageAssembly,
	StageDelivery,
}

// StageOrder returns the canonical stage sequence as a fresh slice.
func StageOrder() []PipelineStage {
	out := make([]PipelineStage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// StageCount returns the number of pipeline stages.
func StageCount() int {
	return len(stageOrder)
}

// StageAt returns the stage at the given one-based position.
func StageAt(n int) (PipelineStage, bool) {
	if n < 1 || n > len(stageOrder) {
		return "", false
	}
	return stageOrder[n-1], true
}

// Index returns the zero-based position of the stage in the canonical
// order, or -1 for unknown stages.
func (s PipelineStage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// IsValid returns true if the stage is a known value.
func (s PipelineStage) IsValid() bool {
	return s.Index() >= 0
}

// IsAgentStage reports whether the stage runs through agent dispatch and
// the QA gate.
func (s PipelineStage) IsAgentStage() bool {
	return s.IsValid() && s != StageSideGenAwait && s != StageDelivery
}

// ParseStage converts a raw string into a PipelineStage.
func ParseStage(raw string) (PipelineStage, error) {
	s := PipelineStage(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown pipeline stage %q", raw)
	}
	return s, nil
}
