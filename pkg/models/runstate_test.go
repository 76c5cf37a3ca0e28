package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunState(t *testing.T) {
	s := NewRunState("20260101-120000-000001-abcd1234", "sha256:deadbeef")

	assert.Equal(t, StageRouter, s.Stage)
	assert.Equal(t, RunStatusRunning, s.Status)
	assert.Empty(t, s.StagesCompleted)
	assert.Equal(t, "sha256:deadbeef", s.RequestFingerprint)
	assert.False(t, s.Finished())
}

func TestRunStateMarkCompleted(t *testing.T) {
	s := NewRunState("r1", "fp")

	s.MarkCompleted(StageRouter)
	s.MarkCompleted(StageResearch)
	s.MarkCompleted(StageRouter) // duplicate is a no-op

	assert.Equal(t, []PipelineStage{StageRouter, StageResearch}, s.StagesCompleted)
	assert.True(t, s.Completed(StageRouter))
	assert.False(t, s.Completed(StageTranscript))
}

func TestRunStateResumeFrom(t *testing.T) {
	s := NewRunState("r1", "fp")
	s.MarkCompleted(StageRouter)
	s.MarkCompleted(StageResearch)

	next, ok := s.ResumeFrom()
	require.True(t, ok)
	assert.Equal(t, StageTranscript, next)

	// N-1 stages completed resumes at the Nth.
	for _, stage := range StageOrder()[:StageCount()-1] {
		s.MarkCompleted(stage)
	}
	next, ok = s.ResumeFrom()
	require.True(t, ok)
	assert.Equal(t, StageDelivery, next)

	// A set containing the terminal stage yields no resume work.
	s.MarkCompleted(StageDelivery)
	_, ok = s.ResumeFrom()
	assert.False(t, ok)
	assert.True(t, s.Finished())
}

func TestRunStateRecordAttempt(t *testing.T) {
	s := &RunState{RunID: "r1"}
	s.RecordAttempt(StageContent)
	s.RecordAttempt(StageContent)
	s.RecordAttempt(StageRouter)

	assert.Equal(t, 2, s.Attempts[StageContent])
	assert.Equal(t, 1, s.Attempts[StageRouter])
}

func TestNewRunID(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 535_897_000, time.UTC)
	id := NewRunID(at)

	require.Regexp(t, `^20260314-150926-535897-[0-9a-f]{8}$`, id)

	// Two ids minted at the same instant differ in the random suffix.
	other := NewRunID(at)
	assert.NotEqual(t, id, other)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("https://example.com/v", "make it punchy")
	b := Fingerprint("https://example.com/v", "make it punchy")
	c := Fingerprint("https://example.com/v", "different message")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, a)
}
