package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/models"
)

func TestNextFollowsStageOrder(t *testing.T) {
	tests := []struct {
		from   models.PipelineStage
		signal Signal
		want   models.PipelineStage
	}{
		{models.StageRouter, SignalQAPass, models.StageResearch},
		{models.StageResearch, SignalQAPass, models.StageTranscript},
		{models.StageTranscript, SignalQAPass, models.StageContent},
		{models.StageContent, SignalQAPass, models.StageLayoutDetective},
		{models.StageLayoutDetective, SignalQAPass, models.StageFFmpegEngineer},
		{models.StageFFmpegEngineer, SignalQAPass, models.StageSideGenAwait},
		{models.StageSideGenAwait, SignalGateComplete, models.StageAssembly},
		{models.StageAssembly, SignalQAPass, models.StageDelivery},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, err := Next(tt.from, tt.signal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRejectsIllegalEdges(t *testing.T) {
	tests := []struct {
		name   string
		from   models.PipelineStage
		signal Signal
	}{
		{"await gate does not pass qa", models.StageSideGenAwait, SignalQAPass},
		{"agent stage has no gate_complete", models.StageFFmpegEngineer, SignalGateComplete},
		{"assembly cannot be reached by skipping the gate", models.StageFFmpegEngineer, Signal("skip")},
		{"delivery is terminal", models.StageDelivery, SignalQAPass},
		{"unknown stage", models.PipelineStage("PUBLISH"), SignalQAPass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(tt.from, tt.signal)
			var terr *TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, string(tt.from), terr.From)
		})
	}
}

func TestAdvanceMarksCompletedAndMoves(t *testing.T) {
	state := models.NewRunState("run-1", "sha256:x")

	next, err := Advance(state, SignalQAPass)
	require.NoError(t, err)

	assert.Equal(t, models.StageResearch, next)
	assert.Equal(t, models.StageResearch, state.Stage)
	assert.True(t, state.Completed(models.StageRouter))
	assert.Equal(t, models.RunStatusRunning, state.Status)
}

func TestAdvanceRejectsWrongSignalWithoutMutating(t *testing.T) {
	state := models.NewRunState("run-1", "sha256:x")

	_, err := Advance(state, SignalGateComplete)

	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.StageRouter, state.Stage)
	assert.Empty(t, state.StagesCompleted)
}

func TestFullWalkReachesDelivery(t *testing.T) {
	state := models.NewRunState("run-1", "sha256:x")

	for state.Stage != models.StageDelivery {
		sig := SignalQAPass
		if state.Stage == models.StageSideGenAwait {
			sig = SignalGateComplete
		}
		_, err := Advance(state, sig)
		require.NoError(t, err)
	}
	CompleteFinal(state)

	assert.True(t, state.Finished())
	assert.Equal(t, models.RunStatusCompleted, state.Status)
	assert.Len(t, state.StagesCompleted, models.StageCount())

	_, more := state.ResumeFrom()
	assert.False(t, more)
}

func TestEveryAgentStageHasDispatchEntry(t *testing.T) {
	for _, stage := range models.StageOrder() {
		entry, ok := EntryFor(stage)
		if stage == models.StageSideGenAwait || stage == models.StageDelivery {
			assert.False(t, ok, "%s must not have a dispatch entry", stage)
			continue
		}
		require.True(t, ok, "%s needs a dispatch entry", stage)
		assert.NotEmpty(t, entry.WorkflowDoc)
		assert.NotEmpty(t, entry.AgentDir)
		assert.NotEmpty(t, entry.QAGate)
		assert.NotEmpty(t, entry.Artifact)
	}
}
