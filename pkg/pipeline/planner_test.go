package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
)

type stubStore struct {
	incomplete []*models.RunState
	err        error
}

func (s *stubStore) SaveState(string, *models.RunState) error         { return nil }
func (s *stubStore) LoadState(string) (*models.RunState, bool, error) { return nil, false, nil }
func (s *stubStore) AppendEvent(string, events.Event) error           { return nil }
func (s *stubStore) ListIncompleteRuns() ([]*models.RunState, error)  { return s.incomplete, s.err }

type plannerMessenger struct {
	mu    sync.Mutex
	notes []string
	err   error
}

func (m *plannerMessenger) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, text)
	return m.err
}

func (m *plannerMessenger) AskUser(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, nil
}

func (m *plannerMessenger) SendFile(context.Context, string, string) error { return nil }

func interruptedRun(runID string, completed ...models.PipelineStage) *models.RunState {
	state := models.NewRunState(runID, "sha256:x")
	for _, st := range completed {
		state.MarkCompleted(st)
	}
	return state
}

func TestPlanForPicksFirstIncompleteStage(t *testing.T) {
	state := interruptedRun("run-1", models.StageRouter, models.StageResearch)

	plan, ok := PlanFor(state)
	require.True(t, ok)

	assert.Equal(t, models.StageTranscript, plan.ResumeFrom)
	assert.Equal(t, []models.PipelineStage{models.StageRouter, models.StageResearch}, plan.StagesCompleted)
	assert.Len(t, plan.StagesRemaining, models.StageCount()-2)
	assert.Equal(t, models.StageTranscript, plan.StagesRemaining[0])
	assert.Equal(t, models.StageDelivery, plan.StagesRemaining[len(plan.StagesRemaining)-1])
}

func TestPlanForIgnoresStalePersistedStage(t *testing.T) {
	// The process died mid-CONTENT: the stage pointer says CONTENT but
	// stages_completed is authoritative.
	state := interruptedRun("run-2", models.StageRouter)
	state.Stage = models.StageContent

	plan, ok := PlanFor(state)
	require.True(t, ok)
	assert.Equal(t, models.StageResearch, plan.ResumeFrom)
}

func TestPlanForSkipsFinishedRun(t *testing.T) {
	state := interruptedRun("run-3", models.StageOrder()...)

	_, ok := PlanFor(state)
	assert.False(t, ok)
}

func TestPlanAllAnnouncesEachRunOnce(t *testing.T) {
	bus := events.NewBus(nil)
	var mu sync.Mutex
	var seen []events.Event
	bus.Subscribe(events.ListenerFunc(func(_ context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev)
		return nil
	}))

	store := &stubStore{incomplete: []*models.RunState{
		interruptedRun("run-a", models.StageRouter, models.StageResearch),
		interruptedRun("run-b"),
	}}
	msg := &plannerMessenger{}
	planner := NewPlanner(store, bus, msg, nil)

	plans, err := planner.PlanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)

	assert.Equal(t, models.StageTranscript, plans[0].ResumeFrom)
	assert.Equal(t, models.StageRouter, plans[1].ResumeFrom)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	for _, ev := range seen {
		assert.Equal(t, events.EventResumePlanned, ev.Name)
	}
	assert.Equal(t, "run-a", seen[0].RunID)

	require.Len(t, msg.notes, 2)
	assert.Contains(t, msg.notes[0], "run-a")
	assert.Contains(t, msg.notes[0], "TRANSCRIPT")
	assert.Contains(t, msg.notes[0], "2 of 9")
}

func TestPlanAllSurvivesNotificationFailure(t *testing.T) {
	bus := events.NewBus(nil)
	store := &stubStore{incomplete: []*models.RunState{interruptedRun("run-a")}}
	planner := NewPlanner(store, bus, &plannerMessenger{err: errors.New("offline")}, nil)

	plans, err := planner.PlanAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestPlanAllPropagatesStoreError(t *testing.T) {
	planner := NewPlanner(&stubStore{err: errors.New("io")}, events.NewBus(nil), nil, nil)

	_, err := planner.PlanAll(context.Background())
	assert.Error(t, err)
}

func TestValidateDirectives(t *testing.T) {
	existing := t.TempDir()

	tests := []struct {
		name    string
		dir     models.Directives
		wantErr string
	}{
		{name: "empty directives pass"},
		{name: "existing resume path passes", dir: models.Directives{ResumePath: existing}},
		{
			name:    "missing resume path fails",
			dir:     models.Directives{ResumePath: filepath.Join(existing, "absent")},
			wantErr: "does not exist",
		},
		{
			name: "resume plus start stage passes",
			dir:  models.Directives{ResumePath: existing, StartStage: 3},
		},
		{
			name:    "start stage above one needs resume",
			dir:     models.Directives{StartStage: 2},
			wantErr: "requires a resume path",
		},
		{name: "start stage one alone passes", dir: models.Directives{StartStage: 1}},
		{
			name:    "negative start stage is out of range",
			dir:     models.Directives{ResumePath: existing, StartStage: -1},
			wantErr: "out of range",
		},
		{
			name:    "start stage past last is out of range",
			dir:     models.Directives{ResumePath: existing, StartStage: 10},
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDirectives(tt.dir)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var uerr *UserArgumentError
			require.ErrorAs(t, err, &uerr)
			assert.Contains(t, uerr.Error(), tt.wantErr)
			assert.NotEmpty(t, uerr.Hint)
		})
	}
}
