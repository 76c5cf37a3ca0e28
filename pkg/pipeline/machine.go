// Package pipeline drives one request through the ordered stage sequence:
// the validated state machine, the QA-gated stage runner, the full run
// loop, and the crash-recovery planner.
package pipeline

import (
	"github.com/reelworks/reeler/pkg/models"
)

// Signal is the input that moves the state machine forward.
type Signal string

const (
	// SignalQAPass advances an agent stage whose gate passed.
	SignalQAPass Signal = "qa_pass"
	// SignalGateComplete advances SIDEGEN_AWAIT when its gate resolves.
	SignalGateComplete Signal = "gate_complete"
)

type edge struct {
	from   models.PipelineStage
	signal Signal
}

// transitions is the explicit edge table. Each stage accepts exactly one
// signal; DELIVERY is terminal and has no outgoing edge.
var transitions = buildTransitions()

func buildTransitions() map[edge]models.PipelineStage {
	order := models.StageOrder()
	t := make(map[edge]models.PipelineStage, len(order)-1)
	for i := 0; i < len(order)-1; i++ {
		sig := SignalQAPass
		if order[i] == models.StageSideGenAwait {
			sig = SignalGateComplete
		}
		t[edge{from: order[i], signal: sig}] = order[i+1]
	}
	return t
}

// Next returns the successor stage for the (stage, signal) pair, or a
// TransitionError when no such edge exists.
func Next(stage models.PipelineStage, sig Signal) (models.PipelineStage, error) {
	next, ok := transitions[edge{from: stage, signal: sig}]
	if !ok {
		return "", &TransitionError{From: string(stage), Signal: sig}
	}
	return next, nil
}

// Advance validates the signal against the run's current stage, marks the
// stage completed, and moves the state to the successor. The caller
// persists the state before publishing the matching completion event.
func Advance(state *models.RunState, sig Signal) (models.PipelineStage, error) {
	next, err := Next(state.Stage, sig)
	if err != nil {
		return "", err
	}
	state.MarkCompleted(state.Stage)
	state.Stage = next
	return next, nil
}

// CompleteFinal marks the terminal stage done and flips the run status.
func CompleteFinal(state *models.RunState) {
	state.MarkCompleted(models.StageDelivery)
	state.Status = models.RunStatusCompleted
}
