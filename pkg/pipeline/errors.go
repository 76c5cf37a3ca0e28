package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reelworks/reeler/pkg/models"
)

// ErrInterrupted marks a run that stopped between or inside stages because
// the process is shutting down. The queue item goes back for a later claim.
var ErrInterrupted = errors.New("run interrupted")

// TransitionError reports an illegal state-machine edge.
type TransitionError struct {
	From   string
	Signal Signal
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: no edge from %s on %q", e.From, e.Signal)
}

// UserArgumentError reports a CLI precondition violation. It carries a
// corrective hint so the command can print actionable stderr before any
// side effect happens.
type UserArgumentError struct {
	Reason string
	Hint   string
}

func (e *UserArgumentError) Error() string {
	return e.Reason
}

// NewUserArgumentError creates a UserArgumentError.
func NewUserArgumentError(reason, hint string) *UserArgumentError {
	return &UserArgumentError{Reason: reason, Hint: hint}
}

// GateRejectedError reports a hard QA FAIL: the critic judged the output
// beyond repair by rework.
type GateRejectedError struct {
	Stage    models.PipelineStage
	Blockers []string
}

func (e *GateRejectedError) Error() string {
	if len(e.Blockers) == 0 {
		return fmt.Sprintf("gate rejected %s output", e.Stage)
	}
	return fmt.Sprintf("gate rejected %s output: %s", e.Stage, strings.Join(e.Blockers, "; "))
}

// AttemptsExhaustedError reports a gate that kept sending work back until
// the attempt budget ran out.
type AttemptsExhaustedError struct {
	Stage    models.PipelineStage
	Attempts int
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("%s gate still unsatisfied after %d attempts", e.Stage, e.Attempts)
}

// RunFailedError is the terminal failure of a whole run, raised after
// recovery is exhausted or a non-recoverable step breaks.
type RunFailedError struct {
	RunID string
	Stage models.PipelineStage
	Err   error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *RunFailedError) Unwrap() error {
	return e.Err
}
