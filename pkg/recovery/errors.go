package recovery

import (
	"fmt"

	"github.com/reelworks/reeler/pkg/models"
)

// RecoveryExhausted reports that every recovery level failed for a stage,
// including the final escalation.
type RecoveryExhausted struct {
	Stage models.PipelineStage
	Err   error // failure from the last executing level
}

func (e *RecoveryExhausted) Error() string {
	return fmt.Sprintf("recovery exhausted for stage %s: %v", e.Stage, e.Err)
}

func (e *RecoveryExhausted) Unwrap() error {
	return e.Err
}

// NewRecoveryExhausted creates a RecoveryExhausted error.
func NewRecoveryExhausted(stage models.PipelineStage, err error) *RecoveryExhausted {
	return &RecoveryExhausted{Stage: stage, Err: err}
}
