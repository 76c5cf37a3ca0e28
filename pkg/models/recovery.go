package models

// RecoveryLevel is one rung of the stage recovery ladder, attempted in the
// order returned by RecoveryLevels. A level is never repeated within one
// stage invocation.
type RecoveryLevel string

const (
	RecoveryRetry    RecoveryLevel = "RETRY"
	RecoveryFork     RecoveryLevel = "FORK"
	RecoveryFresh    RecoveryLevel = "FRESH"
	RecoveryEscalate RecoveryLevel = "ESCALATE"
)

var recoveryOrder = []RecoveryLevel{
	RecoveryRetry,
	RecoveryFork,
	RecoveryFresh,
	RecoveryEscalate,
}

// RecoveryLevels returns the escalation order as a fresh slice.
func RecoveryLevels() []RecoveryLevel {
	out := make([]RecoveryLevel, len(recoveryOrder))
	copy(out, recoveryOrder)
	return out
}

// IsValid returns true if the level is a known value.
func (l RecoveryLevel) IsValid() bool {
	switch l {
	case RecoveryRetry, RecoveryFork, RecoveryFresh, RecoveryEscalate:
		return true
	}
	return false
}

// RecoveryResult summarises one walk of the recovery chain.
type RecoveryResult struct {
	Level         RecoveryLevel `json:"level"`
	Succeeded     bool          `json:"succeeded"`
	FinalArtifact string        `json:"final_artifact,omitempty"`
}
