package models

// QADecision is the critic's verdict on a stage output.
type QADecision string

const (
	QAPass   QADecision = "PASS"
	QARework QADecision = "REWORK"
	QAFail   QADecision = "FAIL"
)

// IsValid returns true if the decision is a known value.
func (d QADecision) IsValid() bool {
	switch d {
	case QAPass, QARework, QAFail:
		return true
	}
	return false
}

// QACritique is the structured judgement produced by the QA critic. Score
// is telemetry only; control flow branches exclusively on Decision.
type QACritique struct {
	Decision          QADecision `json:"decision"`
	Score             int        `json:"score"`
	Blockers          []string   `json:"blockers,omitempty"`
	PrescriptiveFixes []string   `json:"prescriptive_fixes,omitempty"`
}
