package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Directives carry optional per-request overrides supplied by the user.
type Directives struct {
	TargetDurationS int    `json:"target_duration_s,omitempty" yaml:"target_duration_s,omitempty"`
	SegmentCount    int    `json:"segment_count,omitempty" yaml:"segment_count,omitempty"`
	ResumePath      string `json:"resume_path,omitempty" yaml:"resume_path,omitempty"`
	StartStage      int    `json:"start_stage,omitempty" yaml:"start_stage,omitempty"`
}

// Request identifies one reel job: the source video, the user's free-text
// message, and any directives.
type Request struct {
	SourceURL   string     `json:"source_url"`
	MessageText string     `json:"message_text"`
	Directives  Directives `json:"directives"`
	Advisory    []string   `json:"advisory,omitempty"`
}

// NewRunID builds a collision-resistant, lexicographically sortable run
// identifier: YYYYMMDD-HHMMSS-<microseconds>-<random-hex>.
func NewRunID(now time.Time) string {
	now = now.UTC()
	u := uuid.New()
	return fmt.Sprintf("%s-%06d-%x", now.Format("20060102-150405"), now.Nanosecond()/1000, u[:4])
}

// Fingerprint derives the request fingerprint recorded in RunState,
// binding a workspace to the request that produced it.
func Fingerprint(sourceURL, message string) string {
	sum := sha256.Sum256([]byte(sourceURL + "\n" + message))
	return "sha256:" + hex.EncodeToString(sum[:])
}
