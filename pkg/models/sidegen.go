package models

// SideGenStatus is the lifecycle of one background generation job.
type SideGenStatus string

const (
	SideGenPending    SideGenStatus = "PENDING"
	SideGenGenerating SideGenStatus = "GENERATING"
	SideGenCompleted  SideGenStatus = "COMPLETED"
	SideGenFailed     SideGenStatus = "FAILED"
	SideGenTimedOut   SideGenStatus = "TIMED_OUT"
)

// IsValid returns true if the status is a known value.
func (s SideGenStatus) IsValid() bool {
	switch s {
	case SideGenPending, SideGenGenerating, SideGenCompleted, SideGenFailed, SideGenTimedOut:
		return true
	}
	return false
}

// IsTerminal reports whether the job will change no further.
func (s SideGenStatus) IsTerminal() bool {
	switch s {
	case SideGenCompleted, SideGenFailed, SideGenTimedOut:
		return true
	}
	return false
}

// Error codes reported on failed generation jobs. The await gate
// classifies them into retriable and permanent failures.
const (
	SideGenErrSubmitFailed     = "submit_failed"
	SideGenErrRateLimited      = "rate_limited"
	SideGenErrPollFailed       = "poll_failed"
	SideGenErrDownloadFailed   = "download_failed"
	SideGenErrGenerationFailed = "generation_failed"
	SideGenErrInvalidArgument  = "invalid_argument"
)

// SideGenJob is one background generation job record as serialised into
// sidegen/jobs.json. Keys are always present so a half-informed reader
// sees explicit empties rather than missing fields.
type SideGenJob struct {
	IdempotentKey string        `json:"idempotent_key"`
	Variant       string        `json:"variant"`
	Status        SideGenStatus `json:"status"`
	VideoPath     string        `json:"video_path"`
	ErrorCode     string        `json:"error_code"`
	ErrorMessage  string        `json:"error_message"`
}

// SideGenJobsFile is the full serialised form of sidegen/jobs.json,
// rewritten atomically on every status change.
type SideGenJobsFile struct {
	Jobs []SideGenJob `json:"jobs"`
}

// IdempotentKey builds the deterministic key submitted to the generation
// provider, enabling provider-side deduplication across retries and
// crash-recovery resubmission.
func IdempotentKey(runID, variant string) string {
	return runID + "_" + variant
}
