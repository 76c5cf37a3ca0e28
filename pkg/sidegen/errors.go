package sidegen

import (
	"fmt"
	"strings"

	"github.com/reelworks/reeler/pkg/models"
)

// SideGenPermanentFailure marks a job failure that retries cannot fix:
// the provider rejected the request itself rather than its timing.
type SideGenPermanentFailure struct {
	Key  string
	Code string
	Err  error
}

func (e *SideGenPermanentFailure) Error() string {
	return fmt.Sprintf("permanent generation failure for %s (%s): %v", e.Key, e.Code, e.Err)
}

func (e *SideGenPermanentFailure) Unwrap() error {
	return e.Err
}

// retriableCodes are failures of timing, not of the request itself.
var retriableCodes = map[string]bool{
	models.SideGenErrSubmitFailed: true,
	models.SideGenErrRateLimited:  true,
	models.SideGenErrPollFailed:   true,
}

// IsRetriable classifies one failed job. Anything carrying an
// invalid-argument marker is permanent regardless of its code, as are
// download and generation failures and codes we have never seen.
func IsRetriable(job models.SideGenJob) bool {
	if hasInvalidMarker(job.ErrorCode) || hasInvalidMarker(job.ErrorMessage) {
		return false
	}
	return retriableCodes[job.ErrorCode]
}

func hasInvalidMarker(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "invalid_argument") ||
		strings.Contains(s, "invalid-argument") ||
		strings.Contains(s, "invalid argument")
}
