package throttle

import (
	"fmt"
	"strings"
)

// ResourceBlocked reports that a run start was abandoned because the host
// stayed resource constrained until the wait context expired.
type ResourceBlocked struct {
	Reasons []string
	Err     error
}

func (e *ResourceBlocked) Error() string {
	return fmt.Sprintf("run start blocked by resource constraints: %s", strings.Join(e.Reasons, "; "))
}

func (e *ResourceBlocked) Unwrap() error {
	return e.Err
}

// NewResourceBlocked creates a ResourceBlocked error.
func NewResourceBlocked(reasons []string, err error) *ResourceBlocked {
	return &ResourceBlocked{Reasons: reasons, Err: err}
}
