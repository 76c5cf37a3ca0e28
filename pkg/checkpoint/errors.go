package checkpoint

import "fmt"

// StateLoadError reports that a run's persisted state was required but
// could not be produced, typically on an explicit resume.
type StateLoadError struct {
	RunID string
	Path  string
	Err   error
}

// Error implements the error interface.
func (e *StateLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load state for run %s from %s: %v", e.RunID, e.Path, e.Err)
	}
	return fmt.Sprintf("load state for run %s from %s: no usable run state", e.RunID, e.Path)
}

// Unwrap returns the underlying error.
func (e *StateLoadError) Unwrap() error {
	return e.Err
}

// NewStateLoadError creates a StateLoadError.
func NewStateLoadError(runID, path string, err error) *StateLoadError {
	return &StateLoadError{RunID: runID, Path: path, Err: err}
}
