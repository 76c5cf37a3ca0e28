package dispatch

import "fmt"

// DispatchError reports a failed agent invocation: the process could not
// be started, exited non-zero, or was cut off by the call timeout.
type DispatchError struct {
	Bin      string
	ExitCode int // -1 when the process never ran or died on a signal
	Stderr   []string
	Err      error
}

func (e *DispatchError) Error() string {
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("agent %s: %v; stderr: %s", e.Bin, e.Err, e.Stderr[len(e.Stderr)-1])
	}
	return fmt.Sprintf("agent %s: %v", e.Bin, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
