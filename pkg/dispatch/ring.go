package dispatch

import (
	"strings"
	"sync"
)

// LineRing is an io.Writer that retains the last max complete lines
// written to it. Subprocess adapters point stderr at one so failure
// reports can quote the tail without buffering unbounded output.
type LineRing struct {
	mu      sync.Mutex
	max     int
	lines   []string
	pending string
}

// NewLineRing creates a ring holding up to max lines.
func NewLineRing(max int) *LineRing {
	if max <= 0 {
		max = 64
	}
	return &LineRing{max: max}
}

// Write splits p into lines on '\n'. Fragments without a trailing
// newline stay pending until the next write completes them.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk := r.pending + string(p)
	for {
		nl := strings.IndexByte(chunk, '\n')
		if nl < 0 {
			break
		}
		r.push(strings.TrimRight(chunk[:nl], "\r"))
		chunk = chunk[nl+1:]
	}
	r.pending = chunk
	return len(p), nil
}

// LastN returns up to n most recent lines in write order. A pending
// unterminated fragment counts as the final line; processes that die
// mid-message usually leave one.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.lines
	if p := strings.TrimRight(r.pending, "\r"); p != "" {
		all = append(append(make([]string, 0, len(r.lines)+1), r.lines...), p)
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	copy(out, all[len(all)-n:])
	return out
}

func (r *LineRing) push(line string) {
	if line == "" {
		return
	}
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}
