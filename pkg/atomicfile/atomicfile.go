// Package atomicfile is the single durable-write primitive of the
// pipeline. Full documents go through write-temp-fsync-rename so readers
// never observe partial content; journal lines are plain appends with
// best-effort durability.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// WriteAtomic writes data to path via a sibling temporary file in the same
// directory, fsyncs it, and renames it over the target. Any error path
// removes the temporary file.
func WriteAtomic(path string, data []byte) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file for %s: %w", path, err)
	}
	defer pf.Cleanup() //nolint:errcheck // no-op after a successful replace

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write pending file for %s: %w", path, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteAtomic(path, append(data, '\n'))
}

// AppendLine appends one LF-terminated line to path, creating the file if
// absent. The line and terminator go down in a single write.
func AppendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}
