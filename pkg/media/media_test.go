package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops an executable shell script into a temp dir and
// returns its path. Tests use scripts as stand-ins for the media tools.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// readArgs returns the single argv line a test script recorded.
func readArgs(t *testing.T, argFile string) string {
	t.Helper()
	data, err := os.ReadFile(argFile)
	require.NoError(t, err)
	return string(data)
}

func TestToolErrorIncludesLastStderrLine(t *testing.T) {
	err := &ToolError{
		Tool:     "ffmpeg",
		ExitCode: 1,
		Stderr:   []string{"opening input", "Invalid data found when processing input"},
		Err:      errors.New("exit status 1"),
	}
	assert.Equal(t, "ffmpeg: exit status 1; stderr: Invalid data found when processing input", err.Error())
}

func TestToolErrorWithoutStderr(t *testing.T) {
	err := &ToolError{Tool: "ffprobe", ExitCode: -1, Err: errors.New("fork/exec: no such file")}
	assert.Equal(t, "ffprobe: fork/exec: no such file", err.Error())
}

func TestToolErrorUnwraps(t *testing.T) {
	inner := errors.New("exit status 2")
	err := &ToolError{Tool: "yt-dlp", ExitCode: 2, Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestRunnerDefaultsBinAndLogger(t *testing.T) {
	r := newRunner("", "ffmpeg", nil)
	assert.Equal(t, "ffmpeg", r.bin)
	require.NotNil(t, r.logger)

	r = newRunner("/opt/media/ffmpeg", "ffmpeg", nil)
	assert.Equal(t, "/opt/media/ffmpeg", r.bin)
}
