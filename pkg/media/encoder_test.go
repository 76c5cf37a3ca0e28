package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/ports"
)

func TestBuildEncodeArgs(t *testing.T) {
	t.Run("crop re-encodes with centered trim", func(t *testing.T) {
		args := buildEncodeArgs(ports.EncodeSpec{
			InputPath:  "in.mp4",
			OutputPath: "out.mp4",
			CropPixels: 60,
		})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-vf crop=iw-120:ih:60:0")
		assert.Contains(t, joined, "-c:v libx264")
		assert.Contains(t, joined, "-c:a copy")
		assert.Equal(t, "out.mp4", args[len(args)-1])
	})

	t.Run("no crop and no extra args remuxes", func(t *testing.T) {
		args := buildEncodeArgs(ports.EncodeSpec{InputPath: "in.mp4", OutputPath: "out.mp4"})
		assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-y", "-i", "in.mp4", "-c", "copy", "out.mp4"}, args)
	})

	t.Run("extra args replace the remux default", func(t *testing.T) {
		args := buildEncodeArgs(ports.EncodeSpec{
			InputPath:  "in.mp4",
			OutputPath: "out.mp4",
			ExtraArgs:  []string{"-t", "30", "-an"},
		})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-t 30 -an")
		assert.NotContains(t, joined, "-c copy")
		assert.Equal(t, "out.mp4", args[len(args)-1])
	})

	t.Run("crop and extra args combine", func(t *testing.T) {
		args := buildEncodeArgs(ports.EncodeSpec{
			InputPath:  "in.mp4",
			OutputPath: "out.mp4",
			CropPixels: 30,
			ExtraArgs:  []string{"-t", "15"},
		})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "crop=iw-60:ih:30:0")
		assert.Contains(t, joined, "-t 15")
	})
}

func TestEncoderInvokesTool(t *testing.T) {
	argFile := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, fmt.Sprintf(`echo "$@" > %s
exit 0`, argFile))
	e := NewEncoder(bin, nil)

	spec := ports.EncodeSpec{
		InputPath:  "/work/run-1/clip.mp4",
		OutputPath: "/work/run-1/clip-cropped.mp4",
		CropPixels: 40,
	}
	require.NoError(t, e.Encode(context.Background(), spec))

	args := readArgs(t, argFile)
	assert.Contains(t, args, "-i /work/run-1/clip.mp4")
	assert.Contains(t, args, "crop=iw-80:ih:40:0")
	assert.Contains(t, args, "/work/run-1/clip-cropped.mp4")
}

func TestEncoderFailureSurfacesStderr(t *testing.T) {
	bin := writeScript(t, `echo "Invalid data found when processing input" >&2
exit 1`)
	e := NewEncoder(bin, nil)

	err := e.Encode(context.Background(), ports.EncodeSpec{InputPath: "in.mp4", OutputPath: "out.mp4"})

	require.Error(t, err)
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.ExitCode)
	assert.Contains(t, err.Error(), "encode out.mp4")
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestEncoderRejectsMissingPaths(t *testing.T) {
	e := NewEncoder("ffmpeg", nil)

	err := e.Encode(context.Background(), ports.EncodeSpec{OutputPath: "out.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input and output")

	err = e.Encode(context.Background(), ports.EncodeSpec{InputPath: "in.mp4"})
	require.Error(t, err)
}
