package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/reelworks/reeler/pkg/ports"
)

// Encoder implements ports.VideoEncode with ffmpeg.
type Encoder struct {
	run runner
}

// NewEncoder creates an encoder. bin may be empty to resolve "ffmpeg"
// through PATH.
func NewEncoder(bin string, logger *slog.Logger) *Encoder {
	return &Encoder{run: newRunner(bin, "ffmpeg", logger)}
}

// Encode runs one encode operation described by spec.
func (e *Encoder) Encode(ctx context.Context, spec ports.EncodeSpec) error {
	if spec.InputPath == "" || spec.OutputPath == "" {
		return errors.New("encode needs input and output paths")
	}
	if err := e.run.run(ctx, io.Discard, buildEncodeArgs(spec)...); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(spec.OutputPath), err)
	}
	return nil
}

// buildEncodeArgs translates one EncodeSpec into an ffmpeg argv. A crop
// forces a video re-encode; without a crop and without caller arguments
// the input is remuxed as-is.
func buildEncodeArgs(spec ports.EncodeSpec) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", spec.InputPath}
	switch {
	case spec.CropPixels > 0:
		filter := fmt.Sprintf("crop=iw-%d:ih:%d:0", 2*spec.CropPixels, spec.CropPixels)
		args = append(args, "-vf", filter, "-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-c:a", "copy")
	case len(spec.ExtraArgs) == 0:
		args = append(args, "-c", "copy")
	}
	args = append(args, spec.ExtraArgs...)
	return append(args, spec.OutputPath)
}
