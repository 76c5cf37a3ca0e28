package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/reelworks/reeler/pkg/ports"
)

// Prober implements ports.VideoProbe with ffprobe.
type Prober struct {
	run runner
}

// NewProber creates a prober. bin may be empty to resolve "ffprobe"
// through PATH.
func NewProber(bin string, logger *slog.Logger) *Prober {
	return &Prober{run: newRunner(bin, "ffprobe", logger)}
}

// probeReport is the slice of ffprobe's JSON document the pipeline
// reads. ffprobe emits duration and size as strings.
type probeReport struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe inspects one local media file.
func (p *Prober) Probe(ctx context.Context, path string) (ports.MediaInfo, error) {
	var stdout bytes.Buffer
	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	if err := p.run.run(ctx, &stdout, args...); err != nil {
		return ports.MediaInfo{}, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}

	var report probeReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return ports.MediaInfo{}, fmt.Errorf("parse probe output for %s: %w", filepath.Base(path), err)
	}

	var info ports.MediaInfo
	if d, err := strconv.ParseFloat(report.Format.Duration, 64); err == nil {
		info.DurationS = d
	}
	if sz, err := strconv.ParseInt(report.Format.Size, 10, 64); err == nil {
		info.SizeBytes = sz
	}
	for _, s := range report.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			info.Codec = s.CodecName
			break
		}
	}
	return info, nil
}
