// Package delivery finalises a run: it verifies the rendered reel exists,
// probes it for caption stats, uploads it to durable storage, and hands
// the file to the user. DELIVERY is the one stage that bypasses the agent
// and QA machinery, so errors here surface directly to the run.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/workspace"
)

// Deliverer ships the final reel. A probe failure only degrades the
// caption; upload and send failures abort the stage so a later attempt
// can redo it. All three ports may be nil, which skips the matching step.
type Deliverer struct {
	probe    ports.VideoProbe
	uploader ports.FileDelivery
	msg      ports.Messaging
	logger   *slog.Logger
}

// New builds a Deliverer over the given ports.
func New(probe ports.VideoProbe, uploader ports.FileDelivery, msg ports.Messaging, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		probe:    probe,
		uploader: uploader,
		msg:      msg,
		logger:   logger.With("component", "delivery"),
	}
}

// Deliver uploads the workspace's final reel and sends it to the user.
func (d *Deliverer) Deliver(ctx context.Context, ws *workspace.Workspace, state *models.RunState) error {
	reel := ws.FinalReelPath()
	if _, err := os.Stat(reel); err != nil {
		return fmt.Errorf("final reel missing: %w", err)
	}

	var info ports.MediaInfo
	if d.probe != nil {
		probed, err := d.probe.Probe(ctx, reel)
		if err != nil {
			// Stats only decorate the caption; losing them must not cost
			// the user their reel.
			d.logger.Warn("Could not probe final reel", "run_id", state.RunID, "error", err)
		} else {
			info = probed
		}
	}

	var url string
	if d.uploader != nil {
		uploaded, err := d.uploader.Upload(ctx, reel)
		if err != nil {
			return fmt.Errorf("upload final reel: %w", err)
		}
		url = uploaded
		d.logger.Info("Final reel uploaded", "run_id", state.RunID, "url", url)
	}

	if d.msg != nil {
		if err := d.msg.SendFile(ctx, reel, buildCaption(info, url)); err != nil {
			return fmt.Errorf("send final reel: %w", err)
		}
	}

	d.logger.Info("Run delivered", "run_id", state.RunID, "reel", reel)
	return nil
}

// buildCaption renders the user-facing delivery message. Zero-valued
// stats and an empty url drop their fragments.
func buildCaption(info ports.MediaInfo, url string) string {
	var b strings.Builder
	b.WriteString("Your reel is ready")

	var parts []string
	if info.DurationS > 0 {
		parts = append(parts, fmt.Sprintf("%.0fs", info.DurationS))
	}
	if info.Width > 0 && info.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", info.Width, info.Height))
	}
	if info.SizeBytes > 0 {
		parts = append(parts, humanSize(info.SizeBytes))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if url != "" {
		b.WriteString("\n")
		b.WriteString(url)
	}
	return b.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
