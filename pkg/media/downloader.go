package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Downloader implements ports.VideoDownload with yt-dlp.
type Downloader struct {
	run runner
}

// NewDownloader creates a downloader. bin may be empty to resolve
// "yt-dlp" through PATH.
func NewDownloader(bin string, logger *slog.Logger) *Downloader {
	return &Downloader{run: newRunner(bin, "yt-dlp", logger)}
}

// Download fetches url to dest. The destination extension decides the
// merge container, so callers should hand in an .mp4 path.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--merge-output-format", "mp4",
		"-o", dest,
		url,
	}
	if err := d.run.run(ctx, io.Discard, args...); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	// yt-dlp exits zero on some skip conditions, so confirm the artifact.
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("download %s: tool produced no file at %s", url, dest)
	}
	return nil
}
