package daemon

import (
	"context"
	"log/slog"
	"net"
	"os"
	"time"
)

// DefaultWatchdogWindow is used when no window is configured.
const DefaultWatchdogWindow = 5 * time.Minute

// Watchdog reports liveness to the supervising environment. Under
// systemd, NOTIFY_SOCKET names a datagram socket expecting WATCHDOG=1
// within the configured window; the heartbeat fires at half that. With
// no socket set, the beat degrades to a debug log line so the cadence
// stays observable.
type Watchdog struct {
	window time.Duration
	socket string
	logger *slog.Logger
}

// NewWatchdog creates a watchdog for the given liveness window. The
// notify socket is read from NOTIFY_SOCKET at construction.
func NewWatchdog(window time.Duration, logger *slog.Logger) *Watchdog {
	if window <= 0 {
		window = DefaultWatchdogWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		window: window,
		socket: os.Getenv("NOTIFY_SOCKET"),
		logger: logger.With("component", "watchdog"),
	}
}

// Run announces readiness, then beats at half the window until ctx ends.
func (w *Watchdog) Run(ctx context.Context) error {
	if err := w.sdNotify("READY=1"); err != nil {
		w.logger.Warn("Readiness notification failed", "error", err)
	}

	ticker := time.NewTicker(w.window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.socket == "" {
				w.logger.Debug("Watchdog heartbeat")
				continue
			}
			if err := w.sdNotify("WATCHDOG=1"); err != nil {
				w.logger.Warn("Watchdog heartbeat failed", "error", err)
			}
		}
	}
}

// sdNotify writes one state datagram to the notify socket. A leading '@'
// names an abstract socket.
func (w *Watchdog) sdNotify(state string) error {
	if w.socket == "" {
		return nil
	}
	addr := w.socket
	if addr[0] == '@' {
		addr = "\x00" + addr[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: addr, Net: "unixgram"})
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte(state))
	return err
}
