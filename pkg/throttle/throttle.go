// Package throttle gates run admission on host resource pressure. Runs
// already in flight are never interrupted; only new starts wait here.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// Default admission limits.
const (
	DefaultMemoryFloorBytes    = 3 << 30 // 3 GiB
	DefaultCPUCeiling          = 0.80
	DefaultTemperatureCeilingC = 80.0
	DefaultPollInterval        = 30 * time.Second
)

// Config holds the admission limits. Zero values fall back to defaults.
type Config struct {
	MemoryFloorBytes    uint64
	CPUCeiling          float64
	TemperatureCeilingC float64
	PollInterval        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MemoryFloorBytes == 0 {
		c.MemoryFloorBytes = DefaultMemoryFloorBytes
	}
	if c.CPUCeiling == 0 {
		c.CPUCeiling = DefaultCPUCeiling
	}
	if c.TemperatureCeilingC == 0 {
		c.TemperatureCeilingC = DefaultTemperatureCeilingC
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Throttler blocks until the host has enough headroom to start a run.
type Throttler struct {
	monitor   ports.ResourceMonitor
	bus       *events.Bus
	messenger ports.Messaging
	cfg       Config
	logger    *slog.Logger
}

// New creates a throttler. The messenger may be nil.
func New(monitor ports.ResourceMonitor, bus *events.Bus, messenger ports.Messaging, cfg Config, logger *slog.Logger) *Throttler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttler{
		monitor:   monitor,
		bus:       bus,
		messenger: messenger,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "throttle"),
	}
}

// Await returns once the host is under all limits, polling while it is
// not. Monitor failures admit the run: a broken sensor must not stall
// the pipeline. Returns ResourceBlocked if ctx expires while blocked.
func (t *Throttler) Await(ctx context.Context) error {
	reasons, ok := t.check(ctx)
	if !ok || len(reasons) == 0 {
		return nil
	}

	t.logger.Warn("Run admission blocked", "reasons", reasons)
	t.publish(events.EventResourceBlocked, reasons)
	t.notify(ctx, fmt.Sprintf(":hourglass: Holding new runs, host is constrained: %s", strings.Join(reasons, "; ")))

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return NewResourceBlocked(reasons, ctx.Err())
		case <-ticker.C:
			next, ok := t.check(ctx)
			if !ok || len(next) == 0 {
				t.logger.Info("Run admission resumed")
				t.publish(events.EventResourceResumed, nil)
				t.notify(ctx, ":white_check_mark: Host recovered, resuming runs")
				return nil
			}
			reasons = next
		}
	}
}

// check returns the active constraint reasons. ok is false when the
// monitor itself failed, which callers treat as unconstrained.
func (t *Throttler) check(ctx context.Context) ([]string, bool) {
	snap, err := t.monitor.Snapshot(ctx)
	if err != nil {
		t.logger.Warn("Resource monitor failed, admitting run", "error", err)
		return nil, false
	}
	return t.evaluate(snap), true
}

func (t *Throttler) evaluate(snap models.ResourceSnapshot) []string {
	var reasons []string
	if snap.MemoryAvailableBytes < t.cfg.MemoryFloorBytes {
		reasons = append(reasons, fmt.Sprintf("available memory %.1f GiB under %.1f GiB floor",
			gib(snap.MemoryAvailableBytes), gib(t.cfg.MemoryFloorBytes)))
	}
	if snap.CPULoadNormalised > t.cfg.CPUCeiling {
		reasons = append(reasons, fmt.Sprintf("cpu load %.2f over %.2f ceiling",
			snap.CPULoadNormalised, t.cfg.CPUCeiling))
	}
	if snap.TemperatureCelsius > t.cfg.TemperatureCeilingC {
		reasons = append(reasons, fmt.Sprintf("temperature %.0fC over %.0fC ceiling",
			snap.TemperatureCelsius, t.cfg.TemperatureCeilingC))
	}
	return reasons
}

func (t *Throttler) publish(name string, reasons []string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(context.Background(), events.New(name, "", "", events.ResourcePayload{Reasons: reasons}))
}

func (t *Throttler) notify(ctx context.Context, text string) {
	if t.messenger == nil {
		return
	}
	if err := t.messenger.Notify(ctx, text); err != nil {
		t.logger.Warn("Throttle notification failed", "error", err)
	}
}

func gib(b uint64) float64 {
	return float64(b) / float64(1<<30)
}
