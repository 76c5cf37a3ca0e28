// Package monitor reads host resource pressure for the run throttle.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/reelworks/reeler/pkg/models"
)

// SystemMonitor samples memory, load and temperature from the host.
type SystemMonitor struct {
	logger *slog.Logger
}

// NewSystemMonitor creates a host-backed resource monitor.
func NewSystemMonitor(logger *slog.Logger) *SystemMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemMonitor{logger: logger.With("component", "monitor")}
}

// Snapshot reads current resource figures. Load is normalised by the
// logical CPU count so 1.0 means all cores busy. Temperature is best
// effort; hosts without sensors report zero.
func (m *SystemMonitor) Snapshot(ctx context.Context) (models.ResourceSnapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("read memory stats: %w", err)
	}

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("read load average: %w", err)
	}

	cpus := runtime.NumCPU()
	if cpus < 1 {
		cpus = 1
	}

	return models.ResourceSnapshot{
		MemoryAvailableBytes: vm.Available,
		MemoryTotalBytes:     vm.Total,
		CPULoadNormalised:    avg.Load1 / float64(cpus),
		TemperatureCelsius:   m.readTemperature(ctx),
	}, nil
}

func (m *SystemMonitor) readTemperature(ctx context.Context) float64 {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil || len(stats) == 0 {
		// Common inside containers; not worth more than a debug line.
		m.logger.Debug("Temperature sensors unavailable", "error", err)
		return 0
	}

	var max float64
	for _, s := range stats {
		if s.Temperature > max {
			max = s.Temperature
		}
	}
	return max
}
