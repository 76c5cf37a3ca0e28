package sidegen

import (
	"context"
	"log/slog"
	"time"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
)

// Gate blocks the SIDEGEN_AWAIT stage until every generation job is
// terminal or the budget expires. It never fails the run: whatever clips
// exist when it yields are what assembly gets.
type Gate struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewGate builds a gate with the configured await budget.
func NewGate(timeout time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{timeout: timeout, logger: logger.With("component", "sidegen.gate")}
}

// Run waits for the orchestrator to settle. Failed jobs trigger exactly
// one resubmission, and only when every failure is retriable; a single
// permanent failure forfeits the retry for the whole set. Hitting the
// budget marks the stragglers TIMED_OUT. Run only returns an error on
// context cancellation, so the stage always advances otherwise.
func (g *Gate) Run(ctx context.Context, pub *events.Publisher, orch *Orchestrator) error {
	pub.SideGenGateStarted(ctx)

	if orch == nil || orch.JobCount() == 0 {
		g.logger.Info("No generation jobs to await")
		pub.SideGenGateCompleted(ctx, 0, 0)
		return nil
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	retried := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			pending := orch.MarkTimedOut()
			g.logger.Warn("Generation await budget exhausted", "pending", pending, "budget", g.timeout)
			pub.SideGenGateTimeout(ctx, pending)
			return nil

		case <-orch.Settled():
			snap := orch.Snapshot()
			failed := failedJobs(snap)
			if len(failed) > 0 && !retried && allRetriable(failed) {
				retried = true
				n := orch.ResubmitFailed(ctx)
				g.logger.Info("Resubmitting failed generation jobs", "count", n)
				pub.SideGenGateRetried(ctx, n)
				// The retry spends whatever budget remains.
				continue
			}

			ready := 0
			for _, j := range snap {
				if j.Status == models.SideGenCompleted {
					ready++
				}
			}
			g.logger.Info("Generation jobs settled", "ready", ready, "total", len(snap))
			pub.SideGenGateCompleted(ctx, ready, len(snap))
			return nil
		}
	}
}

func failedJobs(jobs []models.SideGenJob) []models.SideGenJob {
	var out []models.SideGenJob
	for _, j := range jobs {
		if j.Status == models.SideGenFailed {
			out = append(out, j)
		}
	}
	return out
}

func allRetriable(jobs []models.SideGenJob) bool {
	for _, j := range jobs {
		if !IsRetriable(j) {
			return false
		}
	}
	return true
}
