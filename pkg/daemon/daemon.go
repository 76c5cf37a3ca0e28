// Package daemon runs the long-lived service loop: messaging intake,
// resource-gated queue consumption, run execution, queue retention and
// the supervisor heartbeat. The loop itself is single-threaded; the
// watchdog, the operations API and the knowledge-base watcher run beside
// it and stop with the same context.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelworks/reeler/pkg/api"
	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/knowledge"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/pipeline"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/queue"
	"github.com/reelworks/reeler/pkg/throttle"
)

// Loop cadence.
const (
	DefaultPollInterval = 2 * time.Second
	pollJitter          = 500 * time.Millisecond
	errorBackoff        = time.Second
	sweepInterval       = time.Hour
)

// Stopper is the soft-stop latch shared between the daemon and the run
// loop. The first termination signal sets it; the pipeline polls it
// between stages, so the stage in flight finishes before the process
// exits.
type Stopper struct {
	flag atomic.Bool
}

// RequestStop latches the stop request. Safe to call more than once.
func (s *Stopper) RequestStop() { s.flag.Store(true) }

// Stopping reports whether a stop was requested.
func (s *Stopper) Stopping() bool { return s != nil && s.flag.Load() }

// RunExecutor drives one claimed request to completion.
type RunExecutor interface {
	Execute(ctx context.Context, runID string, req *models.Request) error
}

// Deps wires a Daemon. Queue and Runner are required; Planner, Throttler,
// Inbox, Messenger, Watchdog, API and Knowledge may be nil, skipping the
// matching duty.
type Deps struct {
	Queue        *queue.Queue
	Runner       RunExecutor
	Planner      *pipeline.Planner
	Throttler    *throttle.Throttler
	Bus          *events.Bus
	Inbox        ports.MessageSource
	Messenger    ports.Messaging
	Watchdog     *Watchdog
	API          *api.Server
	APIAddr      string
	Knowledge    *knowledge.Store
	Stop         *Stopper
	Retention    time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Daemon is the service loop.
type Daemon struct {
	deps      Deps
	lastSweep time.Time
	logger    *slog.Logger
}

// New creates a daemon from its dependencies.
func New(deps Deps) *Daemon {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Stop == nil {
		deps.Stop = &Stopper{}
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
	}
	return &Daemon{deps: deps, logger: deps.Logger.With("component", "daemon")}
}

// Run performs startup recovery, then drives the main loop until ctx
// ends or a stop is requested. Background tasks stop with the loop.
func (d *Daemon) Run(ctx context.Context) error {
	recovered, err := d.deps.Queue.RecoverProcessing()
	if err != nil {
		return fmt.Errorf("recover processing items: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("Recovered orphaned queue items", "count", recovered)
	}

	if d.deps.Planner != nil {
		// Planning only announces resume points; the runs themselves
		// resume when their queue items are re-claimed.
		if _, err := d.deps.Planner.PlanAll(ctx); err != nil {
			d.logger.Warn("Crash-resume planning failed", "error", err)
		}
	}

	if d.deps.Knowledge != nil {
		if err := d.deps.Knowledge.StartWatcher(ctx); err != nil {
			d.logger.Warn("Knowledge-base watcher failed to start", "error", err)
		}
	}

	d.publish(ctx, events.EventDaemonStarted)
	d.logger.Info("Daemon started", "poll_interval", d.deps.PollInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if d.deps.Watchdog != nil {
		g.Go(func() error { return d.deps.Watchdog.Run(ctx) })
	}
	if d.deps.API != nil && d.deps.APIAddr != "" {
		g.Go(func() error { return d.deps.API.Serve(ctx, d.deps.APIAddr) })
	}
	g.Go(func() error {
		// The loop exiting on a soft stop must also stop the helpers.
		defer cancel()
		return d.loop(ctx)
	})

	err = g.Wait()
	d.logger.Info("Daemon stopped")
	return err
}

// loop is one tick after another: intake, retention, admission, claim.
func (d *Daemon) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil || d.deps.Stop.Stopping() {
			d.publish(context.WithoutCancel(ctx), events.EventDaemonStopping)
			d.logger.Info("Daemon stopping")
			return nil
		}

		d.intake(ctx)
		d.maybeSweep()

		if d.deps.Throttler != nil {
			if err := d.deps.Throttler.Await(ctx); err != nil {
				continue
			}
		}

		claimed, err := d.processNext(ctx)
		if err != nil {
			d.logger.Error("Queue processing error", "error", err)
			d.sleep(ctx, errorBackoff)
			continue
		}
		if !claimed {
			d.sleep(ctx, d.pollInterval())
		}
	}
}

// intake drains the messaging inbox into the queue. The inbox already
// enforces the sender allowlist and per-message dedupe; this step owns
// URL validation and the run id.
func (d *Daemon) intake(ctx context.Context) {
	if d.deps.Inbox == nil {
		return
	}
	msgs, err := d.deps.Inbox.Poll(ctx)
	if err != nil {
		d.logger.Warn("Inbox poll failed", "error", err)
		return
	}

	for _, msg := range msgs {
		item, err := ParseRequest(msg)
		if err != nil {
			d.logger.Info("Ignoring message without a usable video URL",
				"message_id", msg.ID, "error", err)
			d.notify(ctx, ":warning: I could not find a video URL in that message. Send a link like https://example.com/watch?v=... plus any guidance.")
			continue
		}
		if _, err := d.deps.Queue.Enqueue(item); err != nil {
			d.logger.Error("Enqueue failed", "run_id", item.RunID, "error", err)
			continue
		}
		d.logger.Info("Request enqueued", "run_id", item.RunID, "sender", msg.Sender)
		d.publishRun(ctx, events.EventQueueItemEnqueued, item.RunID)
	}
}

// processNext claims and runs at most one queue item. The boolean
// reports whether an item was claimed.
func (d *Daemon) processNext(ctx context.Context) (bool, error) {
	claim, err := d.deps.Queue.ClaimNext()
	if err != nil {
		if errors.Is(err, queue.ErrNoItemsAvailable) {
			return false, nil
		}
		var contended *queue.QueueLockError
		if errors.As(err, &contended) {
			// Another process holds every candidate; normal when daemons
			// share a queue root.
			d.logger.Debug("Queue contended", "candidates", contended.Contended)
			return false, nil
		}
		return false, err
	}

	item := claim.Item()
	req := item.Request()
	log := d.logger.With("run_id", item.RunID, "file", claim.File())
	log.Info("Queue item claimed")
	d.publishRun(ctx, events.EventQueueItemClaimed, item.RunID)

	// Disposition publishes use a detached context; the run context may
	// already be cancelled by the time the item is put away.
	done := context.WithoutCancel(ctx)

	err = d.deps.Runner.Execute(ctx, item.RunID, &req)
	switch {
	case err == nil:
		if cerr := claim.Commit(); cerr != nil {
			log.Error("Queue commit failed", "error", cerr)
		} else {
			d.publishRun(done, events.EventQueueItemCommitted, item.RunID)
		}

	case errors.Is(err, pipeline.ErrInterrupted):
		log.Info("Run interrupted, releasing item for a later claim")
		if rerr := claim.Release(); rerr != nil {
			log.Error("Queue release failed", "error", rerr)
		} else {
			d.publishRun(done, events.EventQueueItemReleased, item.RunID)
		}

	default:
		var failed *pipeline.RunFailedError
		if errors.As(err, &failed) {
			// Terminal: re-claiming would replay the same failure. The
			// workspace keeps the full story for a manual resume.
			log.Error("Run failed", "stage", failed.Stage, "error", err)
			if cerr := claim.Commit(); cerr != nil {
				log.Error("Queue commit failed", "error", cerr)
			} else {
				d.publishRun(done, events.EventQueueItemCommitted, item.RunID)
			}
			return true, nil
		}
		log.Error("Run errored before completion, releasing item", "error", err)
		if rerr := claim.Release(); rerr != nil {
			log.Error("Queue release failed", "error", rerr)
		} else {
			d.publishRun(done, events.EventQueueItemReleased, item.RunID)
		}
	}
	return true, nil
}

// maybeSweep prunes completed queue items past retention, at most once
// per sweepInterval. Zero retention disables pruning.
func (d *Daemon) maybeSweep() {
	if d.deps.Retention <= 0 {
		return
	}
	if time.Since(d.lastSweep) < sweepInterval {
		return
	}
	d.lastSweep = time.Now()

	n, err := d.deps.Queue.SweepCompleted(d.deps.Retention)
	if err != nil {
		d.logger.Warn("Queue retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("Swept completed queue items", "count", n, "older_than", d.deps.Retention)
	}
}

// sleep waits for dur or until ctx ends.
func (d *Daemon) sleep(ctx context.Context, dur time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(dur):
	}
}

// pollInterval returns the idle sleep with jitter so daemons sharing a
// queue root do not synchronise their claims.
func (d *Daemon) pollInterval() time.Duration {
	base := d.deps.PollInterval
	if base <= pollJitter {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * pollJitter)))
	return base - pollJitter + offset
}

func (d *Daemon) publish(ctx context.Context, name string) {
	if d.deps.Bus == nil {
		return
	}
	d.deps.Bus.Publish(ctx, events.New(name, "", "", nil))
}

func (d *Daemon) publishRun(ctx context.Context, name, runID string) {
	if d.deps.Bus == nil {
		return
	}
	d.deps.Bus.Publish(ctx, events.New(name, runID, "", nil))
}

func (d *Daemon) notify(ctx context.Context, text string) {
	if d.deps.Messenger == nil {
		return
	}
	if err := d.deps.Messenger.Notify(ctx, text); err != nil {
		d.logger.Warn("Notification failed", "error", err)
	}
}
