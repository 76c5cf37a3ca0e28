// Package sidegen runs background clip generation alongside the main
// pipeline: an orchestrator submits jobs and polls them to completion,
// and an await gate blocks the SIDEGEN_AWAIT stage until every job is
// terminal or the budget runs out.
package sidegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelworks/reeler/pkg/atomicfile"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
)

// JobsFileName is the job-record file inside the sidegen directory.
const JobsFileName = "jobs.json"

// Config bounds one orchestration.
type Config struct {
	MaxClips    int
	CropPixels  int
	PollInitial time.Duration
	PollMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxClips == 0 {
		c.MaxClips = 3
	}
	if c.PollInitial == 0 {
		c.PollInitial = 5 * time.Second
	}
	if c.PollMax == 0 {
		c.PollMax = 30 * time.Second
	}
	return c
}

// Orchestrator owns sidegen/jobs.json for one run: it submits generation
// jobs, polls them with adaptive backoff, downloads finished clips, and
// rewrites the record file atomically on every status change. Upstream
// stages never block on it; the await gate watches Settled.
type Orchestrator struct {
	gen    ports.VideoGeneration
	encode ports.VideoEncode
	dir    string
	runID  string
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	jobs          []*models.SideGenJob
	prompts       map[string]GenerationPrompt
	settled       chan struct{}
	settledClosed bool
	workerLive    bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over a run's sidegen directory.
// encode may be nil to skip clip post-processing.
func NewOrchestrator(gen ports.VideoGeneration, encode ports.VideoEncode, dir, runID string, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gen:     gen,
		encode:  encode,
		dir:     dir,
		runID:   runID,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "sidegen", "run_id", runID),
		prompts: make(map[string]GenerationPrompt),
		settled: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

func (o *Orchestrator) jobsPath() string {
	return filepath.Join(o.dir, JobsFileName)
}

// Start submits one job per prompt, capped at the configured ceiling,
// and launches the polling worker.
func (o *Orchestrator) Start(ctx context.Context, prompts []GenerationPrompt) error {
	if len(prompts) > o.cfg.MaxClips {
		o.logger.Info("Capping generation prompts", "requested", len(prompts), "cap", o.cfg.MaxClips)
		prompts = prompts[:o.cfg.MaxClips]
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return fmt.Errorf("create sidegen dir: %w", err)
	}

	o.mu.Lock()
	keys := make([]string, len(prompts))
	for i, p := range prompts {
		key := models.IdempotentKey(o.runID, p.Variant)
		keys[i] = key
		o.prompts[key] = p
		o.jobs = append(o.jobs, &models.SideGenJob{
			IdempotentKey: key,
			Variant:       p.Variant,
			Status:        models.SideGenPending,
		})
	}
	o.writeJobsLocked()
	o.mu.Unlock()

	for i, p := range prompts {
		o.submitOne(ctx, keys[i], p)
	}

	o.mu.Lock()
	o.writeJobsLocked()
	if o.allTerminalLocked() {
		o.closeSettledLocked()
		o.mu.Unlock()
		return nil
	}
	o.startWorkerLocked(ctx)
	o.mu.Unlock()
	return nil
}

// Resume reloads jobs.json written by a previous process and resumes
// polling the non-terminal jobs. Completed jobs are skipped and failed
// jobs accepted as-is. The prompts reloaded from the content artifact
// let a later retry resubmit with the original payload. Returns false
// when there is nothing to resume.
func (o *Orchestrator) Resume(ctx context.Context, prompts []GenerationPrompt) (bool, error) {
	data, err := os.ReadFile(o.jobsPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read sidegen jobs: %w", err)
	}

	var file models.SideGenJobsFile
	if uerr := json.Unmarshal(data, &file); uerr != nil {
		return false, fmt.Errorf("parse sidegen jobs: %w", uerr)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = o.jobs[:0]
	for i := range file.Jobs {
		job := file.Jobs[i]
		o.jobs = append(o.jobs, &job)
	}
	for _, p := range prompts {
		o.prompts[models.IdempotentKey(o.runID, p.Variant)] = p
	}
	if o.allTerminalLocked() {
		o.closeSettledLocked()
		return true, nil
	}
	o.startWorkerLocked(ctx)
	return true, nil
}

// submitOne hands a job to the provider and records a failure when the
// provider refuses it. Idempotent keys make resubmission after a crash
// safe.
func (o *Orchestrator) submitOne(ctx context.Context, key string, p GenerationPrompt) {
	err := o.gen.SubmitJob(ctx, ports.GenerationRequest{
		IdempotentKey: key,
		Variant:       p.Variant,
		Prompt:        p.Text,
		Anchor:        p.Anchor,
		DurationS:     p.DurationS,
	})
	if err == nil {
		return
	}

	code := models.SideGenErrSubmitFailed
	var perm *SideGenPermanentFailure
	if errors.As(err, &perm) {
		code = perm.Code
	}
	o.logger.Warn("Generation submit failed", "key", key, "code", code, "error", err)
	o.failJob(key, code, err.Error())
}

// worker polls non-terminal jobs until all settle or it is stopped. The
// backoff starts small, doubles while statuses hold still, caps, and
// resets on any change.
func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		o.workerLive = false
		o.writeJobsLocked()
		o.mu.Unlock()
	}()

	backoff := o.cfg.PollInitial
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-timer.C:
		}

		if o.settledNow() {
			return
		}

		changed := o.pollOnce(ctx)
		if changed {
			backoff = o.cfg.PollInitial
		} else if backoff < o.cfg.PollMax {
			backoff *= 2
			if backoff > o.cfg.PollMax {
				backoff = o.cfg.PollMax
			}
		}

		o.mu.Lock()
		if o.allTerminalLocked() {
			o.closeSettledLocked()
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()

		timer.Reset(backoff)
	}
}

// pollOnce polls every non-terminal job once, downloading clips that
// completed. Reports whether anything changed, which also triggers an
// atomic rewrite of jobs.json.
func (o *Orchestrator) pollOnce(ctx context.Context) bool {
	o.mu.Lock()
	var keys []string
	for _, j := range o.jobs {
		if !j.Status.IsTerminal() {
			keys = append(keys, j.IdempotentKey)
		}
	}
	o.mu.Unlock()

	changed := false
	for _, key := range keys {
		status, err := o.gen.PollJob(ctx, key)
		if err != nil {
			code := models.SideGenErrPollFailed
			var perm *SideGenPermanentFailure
			if errors.As(err, &perm) {
				code = perm.Code
			}
			o.logger.Warn("Generation poll failed", "key", key, "code", code, "error", err)
			if o.failJob(key, code, err.Error()) {
				changed = true
			}
			continue
		}

		switch status.State {
		case models.SideGenCompleted:
			if o.completeJob(ctx, key) {
				changed = true
			}
		case models.SideGenFailed:
			code := status.ErrorCode
			if code == "" {
				code = models.SideGenErrGenerationFailed
			}
			if o.failJob(key, code, status.ErrorMessage) {
				changed = true
			}
		default:
			if o.setStatus(key, status.State) {
				changed = true
			}
		}
	}

	if changed {
		o.mu.Lock()
		o.writeJobsLocked()
		o.mu.Unlock()
	}
	return changed
}

// completeJob downloads the finished clip, applies the crop when
// configured, and records the final path.
func (o *Orchestrator) completeJob(ctx context.Context, key string) bool {
	variant := o.variantFor(key)
	final := filepath.Join(o.dir, variant+".mp4")

	dest := final
	if o.encode != nil && o.cfg.CropPixels > 0 {
		dest = filepath.Join(o.dir, variant+".source.mp4")
	}

	if err := o.gen.DownloadClip(ctx, key, dest); err != nil {
		code := models.SideGenErrDownloadFailed
		var perm *SideGenPermanentFailure
		if errors.As(err, &perm) {
			code = perm.Code
		}
		o.logger.Warn("Clip download failed", "key", key, "error", err)
		return o.failJob(key, code, err.Error())
	}

	if dest != final {
		err := o.encode.Encode(ctx, ports.EncodeSpec{
			InputPath:  dest,
			OutputPath: final,
			CropPixels: o.cfg.CropPixels,
		})
		if err != nil {
			// The uncropped clip is still usable downstream.
			o.logger.Warn("Clip crop failed, keeping original", "key", key, "error", err)
			final = dest
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, j := range o.jobs {
		if j.IdempotentKey == key && !j.Status.IsTerminal() {
			j.Status = models.SideGenCompleted
			j.VideoPath = final
			return true
		}
	}
	return false
}

func (o *Orchestrator) variantFor(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, j := range o.jobs {
		if j.IdempotentKey == key {
			return j.Variant
		}
	}
	return key
}

// failJob marks a job failed unless it already reached a terminal state.
func (o *Orchestrator) failJob(key, code, msg string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, j := range o.jobs {
		if j.IdempotentKey == key && !j.Status.IsTerminal() {
			j.Status = models.SideGenFailed
			j.ErrorCode = code
			j.ErrorMessage = msg
			return true
		}
	}
	return false
}

func (o *Orchestrator) setStatus(key string, status models.SideGenStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, j := range o.jobs {
		if j.IdempotentKey == key && !j.Status.IsTerminal() && j.Status != status {
			j.Status = status
			return true
		}
	}
	return false
}

// ResubmitFailed sends every failed job back to the provider once more,
// re-arming the settled signal. The await gate uses this for its single
// retriable-failure retry.
func (o *Orchestrator) ResubmitFailed(ctx context.Context) int {
	o.mu.Lock()
	var retry []*models.SideGenJob
	for _, j := range o.jobs {
		if j.Status == models.SideGenFailed {
			j.Status = models.SideGenPending
			j.ErrorCode = ""
			j.ErrorMessage = ""
			retry = append(retry, j)
		}
	}
	if len(retry) == 0 {
		o.mu.Unlock()
		return 0
	}
	if o.settledClosed {
		o.settled = make(chan struct{})
		o.settledClosed = false
	}
	o.writeJobsLocked()
	resend := make(map[string]GenerationPrompt, len(retry))
	for _, j := range retry {
		p, ok := o.prompts[j.IdempotentKey]
		if !ok {
			p = GenerationPrompt{Variant: j.Variant}
		}
		resend[j.IdempotentKey] = p
	}
	o.mu.Unlock()

	for key, p := range resend {
		o.submitOne(ctx, key, p)
	}

	o.mu.Lock()
	o.writeJobsLocked()
	if o.allTerminalLocked() {
		o.closeSettledLocked()
	} else {
		o.startWorkerLocked(ctx)
	}
	o.mu.Unlock()
	return len(retry)
}

// MarkTimedOut transitions every non-terminal job to TIMED_OUT and
// settles. Returns how many jobs were cut off.
func (o *Orchestrator) MarkTimedOut() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, j := range o.jobs {
		if !j.Status.IsTerminal() {
			j.Status = models.SideGenTimedOut
			n++
		}
	}
	if n > 0 {
		o.writeJobsLocked()
	}
	o.closeSettledLocked()
	return n
}

// Snapshot returns a copy of the job records in submission order.
func (o *Orchestrator) Snapshot() []models.SideGenJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.SideGenJob, len(o.jobs))
	for i, j := range o.jobs {
		out[i] = *j
	}
	return out
}

// JobCount returns the number of tracked jobs.
func (o *Orchestrator) JobCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.jobs)
}

// Settled returns a channel closed once every job is terminal. Resubmit
// replaces the channel, so callers must re-fetch it after a retry.
func (o *Orchestrator) Settled() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settled
}

// Stop cancels the polling worker and waits for its final snapshot.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

func (o *Orchestrator) settledNow() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settledClosed
}

func (o *Orchestrator) allTerminalLocked() bool {
	for _, j := range o.jobs {
		if !j.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (o *Orchestrator) closeSettledLocked() {
	if !o.settledClosed {
		close(o.settled)
		o.settledClosed = true
	}
}

func (o *Orchestrator) startWorkerLocked(ctx context.Context) {
	if o.workerLive {
		return
	}
	o.workerLive = true
	o.wg.Add(1)
	go o.worker(ctx)
}

// writeJobsLocked rewrites jobs.json atomically. Callers hold the mutex.
func (o *Orchestrator) writeJobsLocked() {
	file := models.SideGenJobsFile{Jobs: make([]models.SideGenJob, len(o.jobs))}
	for i, j := range o.jobs {
		file.Jobs[i] = *j
	}
	if err := atomicfile.WriteJSON(o.jobsPath(), file); err != nil {
		o.logger.Error("Failed to write sidegen jobs file", "error", err)
	}
}
