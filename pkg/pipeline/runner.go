package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/recovery"
	"github.com/reelworks/reeler/pkg/sidegen"
	"github.com/reelworks/reeler/pkg/workspace"
)

// DefaultAskTimeout bounds how long a clarification question waits for the
// user before the run proceeds with defaults.
const DefaultAskTimeout = 2 * time.Minute

// Deliverer finalises a run: probe the reel, upload it, hand it to the
// user. DELIVERY runs outside the agent and QA path.
type Deliverer interface {
	Deliver(ctx context.Context, ws *workspace.Workspace, state *models.RunState) error
}

// SideGenFactory builds the per-run generation orchestrator. A nil
// factory disables side generation; the await gate then completes empty.
type SideGenFactory func(ws *workspace.Workspace, runID string) *sidegen.Orchestrator

// RunnerDeps wires a Runner. Messenger, Downloader, NewSideGen and
// StopRequested may be nil.
type RunnerDeps struct {
	Workspaces    *workspace.Manager
	Store         *checkpoint.Store
	Bus           *events.Bus
	Stages        *StageRunner
	Gate          *sidegen.Gate
	NewSideGen    SideGenFactory
	Deliverer     Deliverer
	Downloader    ports.VideoDownload
	Messenger     ports.Messaging
	AskTimeout    time.Duration
	StopRequested func() bool
	Logger        *slog.Logger
}

// Runner drives one run from its current stage to DELIVERY. It is the only
// writer of the run's durable state: every transition is persisted before
// the matching completion event is published.
type Runner struct {
	deps   RunnerDeps
	logger *slog.Logger
}

// NewRunner creates a run loop from its dependencies.
func NewRunner(deps RunnerDeps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.AskTimeout <= 0 {
		deps.AskTimeout = DefaultAskTimeout
	}
	return &Runner{deps: deps, logger: deps.Logger.With("component", "runner")}
}

// Execute runs one request to completion, resuming from persisted state
// when the workspace already has some. A nil return means the reel was
// delivered; ErrInterrupted means the item should be released for a later
// claim; RunFailedError is terminal.
func (r *Runner) Execute(ctx context.Context, runID string, req *models.Request) error {
	ws, err := r.deps.Workspaces.Acquire(runID)
	if err != nil {
		return fmt.Errorf("acquire workspace: %w", err)
	}
	pub := events.NewPublisher(r.deps.Bus, runID)

	state, found, err := r.deps.Store.LoadState(runID)
	if err != nil {
		return fmt.Errorf("load run state: %w", err)
	}
	fresh := !found
	if fresh {
		state = models.NewRunState(runID, models.Fingerprint(req.SourceURL, req.MessageText))
	} else {
		r.positionResume(state, req)
	}
	if req.Directives.StartStage > 0 {
		hint := models.StageOrder()[req.Directives.StartStage-1]
		if state.Stage != hint {
			r.logger.Info("Start-stage override", "run_id", runID, "from", state.Stage, "to", hint)
			state.Stage = hint
		}
	}
	defer func() {
		if cerr := ws.Close(state); cerr != nil {
			r.logger.Warn("Workspace close failed", "run_id", runID, "error", cerr)
		}
	}()

	if err := r.deps.Store.SaveState(runID, state); err != nil {
		return fmt.Errorf("persist initial state: %w", err)
	}

	if fresh {
		if err := r.fetchSource(ctx, ws, req); err != nil {
			state.Status = models.RunStatusFailed
			r.persist(state)
			pub.RunFailed(ctx, err.Error())
			return &RunFailedError{RunID: runID, Stage: state.Stage, Err: err}
		}
	}

	var orch *sidegen.Orchestrator
	defer func() {
		if orch != nil {
			orch.Stop()
		}
	}()
	orch = r.resumeSideGen(ctx, ws, runID, state)

	for !state.Finished() {
		if ctx.Err() != nil || r.stopRequested() {
			r.logger.Info("Run pausing for shutdown", "run_id", runID, "stage", state.Stage)
			return fmt.Errorf("at %s: %w", state.Stage, ErrInterrupted)
		}

		stage := state.Stage
		switch stage {
		case models.StageSideGenAwait:
			pub.StageEntered(ctx, stage)
			// Checkpoint around the gate so a crash mid-wait resumes here.
			r.persist(state)
			if err := r.deps.Gate.Run(ctx, pub, orch); err != nil {
				return fmt.Errorf("at %s: %w", stage, ErrInterrupted)
			}
			if err := r.advance(ctx, pub, state, SignalGateComplete); err != nil {
				return err
			}

		case models.StageDelivery:
			if err := r.deliver(ctx, pub, ws, state); err != nil {
				return r.failRun(ctx, pub, state, stage, err)
			}

		default:
			entry, ok := EntryFor(stage)
			if !ok {
				return r.failRun(ctx, pub, state, stage,
					fmt.Errorf("no dispatch entry for stage %s", stage))
			}
			_, err := r.deps.Stages.Run(ctx, pub, StageContext{
				Stage:     stage,
				Entry:     entry,
				Request:   req,
				State:     state,
				Workspace: ws,
			})
			if err != nil {
				if errors.Is(err, ErrInterrupted) || ctx.Err() != nil {
					return fmt.Errorf("at %s: %w", stage, ErrInterrupted)
				}
				return r.failRun(ctx, pub, state, stage, err)
			}

			if stage == models.StageRouter {
				r.maybeClarify(ctx, ws, req)
			}
			if stage == models.StageContent {
				orch = r.spawnSideGen(ctx, ws, runID)
			}
			if err := r.advance(ctx, pub, state, SignalQAPass); err != nil {
				return err
			}
		}
	}

	r.logger.Info("Run completed", "run_id", runID)
	return nil
}

// positionResume moves the stage pointer to the first incomplete stage.
// stages_completed is the durable truth; the persisted pointer may be
// stale after a crash.
func (r *Runner) positionResume(state *models.RunState, req *models.Request) {
	state.Status = models.RunStatusRunning
	if plan, ok := PlanFor(state); ok {
		if state.Stage != plan.ResumeFrom {
			r.logger.Info("Ignoring stale stage pointer",
				"run_id", state.RunID, "stored", state.Stage, "resume_from", plan.ResumeFrom)
		}
		state.Stage = plan.ResumeFrom
	}
	if req != nil && state.RequestFingerprint != "" {
		if fp := models.Fingerprint(req.SourceURL, req.MessageText); fp != state.RequestFingerprint {
			r.logger.Warn("Request fingerprint differs from workspace", "run_id", state.RunID)
		}
	}
}

// fetchSource downloads the source video for a fresh run. Resumed runs
// keep whatever source they already have.
func (r *Runner) fetchSource(ctx context.Context, ws *workspace.Workspace, req *models.Request) error {
	if r.deps.Downloader == nil || req.SourceURL == "" {
		return nil
	}
	if _, err := os.Stat(ws.SourceVideoPath()); err == nil {
		return nil
	}
	r.logger.Info("Downloading source video", "run_id", ws.RunID(), "url", req.SourceURL)
	if err := r.deps.Downloader.Download(ctx, req.SourceURL, ws.SourceVideoPath()); err != nil {
		return fmt.Errorf("source download: %w", err)
	}
	return nil
}

// maybeClarify asks the user the router's clarification question, when it
// posed one, and threads the answer into later prompts. Silence or a
// missing channel leaves the run on defaults.
func (r *Runner) maybeClarify(ctx context.Context, ws *workspace.Workspace, req *models.Request) {
	data, err := os.ReadFile(ws.ArtifactPath("router.json"))
	if err != nil {
		return
	}
	var doc struct {
		ClarificationQuestion string `json:"clarification_question"`
	}
	if json.Unmarshal(data, &doc) != nil {
		return
	}
	question := strings.TrimSpace(doc.ClarificationQuestion)
	if question == "" {
		return
	}
	if r.deps.Messenger == nil {
		r.logger.Info("Router asked for clarification but no user channel exists", "question", question)
		req.Advisory = append(req.Advisory, "Clarification unavailable; proceed with sensible defaults.")
		return
	}

	answer, answered, err := r.deps.Messenger.AskUser(ctx, question, r.deps.AskTimeout)
	if err != nil || !answered {
		r.logger.Info("Clarification went unanswered", "question", question, "error", err)
		req.Advisory = append(req.Advisory, "Clarification went unanswered; proceed with sensible defaults.")
		return
	}
	r.logger.Info("Clarification received")
	req.Advisory = append(req.Advisory, "User clarification: "+answer)
}

// spawnSideGen starts background generation from the CONTENT prompt
// artifact. Missing or empty prompts simply mean no jobs.
func (r *Runner) spawnSideGen(ctx context.Context, ws *workspace.Workspace, runID string) *sidegen.Orchestrator {
	if r.deps.NewSideGen == nil {
		return nil
	}
	data, err := os.ReadFile(ws.ArtifactPath(PromptsArtifact))
	if err != nil {
		r.logger.Info("No side-generation prompts produced", "run_id", runID)
		return nil
	}
	prompts, err := sidegen.ParsePrompts(data)
	if err != nil {
		r.logger.Warn("Side-generation prompts unusable", "run_id", runID, "error", err)
		return nil
	}
	if len(prompts) == 0 {
		return nil
	}

	orch := r.deps.NewSideGen(ws, runID)
	if err := orch.Start(ctx, prompts); err != nil {
		r.logger.Warn("Side-generation start failed", "run_id", runID, "error", err)
	}
	return orch
}

// resumeSideGen rebuilds the orchestrator from a jobs.json left by a
// previous process. Terminal jobs stay as they are; active ones get
// re-polled under the same idempotent keys.
func (r *Runner) resumeSideGen(ctx context.Context, ws *workspace.Workspace, runID string, state *models.RunState) *sidegen.Orchestrator {
	if r.deps.NewSideGen == nil || state.Completed(models.StageSideGenAwait) {
		return nil
	}
	if _, err := os.Stat(ws.JobsFilePath()); err != nil {
		return nil
	}

	var prompts []sidegen.GenerationPrompt
	if data, err := os.ReadFile(ws.ArtifactPath(PromptsArtifact)); err == nil {
		prompts, _ = sidegen.ParsePrompts(data)
	}

	orch := r.deps.NewSideGen(ws, runID)
	resumed, err := orch.Resume(ctx, prompts)
	if err != nil {
		r.logger.Warn("Side-generation resume failed", "run_id", runID, "error", err)
		return nil
	}
	if !resumed {
		return nil
	}
	r.logger.Info("Resumed side-generation jobs", "run_id", runID, "jobs", orch.JobCount())
	return orch
}

// deliver runs the terminal stage and closes the run out.
func (r *Runner) deliver(ctx context.Context, pub *events.Publisher, ws *workspace.Workspace, state *models.RunState) error {
	pub.StageEntered(ctx, models.StageDelivery)
	r.logger.Info("Stage entered", "run_id", state.RunID, "stage", models.StageDelivery)

	if r.deps.Deliverer != nil {
		if err := r.deps.Deliverer.Deliver(ctx, ws, state); err != nil {
			return fmt.Errorf("delivery: %w", err)
		}
	}

	CompleteFinal(state)
	r.persist(state)
	pub.StageCompleted(ctx, models.StageDelivery)
	pub.RunCompleted(ctx)
	return nil
}

// advance moves the state machine, persists, then publishes the
// completion event, in that order.
func (r *Runner) advance(ctx context.Context, pub *events.Publisher, state *models.RunState, sig Signal) error {
	completed := state.Stage
	if _, err := Advance(state, sig); err != nil {
		return err
	}
	if err := r.deps.Store.SaveState(state.RunID, state); err != nil {
		return fmt.Errorf("persist after %s: %w", completed, err)
	}
	pub.StageCompleted(ctx, completed)
	return nil
}

// failRun records the terminal failure, publishes the failure events, and
// wraps the cause. The escalation message, when recovery ran, was already
// sent by the chain.
func (r *Runner) failRun(ctx context.Context, pub *events.Publisher, state *models.RunState, stage models.PipelineStage, cause error) error {
	state.Status = models.RunStatusFailed
	r.persist(state)

	pub.StageFailed(ctx, stage, cause.Error())
	pub.RunFailed(ctx, cause.Error())

	var exhausted *recovery.RecoveryExhausted
	if !errors.As(cause, &exhausted) && r.deps.Messenger != nil {
		msg := fmt.Sprintf("Run %s failed at %s: %v", state.RunID, stage, cause)
		if nerr := r.deps.Messenger.Notify(ctx, msg); nerr != nil {
			r.logger.Warn("Failure notification failed", "run_id", state.RunID, "error", nerr)
		}
	}
	return &RunFailedError{RunID: state.RunID, Stage: stage, Err: cause}
}

func (r *Runner) persist(state *models.RunState) {
	if err := r.deps.Store.SaveState(state.RunID, state); err != nil {
		r.logger.Error("State persist failed", "run_id", state.RunID, "error", err)
	}
}

func (r *Runner) stopRequested() bool {
	return r.deps.StopRequested != nil && r.deps.StopRequested()
}
