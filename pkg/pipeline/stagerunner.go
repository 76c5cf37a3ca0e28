package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/reelworks/reeler/pkg/atomicfile"
	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/qa"
	"github.com/reelworks/reeler/pkg/recovery"
	"github.com/reelworks/reeler/pkg/workspace"
)

// StageContext bundles what one stage execution needs.
type StageContext struct {
	Stage     models.PipelineStage
	Entry     Entry
	Request   *models.Request
	State     *models.RunState
	Workspace *workspace.Workspace
}

// StageRunner executes one agent stage: dispatch, artifact write, QA
// critique, rework attempts, and the recovery chain when the gate gives
// up. It mutates RunState only in memory (attempt counters); persistence
// stays with the run loop.
type StageRunner struct {
	agent        ports.AgentDispatch
	critic       *qa.Critic
	chain        *recovery.Chain
	configDir    string
	agentTimeout time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

// NewStageRunner wires a stage runner.
func NewStageRunner(agent ports.AgentDispatch, critic *qa.Critic, chain *recovery.Chain, configDir string, agentTimeout time.Duration, logger *slog.Logger) *StageRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageRunner{
		agent:        agent,
		critic:       critic,
		chain:        chain,
		configDir:    configDir,
		agentTimeout: agentTimeout,
		maxAttempts:  qa.DefaultMaxAttempts,
		logger:       logger.With("component", "stage_runner"),
	}
}

// Run executes the stage to a passed gate, walking the recovery chain when
// the regular attempt budget fails. The returned string is the artifact
// body that passed.
func (r *StageRunner) Run(ctx context.Context, pub *events.Publisher, sc StageContext) (string, error) {
	pub.StageEntered(ctx, sc.Stage)
	r.logger.Info("Stage entered", "run_id", sc.State.RunID, "stage", sc.Stage)

	var lastHistory []models.QACritique
	artifact, history, err := r.gateLoop(ctx, pub, sc, true, nil)
	lastHistory = history
	if err == nil {
		return artifact, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("stage %s: %w", sc.Stage, ErrInterrupted)
	}

	r.logger.Warn("Stage failed, starting recovery", "run_id", sc.State.RunID, "stage", sc.Stage, "error", err)
	result, rerr := r.chain.Run(ctx, pub, sc.Stage, err, func(ctx context.Context, opts recovery.ExecOptions) (string, error) {
		var seed []models.QACritique
		if opts.KeepHistory {
			seed = lastHistory
		}
		a, h, lerr := r.gateLoop(ctx, pub, sc, opts.KeepArtifacts, seed)
		lastHistory = h
		return a, lerr
	})
	if rerr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("stage %s: %w", sc.Stage, ErrInterrupted)
		}
		return "", rerr
	}

	r.logger.Info("Recovery succeeded", "run_id", sc.State.RunID, "stage", sc.Stage, "level", result.Level)
	return result.FinalArtifact, nil
}

// gateLoop runs up to maxAttempts dispatch+critique rounds. Rework
// critiques accumulate into the prompt of the following attempt; the
// returned history lets a RETRY recovery carry them across loops.
func (r *StageRunner) gateLoop(ctx context.Context, pub *events.Publisher, sc StageContext, keepArtifacts bool, seed []models.QACritique) (string, []models.QACritique, error) {
	agentDef := LoadAgentDefinition(r.configDir, sc.Entry)
	workflow := LoadWorkflow(r.configDir, sc.Entry)
	criteria := LoadGateCriteria(r.configDir, sc.Entry)

	var artifacts []qa.Artifact
	if keepArtifacts {
		artifacts = r.priorArtifacts(sc)
	}

	history := append([]models.QACritique(nil), seed...)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		sc.State.RecordAttempt(sc.Stage)

		prompt := buildStagePrompt(promptInput{
			Stage:        sc.Stage,
			AgentDef:     agentDef,
			Workflow:     workflow,
			Request:      sc.Request,
			WorkDir:      sc.Workspace.Dir(),
			Artifacts:    artifacts,
			History:      history,
			ArtifactName: sc.Entry.Artifact,
			WantSideGen:  sc.Stage == models.StageContent,
		})

		reply, err := r.agent.Dispatch(ctx, prompt, r.agentTimeout)
		if err != nil {
			return "", history, fmt.Errorf("agent dispatch for %s: %w", sc.Stage, err)
		}

		body := reply
		if sc.Stage == models.StageContent {
			var prompts string
			body, prompts = splitSideGenPrompts(reply)
			if prompts != "" {
				if werr := atomicfile.WriteAtomic(sc.Workspace.ArtifactPath(PromptsArtifact), []byte(prompts)); werr != nil {
					return "", history, fmt.Errorf("write %s: %w", PromptsArtifact, werr)
				}
			}
		}
		if werr := atomicfile.WriteAtomic(sc.Workspace.ArtifactPath(sc.Entry.Artifact), []byte(body)); werr != nil {
			return "", history, fmt.Errorf("write %s artifact: %w", sc.Stage, werr)
		}

		critique, err := r.critic.Critique(ctx, sc.Stage, criteria, []qa.Artifact{
			{Path: sc.Entry.Artifact, Data: []byte(body)},
		})
		if err != nil {
			return "", history, err
		}

		switch critique.Decision {
		case models.QAPass:
			pub.GatePassed(ctx, sc.Stage, critique, attempt)
			r.logger.Info("Gate passed", "stage", sc.Stage, "attempt", attempt, "score", critique.Score)
			return body, history, nil

		case models.QARework:
			pub.GateReworked(ctx, sc.Stage, critique, attempt)
			r.logger.Info("Gate sent work back", "stage", sc.Stage, "attempt", attempt, "blockers", len(critique.Blockers))
			history = append(history, critique)

		default:
			pub.GateFailed(ctx, sc.Stage, critique, attempt)
			return "", history, &GateRejectedError{Stage: sc.Stage, Blockers: critique.Blockers}
		}
	}

	return "", history, &AttemptsExhaustedError{Stage: sc.Stage, Attempts: r.maxAttempts}
}

// priorArtifacts collects the outputs of completed upstream stages that
// still exist on disk, in canonical stage order.
func (r *StageRunner) priorArtifacts(sc StageContext) []qa.Artifact {
	var out []qa.Artifact
	for _, stage := range models.StageOrder() {
		if stage == sc.Stage {
			break
		}
		if !sc.State.Completed(stage) {
			continue
		}
		entry, ok := EntryFor(stage)
		if !ok {
			continue
		}
		data, err := os.ReadFile(sc.Workspace.ArtifactPath(entry.Artifact))
		if err != nil {
			continue
		}
		out = append(out, qa.Artifact{Path: entry.Artifact, Data: data})
	}
	return out
}
