package pipeline

import (
	"fmt"
	"strings"

	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/qa"
)

// promptInput carries everything one stage dispatch gets to see. Recovery
// levels shape it: a fork drops History, a fresh re-execution drops both
// History and Artifacts.
type promptInput struct {
	Stage        models.PipelineStage
	AgentDef     string
	Workflow     string
	Request      *models.Request
	WorkDir      string
	Artifacts    []qa.Artifact
	History      []models.QACritique
	ArtifactName string
	WantSideGen  bool
}

// buildStagePrompt renders the agent prompt for one attempt.
func buildStagePrompt(in promptInput) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(in.AgentDef))
	b.WriteString("\n\n## Task\n\n")
	b.WriteString(strings.TrimSpace(in.Workflow))
	b.WriteString("\n")

	b.WriteString("\n## Request\n\n")
	if in.Request != nil {
		fmt.Fprintf(&b, "Source URL: %s\n", in.Request.SourceURL)
		if in.Request.MessageText != "" {
			fmt.Fprintf(&b, "User message: %s\n", in.Request.MessageText)
		}
		if in.Request.Directives.TargetDurationS > 0 {
			fmt.Fprintf(&b, "Target duration: %d seconds\n", in.Request.Directives.TargetDurationS)
		}
		if in.Request.Directives.SegmentCount > 0 {
			fmt.Fprintf(&b, "Segments: %d\n", in.Request.Directives.SegmentCount)
		}
		for _, adv := range in.Request.Advisory {
			fmt.Fprintf(&b, "Note: %s\n", adv)
		}
	}

	fmt.Fprintf(&b, "\n## Workspace\n\nRun files live in %s. The source video, when present, is %s.\n",
		in.WorkDir, "source.mp4")

	if len(in.Artifacts) > 0 {
		b.WriteString("\n## Prior stage outputs\n")
		for _, a := range in.Artifacts {
			renderPromptArtifact(&b, a)
		}
	}

	if len(in.History) > 0 {
		b.WriteString("\n## Previous attempt feedback\n")
		for i, crit := range in.History {
			fmt.Fprintf(&b, "\nAttempt %d was sent back.\n", i+1)
			for _, blocker := range crit.Blockers {
				fmt.Fprintf(&b, "- Blocker: %s\n", blocker)
			}
			for _, fix := range crit.PrescriptiveFixes {
				fmt.Fprintf(&b, "- Fix: %s\n", fix)
			}
		}
	}

	b.WriteString("\n## Output contract\n\n")
	fmt.Fprintf(&b, "Reply with the complete contents of %s. No prose before or after it.\n", in.ArtifactName)
	if in.WantSideGen {
		b.WriteString("\nThen append a fenced block starting with ```sidegen-prompts containing\n")
		b.WriteString("a JSON object {\"prompts\": [{\"variant\", \"text\", \"anchor\", \"duration_s\"}, ...]}\n")
		b.WriteString("with one entry per supplementary clip worth generating. Omit the block\n")
		b.WriteString("if no supplementary clips are needed.\n")
	}

	return b.String()
}

// renderPromptArtifact inlines small artifacts and references large ones,
// mirroring the gate's summarisation threshold.
func renderPromptArtifact(b *strings.Builder, a qa.Artifact) {
	fmt.Fprintf(b, "\n### %s\n\n", a.Path)
	if len(a.Data) > qa.InlineThresholdBytes {
		fmt.Fprintf(b, "(in the workspace; %d bytes, too large to inline)\n", len(a.Data))
		return
	}
	b.WriteString("```\n")
	b.Write(a.Data)
	if len(a.Data) > 0 && a.Data[len(a.Data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
}

// splitSideGenPrompts separates the optional sidegen-prompts fenced block
// from a CONTENT reply. The body comes back with the block removed; the
// second return is the raw JSON inside the block, empty when absent.
func splitSideGenPrompts(reply string) (string, string) {
	lines := strings.Split(reply, "\n")
	var body, block []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inBlock && strings.HasPrefix(trimmed, "```sidegen-prompts"):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, "```"):
			inBlock = false
		case inBlock:
			block = append(block, line)
		default:
			body = append(body, line)
		}
	}
	return strings.TrimRight(strings.Join(body, "\n"), "\n") + "\n",
		strings.TrimSpace(strings.Join(block, "\n"))
}
