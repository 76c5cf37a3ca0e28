package qa

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/reelworks/reeler/pkg/models"
)

// buildPrompt assembles the critique request: gate criteria, the stage
// output (inlined or described), and the reply schema.
func buildPrompt(stage models.PipelineStage, criteria string, artifacts []Artifact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the quality gate for the %s stage of a video pipeline.\n", stage)
	b.WriteString("Judge the stage output below against the gate criteria. Be strict; a pass advances the pipeline.\n\n")

	b.WriteString("## Gate criteria\n\n")
	b.WriteString(strings.TrimSpace(criteria))
	b.WriteString("\n\n## Stage output\n\n")

	for _, a := range artifacts {
		renderArtifact(&b, a)
	}

	b.WriteString("## Reply schema\n\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"decision": "PASS" | "REWORK" | "FAIL", "score": 0-100, "blockers": ["..."], "prescriptive_fixes": ["..."]}`)
	b.WriteString("\n")

	return b.String()
}

// renderArtifact inlines small artifacts verbatim. Large ones are
// described by path, content hash and headline statistics so the prompt
// stays bounded.
func renderArtifact(b *strings.Builder, a Artifact) {
	if len(a.Data) <= InlineThresholdBytes {
		fmt.Fprintf(b, "### %s\n\n```\n%s\n```\n\n", a.Path, string(a.Data))
		return
	}

	fmt.Fprintf(b, "### %s (too large to inline)\n\n", a.Path)
	fmt.Fprintf(b, "- sha256: %x\n", sha256.Sum256(a.Data))
	fmt.Fprintf(b, "- size: %d bytes\n", len(a.Data))
	fmt.Fprintf(b, "- lines: %d\n\n", countLines(a.Data))
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 1
	for _, c := range data {
		if c == '\n' {
			n++
		}
	}
	if data[len(data)-1] == '\n' {
		n--
	}
	return n
}
