package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reelworks/reeler/pkg/models"
)

// Entry describes how one agent stage executes: the workflow document
// that frames the task, the agent definition directory that primes the
// model, the gate criteria that guard the exit, and the artifact the
// stage must leave in the workspace.
type Entry struct {
	WorkflowDoc string
	AgentDir    string
	QAGate      string
	Artifact    string
}

// PromptsArtifact is the optional CONTENT side output holding the
// side-generation prompt list.
const PromptsArtifact = "sidegen_prompts.json"

// dispatchTable maps every agent stage to its entry. SIDEGEN_AWAIT and
// DELIVERY run outside the agent path and have none.
var dispatchTable = map[models.PipelineStage]Entry{
	models.StageRouter: {
		WorkflowDoc: "workflows/router.md",
		AgentDir:    "agents/router",
		QAGate:      "qa/router-gate.md",
		Artifact:    "router.json",
	},
	models.StageResearch: {
		WorkflowDoc: "workflows/research.md",
		AgentDir:    "agents/researcher",
		QAGate:      "qa/research-gate.md",
		Artifact:    "research.md",
	},
	models.StageTranscript: {
		WorkflowDoc: "workflows/transcript.md",
		AgentDir:    "agents/transcriber",
		QAGate:      "qa/transcript-gate.md",
		Artifact:    "transcript.md",
	},
	models.StageContent: {
		WorkflowDoc: "workflows/content.md",
		AgentDir:    "agents/content-writer",
		QAGate:      "qa/content-gate.md",
		Artifact:    "content.md",
	},
	models.StageLayoutDetective: {
		WorkflowDoc: "workflows/layout.md",
		AgentDir:    "agents/layout-detective",
		QAGate:      "qa/layout-gate.md",
		Artifact:    "layout.json",
	},
	models.StageFFmpegEngineer: {
		WorkflowDoc: "workflows/ffmpeg.md",
		AgentDir:    "agents/ffmpeg-engineer",
		QAGate:      "qa/ffmpeg-gate.md",
		Artifact:    "ffmpeg_plan.json",
	},
	models.StageAssembly: {
		WorkflowDoc: "workflows/assembly.md",
		AgentDir:    "agents/assembler",
		QAGate:      "qa/assembly-gate.md",
		Artifact:    "assembly.json",
	},
}

// EntryFor returns the dispatch entry for an agent stage.
func EntryFor(stage models.PipelineStage) (Entry, bool) {
	e, ok := dispatchTable[stage]
	return e, ok
}

// Documents are resolved relative to the config dir. A missing workflow
// or agent document degrades to a named placeholder so a sparse install
// still runs; gate criteria likewise fall back to a generic check.

func loadDocument(configDir, rel, fallback string) string {
	data, err := os.ReadFile(filepath.Join(configDir, rel))
	if err != nil {
		return fallback
	}
	return string(data)
}

// LoadWorkflow returns the stage workflow text.
func LoadWorkflow(configDir string, e Entry) string {
	return loadDocument(configDir, e.WorkflowDoc,
		fmt.Sprintf("Execute the %s step of the reel pipeline.", filepath.Base(e.WorkflowDoc)))
}

// LoadAgentDefinition returns the agent definition text, the
// concatenation of every markdown file in the agent directory.
func LoadAgentDefinition(configDir string, e Entry) string {
	dir := filepath.Join(configDir, e.AgentDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("You are the %s agent.", filepath.Base(e.AgentDir))
	}

	var out []byte
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			continue
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	if len(out) == 0 {
		return fmt.Sprintf("You are the %s agent.", filepath.Base(e.AgentDir))
	}
	return string(out)
}

// LoadGateCriteria returns the QA gate criteria text.
func LoadGateCriteria(configDir string, e Entry) string {
	return loadDocument(configDir, e.QAGate,
		"Output must be complete, well formed, and directly usable by the next stage.")
}
