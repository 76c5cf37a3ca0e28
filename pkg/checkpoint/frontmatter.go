package checkpoint

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reelworks/reeler/pkg/models"
)

const frontMatterDelim = "---"

// knownKeys are the RunState front-matter keys owned by this package.
// Anything else found in a document is preserved verbatim on rewrite.
var knownKeys = map[string]bool{
	"run_id":              true,
	"stage":               true,
	"status":              true,
	"stages_completed":    true,
	"updated_at":          true,
	"request_fingerprint": true,
	"attempts":            true,
}

// Document is one run-metadata document: RunState front matter followed by
// a free-form prose body. State is nil when the document carries no
// usable front matter.
type Document struct {
	State *models.RunState
	Extra map[string]any
	Body  string
}

// ParseDocument reads a run-metadata document. Partial or empty documents
// are tolerated: the result has a nil State and the remaining content as
// Body. Unknown front-matter keys land in Extra.
func ParseDocument(data []byte) *Document {
	text := string(data)
	doc := &Document{Extra: map[string]any{}}

	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		doc.Body = text
		return doc
	}

	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	var yamlPart, body string
	switch {
	case end >= 0:
		yamlPart = rest[:end+1]
		body = rest[end+len(frontMatterDelim)+2:]
	case strings.HasSuffix(rest, "\n"+frontMatterDelim):
		yamlPart = rest[:len(rest)-len(frontMatterDelim)]
		body = ""
	default:
		// Unterminated front matter: treat the whole document as body.
		doc.Body = text
		return doc
	}
	doc.Body = strings.TrimPrefix(body, "\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(yamlPart), &raw); err != nil || raw == nil {
		return doc
	}
	for k, v := range raw {
		if !knownKeys[k] {
			doc.Extra[k] = v
		}
	}

	var state models.RunState
	if err := yaml.Unmarshal([]byte(yamlPart), &state); err != nil {
		return doc
	}
	if state.RunID == "" {
		return doc
	}
	if state.Attempts == nil {
		state.Attempts = map[models.PipelineStage]int{}
	}
	if state.StagesCompleted == nil {
		state.StagesCompleted = []models.PipelineStage{}
	}
	doc.State = &state
	return doc
}

// Render serialises the document: state fields in declaration order, then
// preserved extra keys sorted by name, then the body.
func (d *Document) Render() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(frontMatterDelim + "\n")

	if d.State != nil {
		stateYAML, err := yaml.Marshal(d.State)
		if err != nil {
			return nil, fmt.Errorf("marshal run state: %w", err)
		}
		sb.Write(stateYAML)
	}

	if len(d.Extra) > 0 {
		keys := make([]string, 0, len(d.Extra))
		for k := range d.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			kv, err := yaml.Marshal(map[string]any{k: d.Extra[k]})
			if err != nil {
				return nil, fmt.Errorf("marshal extra key %s: %w", k, err)
			}
			sb.Write(kv)
		}
	}

	sb.WriteString(frontMatterDelim + "\n")
	if d.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(d.Body)
		if !strings.HasSuffix(d.Body, "\n") {
			sb.WriteString("\n")
		}
	}
	return []byte(sb.String()), nil
}
