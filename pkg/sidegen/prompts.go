package sidegen

import (
	"encoding/json"
	"fmt"
)

// GenerationPrompt is one clip request extracted from the CONTENT stage
// output.
type GenerationPrompt struct {
	Variant   string `json:"variant"`
	Text      string `json:"text"`
	Anchor    string `json:"anchor"`
	DurationS int    `json:"duration_s"`
}

// ParsePrompts decodes the prompt list the CONTENT stage leaves behind.
// Entries without a variant are dropped; variants must be unique because
// they feed the idempotent key.
func ParsePrompts(data []byte) ([]GenerationPrompt, error) {
	var wrapper struct {
		Prompts []GenerationPrompt `json:"prompts"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse generation prompts: %w", err)
	}

	seen := make(map[string]bool, len(wrapper.Prompts))
	out := make([]GenerationPrompt, 0, len(wrapper.Prompts))
	for _, p := range wrapper.Prompts {
		if p.Variant == "" || seen[p.Variant] {
			continue
		}
		seen[p.Variant] = true
		out = append(out, p)
	}
	return out, nil
}
