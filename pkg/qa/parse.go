package qa

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/reelworks/reeler/pkg/models"
)

// ErrMalformedCritique indicates the critic's reply held no usable
// judgement.
var ErrMalformedCritique = errors.New("malformed critique reply")

// ParseCritique extracts the judgement JSON from a critic reply. Models
// wrap JSON in prose or code fences often enough that this scans for the
// outermost object rather than demanding a clean document.
func ParseCritique(reply string) (models.QACritique, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return models.QACritique{}, fmt.Errorf("%w: no JSON object found", ErrMalformedCritique)
	}

	var critique models.QACritique
	if err := json.Unmarshal([]byte(raw), &critique); err != nil {
		return models.QACritique{}, fmt.Errorf("%w: %v", ErrMalformedCritique, err)
	}

	critique.Decision = models.QADecision(strings.ToUpper(string(critique.Decision)))
	if !critique.Decision.IsValid() {
		return models.QACritique{}, fmt.Errorf("%w: unknown decision %q", ErrMalformedCritique, critique.Decision)
	}

	if critique.Score < 0 {
		critique.Score = 0
	}
	if critique.Score > 100 {
		critique.Score = 100
	}
	return critique, nil
}

// extractJSON returns the first top-level JSON object in the reply, or
// the empty string. Code fences are stripped first.
func extractJSON(reply string) string {
	reply = stripFences(reply)

	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return reply[start : i+1]
			}
		}
	}
	return ""
}

func stripFences(reply string) string {
	if !strings.Contains(reply, "```") {
		return reply
	}
	var out strings.Builder
	for _, line := range strings.Split(reply, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.String()
}
