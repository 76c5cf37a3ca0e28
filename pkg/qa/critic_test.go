package qa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reeler/pkg/models"
)

type scriptedDispatch struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	lastTimeout time.Duration
}

func (d *scriptedDispatch) Dispatch(_ context.Context, _ string, timeout time.Duration) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.lastTimeout = timeout
	return d.reply, d.err
}

const passReply = `{"decision":"PASS","score":88}`

func TestCritiquePreferredModelWins(t *testing.T) {
	preferred := &scriptedDispatch{reply: passReply}
	fallback := &scriptedDispatch{reply: `{"decision":"FAIL","score":0}`}
	c := NewCritic(preferred, fallback, 600*time.Second, nil)

	critique, err := c.Critique(context.Background(), models.StageTranscript, "criteria", nil)
	require.NoError(t, err)

	assert.Equal(t, models.QAPass, critique.Decision)
	assert.Equal(t, 1, preferred.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestCritiqueFallsBackOnGarbledReply(t *testing.T) {
	preferred := &scriptedDispatch{reply: "sure, looks fine"}
	fallback := &scriptedDispatch{reply: `{"decision":"REWORK","score":45,"prescriptive_fixes":["tighten hook"]}`}
	c := NewCritic(preferred, fallback, 600*time.Second, nil)

	critique, err := c.Critique(context.Background(), models.StageContent, "criteria", nil)
	require.NoError(t, err)

	assert.Equal(t, models.QARework, critique.Decision)
	assert.Equal(t, []string{"tighten hook"}, critique.PrescriptiveFixes)
	assert.Equal(t, 1, preferred.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestCritiqueFallsBackOnTransportError(t *testing.T) {
	preferred := &scriptedDispatch{err: errors.New("agent exited 1")}
	fallback := &scriptedDispatch{reply: passReply}
	c := NewCritic(preferred, fallback, 600*time.Second, nil)

	critique, err := c.Critique(context.Background(), models.StageRouter, "criteria", nil)
	require.NoError(t, err)
	assert.Equal(t, models.QAPass, critique.Decision)
}

func TestCritiqueBothRungsFailTransport(t *testing.T) {
	preferred := &scriptedDispatch{err: errors.New("agent exited 1")}
	fallback := &scriptedDispatch{err: errors.New("agent exited 1")}
	c := NewCritic(preferred, fallback, 600*time.Second, nil)

	_, err := c.Critique(context.Background(), models.StageRouter, "criteria", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROUTER")
}

func TestCritiqueSyntheticReworkWhenBothGarbled(t *testing.T) {
	preferred := &scriptedDispatch{reply: "nope"}
	fallback := &scriptedDispatch{reply: "still nope"}
	c := NewCritic(preferred, fallback, 600*time.Second, nil)

	critique, err := c.Critique(context.Background(), models.StageLayoutDetective, "criteria", nil)
	require.NoError(t, err)

	assert.Equal(t, models.QARework, critique.Decision)
	assert.Equal(t, []string{SyntheticFix}, critique.PrescriptiveFixes)
}

func TestCritiqueSyntheticReworkWithoutFallback(t *testing.T) {
	preferred := &scriptedDispatch{reply: "not json"}
	c := NewCritic(preferred, nil, 600*time.Second, nil)

	critique, err := c.Critique(context.Background(), models.StageResearch, "criteria", nil)
	require.NoError(t, err)
	assert.Equal(t, models.QARework, critique.Decision)
	assert.Equal(t, []string{SyntheticFix}, critique.PrescriptiveFixes)
}

func TestCritiqueErrorWithoutFallbackOnTransportFailure(t *testing.T) {
	preferred := &scriptedDispatch{err: errors.New("spawn failed")}
	c := NewCritic(preferred, nil, 600*time.Second, nil)

	_, err := c.Critique(context.Background(), models.StageResearch, "criteria", nil)
	assert.Error(t, err)
}

func TestCritiqueTimeoutBudget(t *testing.T) {
	tests := []struct {
		name         string
		agentTimeout time.Duration
		want         time.Duration
	}{
		{"long agent budget halves", 1200 * time.Second, 600 * time.Second},
		{"short agent budget floors", 400 * time.Second, 300 * time.Second},
		{"exact boundary", 600 * time.Second, 300 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &scriptedDispatch{reply: passReply}
			c := NewCritic(d, nil, tt.agentTimeout, nil)
			assert.Equal(t, tt.want, c.Timeout())

			_, err := c.Critique(context.Background(), models.StageRouter, "x", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.lastTimeout)
		})
	}
}

func TestBuildPromptInlineBoundary(t *testing.T) {
	atLimit := strings.Repeat("a", InlineThresholdBytes-10) + "END-MARKER"
	require.Len(t, atLimit, InlineThresholdBytes)
	overLimit := atLimit + "b"

	t.Run("at threshold inlined", func(t *testing.T) {
		prompt := buildPrompt(models.StageContent, "criteria", []Artifact{{Path: "content.md", Data: []byte(atLimit)}})
		assert.Contains(t, prompt, "END-MARKER")
		assert.NotContains(t, prompt, "too large to inline")
	})

	t.Run("one byte over summarised", func(t *testing.T) {
		prompt := buildPrompt(models.StageContent, "criteria", []Artifact{{Path: "content.md", Data: []byte(overLimit)}})
		assert.NotContains(t, prompt, "END-MARKER")
		assert.Contains(t, prompt, "too large to inline")
		assert.Contains(t, prompt, "sha256:")
		assert.Contains(t, prompt, "size: 15001 bytes")
	})
}

func TestBuildPromptIncludesCriteriaAndSchema(t *testing.T) {
	prompt := buildPrompt(models.StageAssembly, "final reel must be vertical", []Artifact{
		{Path: "assembly.json", Data: []byte(`{"ok":true}`)},
	})

	assert.Contains(t, prompt, "ASSEMBLY")
	assert.Contains(t, prompt, "final reel must be vertical")
	assert.Contains(t, prompt, "assembly.json")
	assert.Contains(t, prompt, `"decision"`)
	assert.Contains(t, prompt, "prescriptive_fixes")
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(nil))
	assert.Equal(t, 1, countLines([]byte("one")))
	assert.Equal(t, 1, countLines([]byte("one\n")))
	assert.Equal(t, 3, countLines([]byte("a\nb\nc")))
}
