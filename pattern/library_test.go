package pattern

import (
	"testing"

	"github.com/nth-layer/orchestra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLibraryRegistersCanonicalPatterns(t *testing.T) {
	l := NewLibrary()
	assert.Equal(t, []string{"comparative", "confidence", "gut", "perspective"}, l.Names())

	gut, ok := l.Get("gut")
	require.True(t, ok)
	assert.Equal(t, []string{"initial"}, gut.Stages)

	comparative, ok := l.Get("comparative")
	require.True(t, ok)
	assert.Equal(t, []string{"initial", "meta", "ultra"}, comparative.Stages)
}

func TestRegisterRejectsMissingTemplate(t *testing.T) {
	l := NewLibrary()
	err := l.Register(engine.Pattern{
		Name:      "broken",
		Stages:    []string{"initial", "meta"},
		Templates: map[string]string{"initial": "${original_prompt}"},
	})
	require.Error(t, err)
	assert.Equal(t, engine.ErrBadRequest, engine.CodeOf(err))
}

func TestRegisterRejectsNonInitialFirstStage(t *testing.T) {
	l := NewLibrary()
	err := l.Register(engine.Pattern{
		Name:      "broken",
		Stages:    []string{"meta"},
		Templates: map[string]string{"meta": "x"},
	})
	require.Error(t, err)
}

func TestRenderSubstitutesKnownVars(t *testing.T) {
	ctx := engine.StageContext{"original_prompt": "ping", "other_responses": "mB: pong"}
	out := Render("Q: ${original_prompt}\nOthers: ${other_responses}", ctx)
	assert.Equal(t, "Q: ping\nOthers: mB: pong", out)
}

func TestRenderLeavesUnknownVarsEmpty(t *testing.T) {
	ctx := engine.NewStageContext("ping")
	out := Render("${original_prompt} / ${meta_responses}", ctx)
	assert.Equal(t, "ping / ", out)
}

func TestBuildStageContextInitialStageHasOnlyOriginalPrompt(t *testing.T) {
	ctx := BuildStageContext("ping", History{}, "", "mA")
	assert.Equal(t, engine.StageContext{"original_prompt": "ping"}, ctx)
}

func TestBuildStageContextMetaSeesOwnAndOtherResponses(t *testing.T) {
	h := History{}
	h.Record("initial", "mA", "answer-A")
	h.Record("initial", "mB", "answer-B")

	ctxA := BuildStageContext("ping", h, "initial", "mA")
	assert.Equal(t, "answer-A", ctxA["own_response"])
	assert.Equal(t, "mB: answer-B", ctxA["other_responses"])
	assert.Contains(t, ctxA["initial_responses"], "answer-A")
	assert.Contains(t, ctxA["initial_responses"], "answer-B")
	assert.Equal(t, "answer-A", ctxA["mA_initial"])
	assert.Equal(t, "answer-B", ctxA["mB_initial"])

	ctxB := BuildStageContext("ping", h, "initial", "mB")
	assert.Equal(t, "answer-B", ctxB["own_response"])
	assert.Equal(t, "mA: answer-A", ctxB["other_responses"])
}
