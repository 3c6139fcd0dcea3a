package pattern

import (
	"sort"
	"strings"

	"github.com/nth-layer/orchestra/engine"
)

// History is the orchestrator's running record of every stage's successful
// responses so far, keyed stage -> modelID -> content.
type History map[string]map[string]string

// Record stores model's response for stage.
func (h History) Record(stage, model, content string) {
	if h[stage] == nil {
		h[stage] = make(map[string]string)
	}
	h[stage][model] = content
}

// BuildStageContext assembles the StageContext for targetModel about to run
// stage, from originalPrompt and every prior stage's recorded responses
// (spec §3 "StageContext"). prevStage is the stage immediately before stage
// in pattern order, or "" for the pattern's first ("initial") stage.
func BuildStageContext(originalPrompt string, h History, prevStage, targetModel string) engine.StageContext {
	ctx := engine.NewStageContext(originalPrompt)
	if prevStage == "" {
		return ctx
	}

	for stage, responses := range h {
		ctx[stage+"_responses"] = joinResponses(responses, "")
		for model, content := range responses {
			ctx[model+"_"+stage] = content
		}
	}

	prev := h[prevStage]
	ctx["own_response"] = prev[targetModel]
	ctx["other_responses"] = joinResponses(prev, targetModel)
	return ctx
}

// joinResponses renders responses (model -> content) in alphabetical model
// order as "model: content" blocks separated by a blank line, skipping
// exclude if non-empty (used to build other_responses).
func joinResponses(responses map[string]string, exclude string) string {
	models := make([]string, 0, len(responses))
	for m := range responses {
		if m == exclude {
			continue
		}
		models = append(models, m)
	}
	sort.Strings(models)

	var b strings.Builder
	for i, m := range models {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m)
		b.WriteString(": ")
		b.WriteString(responses[m])
	}
	return b.String()
}
