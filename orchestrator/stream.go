package orchestrator

import (
	"context"
	"sync"

	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/pattern"
	"github.com/nth-layer/orchestra/progress"
	"github.com/nth-layer/orchestra/strategy"
)

// StreamProcess streams the first stage of the pattern from the
// highest-priority selected model; every other stage is computed normally
// and reported as a single summary update rather than token-by-token
// (spec §4.9 "streamProcess"). The returned channel is closed once every
// stage has completed or ctx is cancelled.
func (e *Engine) StreamProcess(ctx context.Context, prompt, patternName string, requestedModels []string) (<-chan StreamUpdate, error) {
	if patternName == "" {
		patternName = "gut"
	}
	pat, ok := e.patterns.Get(patternName)
	if !ok {
		return nil, engine.NewError(engine.ErrBadRequest, "unknown pattern "+patternName)
	}
	if e.fallback == nil {
		return nil, engine.NewError(engine.ErrInternal, "orchestrator has no fallback service configured")
	}

	models, _ := e.planModels(requestedModels, prompt, Options{})
	if len(models) == 0 {
		return nil, engine.NewError(engine.ErrBadRequest, "no models selected")
	}
	lead := models[0]
	for _, cfg := range e.registry.Prioritized() {
		for _, m := range models {
			if cfg.ModelID == m {
				lead = cfg.ModelID
				goto leadFound
			}
		}
	}
leadFound:

	out := make(chan StreamUpdate)
	go e.runStreamProcess(ctx, prompt, patternName, pat, models, lead, out)
	return out, nil
}

func (e *Engine) runStreamProcess(ctx context.Context, prompt, patternName string, pat engine.Pattern, models []string, lead string, out chan<- StreamUpdate) {
	defer close(out)

	firstStage := pat.Stages[0]
	history := pattern.History{}

	stageCtx := pattern.BuildStageContext(prompt, history, "", lead)
	rendered := pattern.Render(pat.Templates[firstStage], stageCtx)

	leadContent := e.streamLead(ctx, lead, firstStage, rendered, patternName, out)
	if leadContent != "" {
		history.Record(firstStage, lead, leadContent)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, model := range models {
		if model == lead {
			continue
		}
		model := model
		wg.Add(1)
		go func() {
			defer wg.Done()
			modelCtx := pattern.BuildStageContext(prompt, pattern.History{}, "", model)
			resp, err := e.fallback.Generate(ctx, model, pattern.Render(pat.Templates[firstStage], modelCtx), engine.GenerateOptions{Stage: firstStage})
			if err != nil {
				return
			}
			mu.Lock()
			history.Record(firstStage, model, resp.Content)
			mu.Unlock()
		}()
	}
	wg.Wait()

	select {
	case out <- StreamUpdate{Stage: firstStage, Done: true, Progress: percent(1, len(pat.Stages)), Pattern: patternName}:
	case <-ctx.Done():
		return
	}

	tracker := progress.New()
	prevStage := firstStage
	for i, stage := range pat.Stages[1:] {
		e.runStage(ctx, patternName, prompt, stage, pat.Templates[stage], history, prevStage, models, Options{}, strategy.Plan{}, tracker)
		prevStage = stage

		select {
		case out <- StreamUpdate{Stage: stage, Done: true, Progress: percent(i+2, len(pat.Stages)), Pattern: patternName}:
		case <-ctx.Done():
			return
		}
	}

	select {
	case out <- StreamUpdate{Done: true, Stage: "summary", Progress: 100, Pattern: patternName}:
	case <-ctx.Done():
	}
}

// streamLead drives the lead model's StreamGenerate call, relaying chunks
// as they arrive, and returns the aggregated content.
func (e *Engine) streamLead(ctx context.Context, lead, stage, rendered, patternName string, out chan<- StreamUpdate) string {
	ch, err := e.fallback.StreamGenerate(ctx, lead, rendered, engine.GenerateOptions{Stage: stage})
	if err != nil {
		return ""
	}

	var content string
	for chunk := range ch {
		if chunk.Err != nil {
			break
		}
		if chunk.Content != "" {
			content += chunk.Content
			select {
			case out <- StreamUpdate{Model: lead, Stage: stage, Content: chunk.Content, Pattern: patternName}:
			case <-ctx.Done():
				return content
			}
		}
		if chunk.Done {
			break
		}
	}
	return content
}

func percent(stageIndex, totalStages int) int {
	if totalStages <= 0 {
		return 100
	}
	return stageIndex * 100 / totalStages
}
