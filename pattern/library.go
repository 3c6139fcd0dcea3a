// Package pattern implements the Pattern Library (spec §4.7): the static
// set of named multi-stage prompt templates the Orchestrator composes
// adapters against, plus the StageContext builder that feeds each stage's
// template (spec §3).
package pattern

import (
	"sort"
	"strings"

	"github.com/nth-layer/orchestra/engine"
)

// Library holds every registered Pattern, keyed by name.
type Library struct {
	patterns map[string]engine.Pattern
}

// NewLibrary returns a Library seeded with the four canonical patterns from
// spec §4.7. Extra patterns may be added with Register.
func NewLibrary() *Library {
	l := &Library{patterns: make(map[string]engine.Pattern)}
	for _, p := range canonicalPatterns() {
		// Canonical patterns are known-good; a panic here would be a
		// programming error in this file, not a runtime condition.
		if err := l.Register(p); err != nil {
			panic(err)
		}
	}
	return l
}

// Register adds or replaces a pattern, failing at load time (per spec §4.7)
// if it declares a stage with no template.
func (l *Library) Register(p engine.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.patterns[p.Name] = p
	return nil
}

// Get returns the named pattern.
func (l *Library) Get(name string) (engine.Pattern, bool) {
	p, ok := l.patterns[name]
	return p, ok
}

// Names returns every registered pattern name, alphabetically.
func (l *Library) Names() []string {
	out := make([]string, 0, len(l.patterns))
	for n := range l.patterns {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

const initialTemplate = "${original_prompt}"

const metaTemplate = `You previously answered: ${own_response}

Other models answered:
${other_responses}

Original question: ${original_prompt}

Critique and, if warranted, refine your answer in light of the other models' responses.`

const hyperTemplate = `Original question: ${original_prompt}

Round one answers:
${initial_responses}

Round two (critique) answers:
${meta_responses}

Reconcile the divergent answers above into a single, better answer.`

const ultraTemplate = `Original question: ${original_prompt}

Initial answers:
${initial_responses}

Meta-stage comparison:
${meta_responses}

Synthesize the strongest possible final answer, drawing on the best of every model's contribution above.`

func canonicalPatterns() []engine.Pattern {
	return []engine.Pattern{
		{
			Name:      "gut",
			Stages:    []string{"initial"},
			Templates: map[string]string{"initial": initialTemplate},
		},
		{
			Name:      "confidence",
			Stages:    []string{"initial", "meta"},
			Templates: map[string]string{"initial": initialTemplate, "meta": metaTemplate},
		},
		{
			Name:   "perspective",
			Stages: []string{"initial", "meta", "hyper"},
			Templates: map[string]string{
				"initial": initialTemplate,
				"meta":    metaTemplate,
				"hyper":   hyperTemplate,
			},
		},
		{
			Name:   "comparative",
			Stages: []string{"initial", "meta", "ultra"},
			Templates: map[string]string{
				"initial": initialTemplate,
				"meta":    metaTemplate,
				"ultra":   ultraTemplate,
			},
		},
	}
}

// Render substitutes every ${var} placeholder in tmpl with ctx's value for
// var, leaving unknown placeholders as an empty string (a template
// referencing a stage that produced zero successful responses degrades to
// an empty substitution rather than failing, per spec §4.9 step 5).
func Render(tmpl string, ctx engine.StageContext) string {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "${")
		if start == -1 {
			b.WriteString(tmpl[i:])
			break
		}
		start += i
		b.WriteString(tmpl[i:start])

		end := strings.Index(tmpl[start:], "}")
		if end == -1 {
			b.WriteString(tmpl[start:])
			break
		}
		end += start

		key := tmpl[start+2 : end]
		b.WriteString(ctx[key])
		i = end + 1
	}
	return b.String()
}
