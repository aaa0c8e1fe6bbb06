package phases

import (
	"context"

	"github.com/supportbot/internal/agent"
	"github.com/supportbot/internal/critique"
	"github.com/supportbot/internal/prompts"
	"github.com/supportbot/internal/tracker"
)

// Classification is the structured result of the classification phase.
type Classification struct {
	Category        string            `json:"category"`
	CollectedFields map[string]string `json:"collected_fields,omitempty"`
	MissingFields   []string          `json:"missing_fields,omitempty"`
	OnTopic         bool              `json:"on_topic"`
	Completeness    int               `json:"completeness"`
	Reasoning       string            `json:"reasoning,omitempty"`
}

// Classify runs the quality-gated classification phase over the issue and the
// current turn's text.
func (p *Phases) Classify(ctx context.Context, issue *tracker.Issue, currentTurn string) (Classification, critique.Outcome, error) {
	task := "classify the support issue and extract its checklist fields"
	user := p.builder.BuildClassificationPrompt(issue, currentTurn, p.rules)

	result, outcome, err := critique.Run(ctx, critique.Spec[Classification]{
		Phase:     "classification",
		Threshold: p.thresholds.Classification,
		Generate: func(ctx context.Context) (Classification, error) {
			var c Classification
			_, err := p.agent.GenerateStructured(ctx, agent.Request{
				Phase:  "classification",
				System: prompts.ClassifierRole,
				User:   user,
				Schema: prompts.ClassificationSchema,
			}, &c)
			return c, err
		},
		Critique: critiqueFn[Classification](p, "classification", task),
		Refine:   refineFn[Classification](p, "classification", task, prompts.ClassifierRole, prompts.ClassificationSchema),
	})
	if err != nil {
		return Classification{}, outcome, err
	}

	p.normalize(&result)
	return result, outcome, nil
}

// normalize reconciles the model's answer with the rulebook: unknown
// categories fall back to the default, missing fields are recomputed from the
// checklist, and completeness is clamped to 1..10.
func (p *Phases) normalize(c *Classification) {
	rule, ok := p.rules.Category(c.Category)
	if !ok {
		return
	}
	c.Category = rule.Name

	var missing []string
	for _, field := range rule.Checklist {
		if v, ok := c.CollectedFields[field]; !ok || v == "" {
			missing = append(missing, field)
		}
	}
	c.MissingFields = missing

	if c.Completeness < 1 {
		c.Completeness = 1
	}
	if c.Completeness > 10 {
		c.Completeness = 10
	}
}

// IsActionable reports whether the classification leaves nothing to ask for.
func (c *Classification) IsActionable() bool {
	return len(c.MissingFields) == 0
}
