// Package phases holds the three generative phases of a triage pass:
// classification, evidence and user-facing text. Each phase runs through the
// quality gate, so a weak draft gets exactly one critique-driven refinement.
package phases

import (
	"context"
	"encoding/json"

	"github.com/supportbot/internal/agent"
	"github.com/supportbot/internal/config"
	"github.com/supportbot/internal/critique"
	"github.com/supportbot/internal/prompts"
)

// Thresholds are the per-phase minimum critique scores.
type Thresholds struct {
	Classification int
	Evidence       int
	Response       int
}

// DefaultThresholds returns the documented per-phase minimums.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Classification: critique.ClassificationThreshold,
		Evidence:       critique.EvidenceThreshold,
		Response:       critique.ResponseThreshold,
	}
}

// Phases executes the generative phases against one agent.
type Phases struct {
	agent      agent.Agent
	builder    *prompts.PromptBuilder
	rules      *config.TriageRules
	thresholds Thresholds
}

// New creates the phase runner.
func New(a agent.Agent, rules *config.TriageRules, thresholds Thresholds) *Phases {
	return &Phases{
		agent:      a,
		builder:    prompts.NewPromptBuilder(),
		rules:      rules,
		thresholds: thresholds,
	}
}

// Rule exposes the rulebook entry for a category to the pipeline.
func (p *Phases) Rule(category string) (*config.CategoryRule, bool) {
	return p.rules.Category(category)
}

// critiqueFn builds the shared critique step for a phase: the candidate is
// marshaled and scored by the critic role.
func critiqueFn[T any](p *Phases, phase, task string) func(ctx context.Context, candidate T) (critique.Result, error) {
	return func(ctx context.Context, candidate T) (critique.Result, error) {
		draft, err := json.Marshal(candidate)
		if err != nil {
			return critique.Result{}, err
		}

		var result critique.Result
		_, err = p.agent.GenerateStructured(ctx, agent.Request{
			Phase:  phase + "_critique",
			System: prompts.CriticRole,
			User:   p.builder.BuildCritiquePrompt(phase, task, string(draft)),
			Schema: prompts.CritiqueSchema,
		}, &result)
		return result, err
	}
}

// refineFn builds the shared refinement step for a phase.
func refineFn[T any](p *Phases, phase, task, system, schema string) func(ctx context.Context, candidate T, result critique.Result) (T, error) {
	return func(ctx context.Context, candidate T, result critique.Result) (T, error) {
		var zero T
		draft, err := json.Marshal(candidate)
		if err != nil {
			return zero, err
		}
		critiqueText, err := json.Marshal(result)
		if err != nil {
			return zero, err
		}

		var refined T
		_, err = p.agent.GenerateStructured(ctx, agent.Request{
			Phase:  phase + "_refine",
			System: system,
			User:   p.builder.BuildRefinePrompt(task, string(draft), string(critiqueText)),
			Schema: schema,
		}, &refined)
		if err != nil {
			return zero, err
		}
		return refined, nil
	}
}
