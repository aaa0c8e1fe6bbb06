package critique

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Result is the structured output of a critique call against a candidate
// artifact from one generative phase.
type Result struct {
	Score       int      `json:"score"` // 1..10
	Reasoning   string   `json:"reasoning"`
	Issues      []Issue  `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	IsPassable  bool     `json:"is_passable"`
}

// Issue is one concrete problem the critic found.
type Issue struct {
	Category   string `json:"category"`
	Problem    string `json:"problem"`
	Suggestion string `json:"suggestion"`
	Severity   int    `json:"severity"` // 1..5
}

// Documented score thresholds per phase: a candidate scoring at or above its
// threshold is accepted without refinement.
const (
	ClassificationThreshold = 6
	EvidenceThreshold       = 5
	ResponseThreshold       = 7
)

// Spec wires one generative phase through the quality gate.
type Spec[T any] struct {
	Phase     string
	Threshold int
	Generate  func(ctx context.Context) (T, error)
	Critique  func(ctx context.Context, candidate T) (Result, error)
	Refine    func(ctx context.Context, candidate T, critique Result) (T, error)
}

// Outcome reports what the gate did for one pass.
type Outcome struct {
	Critique *Result
	Refined  bool
}

// Run executes one quality-gated pass: generate a candidate, critique it, and
// if the score falls below the phase threshold perform exactly one refinement,
// accepting the refined result unconditionally. A failing critique call is
// caught and logged and the uncritiqued candidate is used as-is; only the
// initial generation can fail the pass.
func Run[T any](ctx context.Context, spec Spec[T]) (T, Outcome, error) {
	var zero T

	candidate, err := spec.Generate(ctx)
	if err != nil {
		return zero, Outcome{}, fmt.Errorf("%s phase failed: %w", spec.Phase, err)
	}

	result, err := spec.Critique(ctx, candidate)
	if err != nil {
		// A critique-path failure must never abort the pipeline.
		log.Warn().Err(err).Str("phase", spec.Phase).Msg("Critique failed, accepting uncritiqued candidate")
		return candidate, Outcome{}, nil
	}

	outcome := Outcome{Critique: &result}
	if result.Score >= spec.Threshold {
		return candidate, outcome, nil
	}

	log.Debug().
		Str("phase", spec.Phase).
		Int("score", result.Score).
		Int("threshold", spec.Threshold).
		Msg("Candidate below threshold, refining once")

	refined, err := spec.Refine(ctx, candidate, result)
	if err != nil {
		// Refinement is best-effort: fall back to the original candidate.
		log.Warn().Err(err).Str("phase", spec.Phase).Msg("Refinement failed, keeping original candidate")
		return candidate, outcome, nil
	}

	// The refined result is accepted unconditionally: no second critique
	// round within the same pass, which caps worst-case latency and cost.
	outcome.Refined = true
	return refined, outcome, nil
}
