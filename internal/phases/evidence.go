package phases

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/agent"
	"github.com/supportbot/internal/conversation"
	"github.com/supportbot/internal/critique"
	"github.com/supportbot/internal/prompts"
	"github.com/supportbot/internal/tracker"
)

// Gatherer is the slice of the tracker API the evidence phase uses.
type Gatherer interface {
	SearchIssues(ctx context.Context, query string) (*tracker.SearchResult, error)
	GetFileContent(ctx context.Context, path string) (string, error)
}

// EvidenceReport is the structured result of the evidence phase.
type EvidenceReport struct {
	Findings []Finding `json:"findings"`
}

// Finding is one piece of evidence with its source and verdict.
type Finding struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
	Verdict string `json:"verdict"` // supporting, refuting or neutral
}

// pathRe matches file-looking tokens in issue text, e.g. docs/setup.md.
var pathRe = regexp.MustCompile(`[\w./-]+\.(?:md|log|txt|yaml|yml|toml|json|conf)`)

const maxFileLookups = 2

// GatherEvidence runs the lookups and the quality-gated synthesis, and
// appends the resulting findings to the shared state. A failed lookup is never
// fatal; it becomes a failed finding and the synthesis sees the failure.
func (p *Phases) GatherEvidence(ctx context.Context, g Gatherer, issue *tracker.Issue, category, actor string, state *conversation.ConversationState, now time.Time) error {
	lookups := p.runLookups(ctx, g, issue)

	for _, l := range lookups {
		if l.Err != "" {
			state.AddFinding(conversation.SharedFinding{
				DiscoveredBy: actor,
				DiscoveredAt: now,
				Category:     category,
				Source:       l.Source,
				Finding:      l.Err,
				Failed:       true,
			})
		}
	}

	task := "summarize what the lookup results show about the reported problem"
	user := p.builder.BuildEvidencePrompt(issue, category, lookups)

	report, _, err := critique.Run(ctx, critique.Spec[EvidenceReport]{
		Phase:     "evidence",
		Threshold: p.thresholds.Evidence,
		Generate: func(ctx context.Context) (EvidenceReport, error) {
			var r EvidenceReport
			_, err := p.agent.GenerateStructured(ctx, agent.Request{
				Phase:  "evidence",
				System: prompts.InvestigatorRole,
				User:   user,
				Schema: prompts.EvidenceSchema,
			}, &r)
			return r, err
		},
		Critique: critiqueFn[EvidenceReport](p, "evidence", task),
		Refine:   refineFn[EvidenceReport](p, "evidence", task, prompts.InvestigatorRole, prompts.EvidenceSchema),
	})
	if err != nil {
		return fmt.Errorf("evidence synthesis failed: %w", err)
	}

	for _, f := range report.Findings {
		state.AddFinding(conversation.SharedFinding{
			DiscoveredBy: actor,
			DiscoveredAt: now,
			Category:     category,
			Source:       f.Source,
			Finding:      f.Summary,
			Verdict:      f.Verdict,
		})
	}
	return nil
}

// runLookups performs the issue search and up to two file fetches for paths
// mentioned in the issue body.
func (p *Phases) runLookups(ctx context.Context, g Gatherer, issue *tracker.Issue) []prompts.LookupResult {
	var lookups []prompts.LookupResult

	search, err := g.SearchIssues(ctx, issue.Title)
	if err != nil {
		log.Debug().Err(err).Msg("Issue search failed")
		lookups = append(lookups, prompts.LookupResult{Source: "issue search", Err: err.Error()})
	} else {
		lookups = append(lookups, prompts.LookupResult{
			Source:  "issue search",
			Content: formatSearchResult(issue.Number, search),
		})
	}

	for _, path := range pathRe.FindAllString(issue.Body, -1) {
		if len(lookups) > maxFileLookups {
			break
		}
		content, err := g.GetFileContent(ctx, path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("File lookup failed")
			lookups = append(lookups, prompts.LookupResult{Source: path, Err: err.Error()})
			continue
		}
		lookups = append(lookups, prompts.LookupResult{Source: path, Content: truncate(content, 4000)})
	}
	return lookups
}

func formatSearchResult(selfNumber int, result *tracker.SearchResult) string {
	if result.TotalCount == 0 {
		return "no similar issues found"
	}
	out := ""
	for _, item := range result.Items {
		if item.Number == selfNumber {
			continue
		}
		out += fmt.Sprintf("issue #%d [%s]: %s\n", item.Number, item.State, item.Title)
	}
	if out == "" {
		return "no similar issues found"
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
