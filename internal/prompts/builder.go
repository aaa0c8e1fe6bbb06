// Package prompts assembles the prompt text for every generation phase. All
// wording lives here; the phases only supply data.
package prompts

import (
	"fmt"
	"strings"

	"github.com/supportbot/internal/config"
	"github.com/supportbot/internal/conversation"
	"github.com/supportbot/internal/tracker"
)

// PromptBuilder provides methods for building the per-phase prompts
type PromptBuilder struct{}

// NewPromptBuilder creates a new prompt builder instance
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildClassificationPrompt generates the classification prompt for the
// current turn. Only the issue body and the current turn are included; prior
// bot comments never feed back into the model.
func (pb *PromptBuilder) BuildClassificationPrompt(issue *tracker.Issue, currentTurn string, rules *config.TriageRules) string {
	var b strings.Builder
	b.WriteString(ClassificationInstructions)
	b.WriteString("\n\n")
	pb.addCategories(&b, rules)
	pb.addIssue(&b, issue)
	if currentTurn != "" && currentTurn != issue.Body {
		b.WriteString("# Current Message\n\n")
		b.WriteString(currentTurn)
		b.WriteString("\n\n")
	}
	return b.String()
}

// BuildEvidencePrompt generates the evidence synthesis prompt from raw lookup
// results.
func (pb *PromptBuilder) BuildEvidencePrompt(issue *tracker.Issue, category string, lookups []LookupResult) string {
	var b strings.Builder
	b.WriteString(EvidenceInstructions)
	b.WriteString("\n\n")
	pb.addIssue(&b, issue)
	b.WriteString(fmt.Sprintf("Category: %s\n\n", category))
	b.WriteString("# Lookup Results\n\n")
	for _, l := range lookups {
		b.WriteString(fmt.Sprintf("## %s\n", l.Source))
		if l.Err != "" {
			b.WriteString(fmt.Sprintf("lookup failed: %s\n\n", l.Err))
			continue
		}
		b.WriteString(l.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// LookupResult is one raw evidence lookup handed to the model.
type LookupResult struct {
	Source  string
	Content string
	Err     string
}

// BuildFollowUpPrompt generates the prompt for a follow-up question comment.
func (pb *PromptBuilder) BuildFollowUpPrompt(username string, missing, alreadyAsked []string) string {
	var b strings.Builder
	b.WriteString(FollowUpInstructions)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("User: @%s\n", username))
	b.WriteString(fmt.Sprintf("Missing fields: %s\n", strings.Join(missing, ", ")))
	if len(alreadyAsked) > 0 {
		b.WriteString(fmt.Sprintf("Fields already asked, do not repeat: %s\n", strings.Join(alreadyAsked, ", ")))
	}
	return b.String()
}

// BuildBriefPrompt generates the prompt for the final triage brief.
func (pb *PromptBuilder) BuildBriefPrompt(issue *tracker.Issue, state *conversation.ConversationState) string {
	var b strings.Builder
	b.WriteString(BriefInstructions)
	b.WriteString("\n\n")
	pb.addIssue(&b, issue)
	b.WriteString(fmt.Sprintf("Category: %s\n", state.Category))
	b.WriteString(fmt.Sprintf("Completeness: %d/10\n\n", state.CompletenessScore))
	pb.addFindings(&b, state.SharedFindings)
	return b.String()
}

// BuildCritiquePrompt generates the critique prompt for a draft artifact.
func (pb *PromptBuilder) BuildCritiquePrompt(phase, task, draft string) string {
	var b strings.Builder
	b.WriteString(CritiqueInstructions)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Phase: %s\n\n# Task\n\n%s\n\n# Draft\n\n%s\n", phase, task, draft))
	return b.String()
}

// BuildRefinePrompt generates the refinement prompt from a draft and its
// critique.
func (pb *PromptBuilder) BuildRefinePrompt(task, draft, critique string) string {
	var b strings.Builder
	b.WriteString(RefineInstructions)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("# Task\n\n%s\n\n# Draft\n\n%s\n\n# Problems Found\n\n%s\n", task, draft, critique))
	return b.String()
}

func (pb *PromptBuilder) addCategories(b *strings.Builder, rules *config.TriageRules) {
	b.WriteString("# Categories\n\n")
	for _, cat := range rules.Categories {
		b.WriteString(fmt.Sprintf("- %s: checklist %s\n", cat.Name, strings.Join(cat.Checklist, ", ")))
	}
	b.WriteString("\n")
}

func (pb *PromptBuilder) addIssue(b *strings.Builder, issue *tracker.Issue) {
	b.WriteString(fmt.Sprintf("# Issue #%d: %s\n\n", issue.Number, issue.Title))
	b.WriteString(fmt.Sprintf("Reported by: @%s\n\n", issue.User.Login))
	b.WriteString(issue.Body)
	b.WriteString("\n\n")
}

func (pb *PromptBuilder) addFindings(b *strings.Builder, findings []conversation.SharedFinding) {
	if len(findings) == 0 {
		return
	}
	b.WriteString("# Evidence Findings\n\n")
	for _, f := range findings {
		if f.Failed {
			b.WriteString(fmt.Sprintf("- [%s] lookup failed: %s\n", f.Source, f.Finding))
			continue
		}
		b.WriteString(fmt.Sprintf("- [%s] (%s) %s\n", f.Source, f.Verdict, f.Finding))
	}
	b.WriteString("\n")
}
