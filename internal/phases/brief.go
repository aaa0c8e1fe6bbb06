package phases

import (
	"context"
	"fmt"

	"github.com/supportbot/internal/agent"
	"github.com/supportbot/internal/conversation"
	"github.com/supportbot/internal/critique"
	"github.com/supportbot/internal/prompts"
	"github.com/supportbot/internal/tracker"
)

// UserText is the user-facing text artifact of the response phase.
type UserText struct {
	Body string `json:"body"`
}

// FollowUp drafts the quality-gated follow-up question comment for one user.
func (p *Phases) FollowUp(ctx context.Context, username string, missing, alreadyAsked []string) (UserText, critique.Outcome, error) {
	task := fmt.Sprintf("ask @%s for the missing triage fields", username)
	user := p.builder.BuildFollowUpPrompt(username, missing, alreadyAsked)
	return p.runResponse(ctx, task, user)
}

// Brief drafts the quality-gated final triage brief.
func (p *Phases) Brief(ctx context.Context, issue *tracker.Issue, state *conversation.ConversationState) (UserText, critique.Outcome, error) {
	task := "write the final triage brief for the engineer taking over"
	user := p.builder.BuildBriefPrompt(issue, state)
	return p.runResponse(ctx, task, user)
}

func (p *Phases) runResponse(ctx context.Context, task, user string) (UserText, critique.Outcome, error) {
	return critique.Run(ctx, critique.Spec[UserText]{
		Phase:     "response",
		Threshold: p.thresholds.Response,
		Generate: func(ctx context.Context) (UserText, error) {
			var t UserText
			_, err := p.agent.GenerateStructured(ctx, agent.Request{
				Phase:  "response",
				System: prompts.BriefWriterRole,
				User:   user,
				Schema: prompts.BriefSchema,
			}, &t)
			return t, err
		},
		Critique: critiqueFn[UserText](p, "response", task),
		Refine:   refineFn[UserText](p, "response", task, prompts.BriefWriterRole, prompts.BriefSchema),
	})
}

// StopAck is the fixed acknowledgement posted when a user issues /stop.
// It is deterministic text, never model output.
func StopAck(username string) string {
	return fmt.Sprintf("Understood @%s, I'll stop asking you follow-up questions on this issue. A support engineer will take it from here.", username)
}
