package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/conversation"
)

// Decision is the single terminal route chosen for the acting participant
// after the generative phases complete. Exactly one path is taken per event,
// which guarantees at most one reply is posted.
type Decision string

const (
	DecisionAskFollowUp  Decision = "ask_follow_up"
	DecisionFinalize     Decision = "finalize"
	DecisionEscalate     Decision = "escalate"
	DecisionContinueLoop Decision = "continue_loop"
)

// Assessment is the sufficiency verdict produced by the generative phases.
type Assessment struct {
	MissingFields   []string
	CollectedFields map[string]string
	IsActionable    bool
	Completeness    int // 0..10
}

// Input bundles everything the decision needs for one participant.
type Input struct {
	Conversation *conversation.UserConversation
	Assessment   Assessment

	// ForcedEscalation is set when guardrails already exhausted the loop cap.
	ForcedEscalation bool
}

// Orchestrator owns per-participant loop control.
type Orchestrator struct {
	maxUserVisibleLoops int
}

func New(maxUserVisibleLoops int) *Orchestrator {
	if maxUserVisibleLoops == 0 {
		maxUserVisibleLoops = 3
	}
	return &Orchestrator{maxUserVisibleLoops: maxUserVisibleLoops}
}

// Decide evaluates the mutually exclusive decision priority for one
// participant after a generative pass.
func (o *Orchestrator) Decide(in Input) Decision {
	uc := in.Conversation

	if in.ForcedEscalation {
		return DecisionEscalate
	}

	if len(in.Assessment.MissingFields) > 0 && uc.LoopCount < o.maxUserVisibleLoops {
		return DecisionAskFollowUp
	}

	if in.Assessment.IsActionable {
		return DecisionFinalize
	}

	if uc.LoopCount >= o.maxUserVisibleLoops {
		return DecisionEscalate
	}

	// Nothing missing to ask about, not yet actionable, loops remain: try a
	// second internal pass for this event without replying to the user yet.
	return DecisionContinueLoop
}

// RecordLoop increments the participant's loop count for this event. The
// count moves by exactly 1 per processed event: internal loop-backs within
// the same event must not call this again, which the alreadyCounted flag
// owned by the caller enforces.
func (o *Orchestrator) RecordLoop(uc *conversation.UserConversation, alreadyCounted bool) bool {
	if alreadyCounted {
		return false
	}
	uc.LoopCount++
	log.Debug().Str("user", uc.Username).Int("loop_count", uc.LoopCount).Msg("Recorded triage loop")
	return true
}

// BuildEscalationSummary composes the human-handoff summary of collected and
// missing fields. It degrades to "no data" for every absent section rather
// than failing.
func BuildEscalationSummary(st *conversation.ConversationState, a Assessment) string {
	var b strings.Builder

	b.WriteString("## Escalation summary\n\n")
	b.WriteString("Automated triage could not resolve this ticket; handing off for human review.\n\n")

	b.WriteString("**Category:** ")
	if st != nil && st.Category != "" {
		b.WriteString(st.Category)
	} else {
		b.WriteString("no data")
	}
	b.WriteString("\n\n")

	b.WriteString("**Collected fields:**\n")
	if len(a.CollectedFields) == 0 {
		b.WriteString("- no data\n")
	} else {
		for _, field := range sortedKeys(a.CollectedFields) {
			fmt.Fprintf(&b, "- %s: %s\n", field, a.CollectedFields[field])
		}
	}
	b.WriteString("\n")

	b.WriteString("**Missing fields:**\n")
	if len(a.MissingFields) == 0 {
		b.WriteString("- no data\n")
	} else {
		for _, field := range a.MissingFields {
			fmt.Fprintf(&b, "- %s\n", field)
		}
	}
	b.WriteString("\n")

	b.WriteString("**Shared findings:**\n")
	if st == nil || len(st.SharedFindings) == 0 {
		b.WriteString("- no data\n")
	} else {
		for _, f := range st.SharedFindings {
			fmt.Fprintf(&b, "- [%s] %s (via %s)\n", f.Category, f.Finding, f.DiscoveredBy)
		}
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
