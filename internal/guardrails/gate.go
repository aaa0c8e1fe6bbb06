package guardrails

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/conversation"
)

// EventKind distinguishes the two external triggers.
type EventKind string

const (
	EventIssueOpened    EventKind = "issue_opened"
	EventCommentCreated EventKind = "comment_created"
)

// Event is one inbound trigger: a freshly opened ticket or a new comment.
type Event struct {
	Kind        EventKind
	Repo        string
	IssueNumber int
	IssueAuthor string
	Author      string // comment author; equals IssueAuthor for issue events
	Body        string // the current turn's own text only
	CommentID   int64
	CreatedAt   time.Time
}

// StopReason names why the gate halted processing. Guardrail stops are policy
// outcomes, not errors, and most are silent (no reply posted).
type StopReason string

const (
	StopNone          StopReason = ""
	StopSelfComment   StopReason = "self_comment"
	StopNotAllowed    StopReason = "not_allowed"
	StopOffTopicBlock StopReason = "off_topic_blocked"
	StopCommand       StopReason = "stop_command"
	StopFinalized     StopReason = "finalized"
)

// Outcome is the gate's decision for one event. All stops are expressed as
// flags consumed downstream; the gate never returns an error for policy.
type Outcome struct {
	ShouldStop     bool
	StopReason     StopReason
	Actor          string
	Commands       conversation.CommandInfo
	ShouldEscalate bool // loop cap reached: skip generative phases, escalate
	OverridePass   bool // finalized user granted one more pass via disagreement
	PostStopAck    bool // acknowledge a /stop command with a short reply
}

// Config carries the policy knobs. The bot identity is a single explicitly
// configured value; it is never derived from the event's triggering-actor
// field, which equals whichever human just acted.
type Config struct {
	BotIdentity         string
	MaxLoops            int // hard cap, one beyond the user-visible loops
	MaxUserVisibleLoops int
}

// DefaultConfig returns the documented policy defaults.
func DefaultConfig(botIdentity string) Config {
	return Config{
		BotIdentity:         botIdentity,
		MaxLoops:            4,
		MaxUserVisibleLoops: 3,
	}
}

// Gate applies the ordered guardrail rules to each inbound event.
type Gate struct {
	cfg Config
}

func New(cfg Config) *Gate {
	if cfg.MaxLoops == 0 {
		cfg.MaxLoops = 4
	}
	if cfg.MaxUserVisibleLoops == 0 {
		cfg.MaxUserVisibleLoops = 3
	}
	return &Gate{cfg: cfg}
}

var (
	stopCmdRe     = regexp.MustCompile(`(?mi)(^|\s)/stop(\s|$)`)
	diagnoseCmdRe = regexp.MustCompile(`(?mi)(^|\s)/diagnose(\s|$)`)
)

// ParseCommands extracts slash commands from the current event's own text.
// It must never be fed concatenated historical text: a "/stop" quoted inside
// an earlier bot reply would otherwise be misdetected as a fresh command.
func ParseCommands(text string) conversation.CommandInfo {
	return conversation.CommandInfo{
		HasStopCommand:     stopCmdRe.MatchString(text),
		HasDiagnoseCommand: diagnoseCmdRe.MatchString(text),
	}
}

// disagreementPhrases is the free-text heuristic for a finalized participant
// pushing back on the brief. Approximate by nature; the contract is only that
// a match grants exactly one more processing pass.
var disagreementPhrases = []string{
	"didn't work",
	"didnt work",
	"did not work",
	"doesn't work",
	"does not work",
	"not working",
	"already tried",
	"still broken",
	"still failing",
	"still happening",
	"disagree",
	"that's wrong",
	"thats wrong",
	"incorrect",
	"didn't help",
	"didn't fix",
}

// DetectDisagreement reports whether text pushes back on a finalized brief.
func DetectDisagreement(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range disagreementPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Evaluate runs the ordered guardrail rules; the first matching rule
// short-circuits the rest. It identifies the acting participant, extracts
// commands from the current turn only, and updates policy flags on state.
func (g *Gate) Evaluate(event Event, st *conversation.ConversationState) Outcome {
	// Rule 1: the bot's own prior output must never be treated as user input.
	if event.Kind == EventCommentCreated && strings.EqualFold(event.Author, g.cfg.BotIdentity) {
		log.Debug().Str("author", event.Author).Msg("Suppressing self-comment")
		return Outcome{ShouldStop: true, StopReason: StopSelfComment}
	}

	// Rule 2: acting participant resolution.
	actor := event.Author
	if event.Kind == EventIssueOpened {
		actor = event.IssueAuthor
	}

	// Rule 3: commands come from the current turn's own text only.
	commands := ParseCommands(event.Body)

	out := Outcome{Actor: actor, Commands: commands}

	// Rule 4: allow-list — issue author, tracked participants, and anyone
	// joining via an explicit /diagnose. Everyone else is silently ignored.
	if event.Kind == EventCommentCreated && !st.IsAllowed(actor) {
		if !commands.HasDiagnoseCommand {
			log.Debug().Str("actor", actor).Msg("Commenter not on allow-list, silent stop")
			out.ShouldStop = true
			out.StopReason = StopNotAllowed
			return out
		}
		st.EnsureConversation(actor, event.CreatedAt)
		log.Info().Str("actor", actor).Msg("Participant joined via /diagnose")
	}

	uc := st.EnsureConversation(actor, event.CreatedAt)

	// Rule 5: off-topic block is permanent for the ticket's lifetime.
	if uc.IsOffTopicBlocked || uc.OffTopicStrikes >= 2 {
		out.ShouldStop = true
		out.StopReason = StopOffTopicBlock
		return out
	}

	// Rule 6: /stop finalizes this participant's conversation. Terminal, but
	// acknowledged; other participants are unaffected.
	if commands.HasStopCommand {
		uc.Finalize(event.CreatedAt)
		st.Touch(actor, event.CreatedAt)
		out.ShouldStop = true
		out.StopReason = StopCommand
		out.PostStopAck = true
		return out
	}

	// Rule 7: finalized conversations are immutable, except that detected
	// disagreement grants exactly one more pass.
	if uc.IsFinalized {
		if DetectDisagreement(event.Body) {
			log.Info().Str("actor", actor).Msg("Disagreement override, permitting one more pass")
			out.OverridePass = true
		} else {
			out.ShouldStop = true
			out.StopReason = StopFinalized
			return out
		}
	}

	// Rule 8: loop cap. Forward progress through the generative phases ends;
	// the orchestrator turns this into an escalation.
	if uc.LoopCount >= g.cfg.MaxLoops {
		uc.IsExhausted = true
		out.ShouldEscalate = true
		return out
	}

	return out
}
