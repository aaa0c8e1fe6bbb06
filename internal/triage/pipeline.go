// Package triage wires the guardrail gate, the generative phases and the
// orchestrator into the per-event workflow. One external event produces at
// most one posted reply, with the updated session state carried inside it.
package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/conversation"
	"github.com/supportbot/internal/guardrails"
	"github.com/supportbot/internal/logging"
	"github.com/supportbot/internal/orchestrator"
	"github.com/supportbot/internal/phases"
	"github.com/supportbot/internal/state"
	"github.com/supportbot/internal/tracker"
	"github.com/supportbot/internal/workflow"
)

// TrackerAPI is the slice of the tracker client the pipeline needs.
type TrackerAPI interface {
	GetIssue(ctx context.Context, number int) (*tracker.Issue, error)
	GetComments(ctx context.Context, number int) ([]tracker.Comment, error)
	PostComment(ctx context.Context, number int, body string) (int64, error)
	UpdateComment(ctx context.Context, commentID int64, body string) error
	AddLabels(ctx context.Context, number int, labels []string) error
	AddAssignees(ctx context.Context, number int, assignees []string) error
	phases.Gatherer
}

// Options carries the pipeline policy knobs.
type Options struct {
	BotIdentity   string
	EscalateLabel string
	MaxLoops      int
	VisibleLoops  int
}

// Pipeline processes one tracker event end to end.
type Pipeline struct {
	tracker TrackerAPI
	phases  *phases.Phases
	gate    *guardrails.Gate
	orch    *orchestrator.Orchestrator
	opts    Options
	graph   *workflow.Graph[RunContext]
}

// RunReport summarizes what one event produced.
type RunReport struct {
	Decision   orchestrator.Decision
	StopReason guardrails.StopReason
	Posted     bool
	CommentID  int64
	Escalated  bool
	Conflict   bool
}

// RunContext is the session value threaded through the workflow graph.
type RunContext struct {
	Event    guardrails.Event
	Issue    *tracker.Issue
	Comments []tracker.Comment
	State    *conversation.ConversationState

	Gate           guardrails.Outcome
	Classification phases.Classification
	Decision       orchestrator.Decision

	Reply          string // user-visible reply text, state block excluded
	PersistState   bool   // append the state block when posting
	LoopCounted    bool   // loop count already moved for this event
	EvidenceDone   bool   // evidence already gathered for this event
	InternalPasses int    // continue-loop passes taken for this event
	Escalation     escalationPlan

	Report RunReport
}

type escalationPlan struct {
	Active    bool
	Labels    []string
	Assignees []string
}

// New builds the pipeline and its workflow graph.
func New(t TrackerAPI, p *phases.Phases, opts Options) (*Pipeline, error) {
	if opts.MaxLoops == 0 {
		opts.MaxLoops = 4
	}
	if opts.VisibleLoops == 0 {
		opts.VisibleLoops = 3
	}

	pl := &Pipeline{
		tracker: t,
		phases:  p,
		gate:    guardrails.New(guardrails.Config{BotIdentity: opts.BotIdentity, MaxLoops: opts.MaxLoops, MaxUserVisibleLoops: opts.VisibleLoops}),
		orch:    orchestrator.New(opts.VisibleLoops),
		opts:    opts,
	}

	g := workflow.New[RunContext]("load_thread").
		AddNode("load_thread", pl.loadThread).
		AddNode("load_state", pl.loadState).
		AddNode("guardrails", pl.runGate).
		AddNode("classify", pl.classify).
		AddNode("evidence", pl.evidence).
		AddNode("decide", pl.decide).
		AddNode("ask", pl.ask).
		AddNode("brief", pl.brief).
		AddNode("escalate", pl.escalate).
		AddNode("post", pl.post)

	g.AddEdge("load_thread", "load_state")
	g.AddEdge("load_state", "guardrails")

	g.AddConditionalEdge("guardrails", "post", func(s *RunContext) bool { return s.Gate.PostStopAck })
	g.AddConditionalEdge("guardrails", "escalate", func(s *RunContext) bool { return s.Gate.ShouldEscalate })
	g.AddConditionalEdge("guardrails", "classify", func(s *RunContext) bool { return !s.Gate.ShouldStop })
	// Silent stops fall through with no matching edge and end the run.

	g.AddConditionalEdge("classify", "post", func(s *RunContext) bool { return !s.Classification.OnTopic })
	g.AddEdge("classify", "evidence")
	g.AddEdge("evidence", "decide")

	g.AddConditionalEdge("decide", "classify", func(s *RunContext) bool { return s.Decision == orchestrator.DecisionContinueLoop })
	g.AddConditionalEdge("decide", "ask", func(s *RunContext) bool { return s.Decision == orchestrator.DecisionAskFollowUp })
	g.AddConditionalEdge("decide", "brief", func(s *RunContext) bool { return s.Decision == orchestrator.DecisionFinalize })
	g.AddConditionalEdge("decide", "escalate", func(s *RunContext) bool { return s.Decision == orchestrator.DecisionEscalate })

	g.AddEdge("ask", "post")
	g.AddEdge("brief", "post")
	g.AddEdge("escalate", "post")

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline graph invalid: %w", err)
	}
	pl.graph = g
	return pl, nil
}

// Run processes one event.
func (p *Pipeline) Run(ctx context.Context, event guardrails.Event) (*RunReport, error) {
	session := &RunContext{Event: event}

	if logger := logging.GetCurrentLogger(); logger != nil {
		logger.LogSection(fmt.Sprintf("event %s on issue #%d by %s", event.Kind, event.IssueNumber, event.Author))
	}

	if err := p.graph.Run(ctx, session); err != nil {
		return &session.Report, err
	}

	session.Report.Decision = session.Decision
	session.Report.StopReason = session.Gate.StopReason
	return &session.Report, nil
}

func (p *Pipeline) loadThread(ctx context.Context, s *RunContext) error {
	issue, err := p.tracker.GetIssue(ctx, s.Event.IssueNumber)
	if err != nil {
		return err
	}
	comments, err := p.tracker.GetComments(ctx, s.Event.IssueNumber)
	if err != nil {
		return err
	}
	s.Issue = issue
	s.Comments = comments
	if s.Event.IssueAuthor == "" {
		s.Event.IssueAuthor = issue.User.Login
	}
	if s.Event.Kind == guardrails.EventIssueOpened && s.Event.Body == "" {
		s.Event.Body = issue.Body
	}
	return nil
}

// loadState recovers the session state from the thread, or starts fresh. An
// amended brief can leave the freshest state on an older comment, so decodable
// candidates are compared by their own lastUpdated stamp rather than comment
// id. The newest observed comment id becomes the optimistic-concurrency token
// checked again before posting.
func (p *Pipeline) loadState(ctx context.Context, s *RunContext) error {
	var newest int64
	for _, c := range s.Comments {
		if c.ID > newest {
			newest = c.ID
		}
		if st, ok := state.Decode(c.Body); ok {
			if s.State == nil || !st.LastUpdated.Before(s.State.LastUpdated) {
				s.State = st
				log.Debug().Int64("comment", c.ID).Msg("Recovered session state from comment")
			}
		}
	}
	if s.State == nil {
		s.State = conversation.NewState(s.Issue.User.Login, s.Event.CreatedAt)
		log.Debug().Msg("No prior session state, starting fresh")
	}
	s.State.LastSeenCommentID = newest
	return nil
}

func (p *Pipeline) runGate(ctx context.Context, s *RunContext) error {
	s.Gate = p.gate.Evaluate(s.Event, s.State)
	if s.Gate.PostStopAck {
		s.Reply = phases.StopAck(s.Gate.Actor)
		s.PersistState = true
	}
	if s.Gate.ShouldStop && !s.Gate.PostStopAck {
		log.Info().
			Str("reason", string(s.Gate.StopReason)).
			Str("actor", s.Event.Author).
			Msg("Guardrails stopped event silently")
	}
	return nil
}

func (p *Pipeline) classify(ctx context.Context, s *RunContext) error {
	c, _, err := p.phases.Classify(ctx, s.Issue, s.Event.Body)
	if err != nil {
		return err
	}
	s.Classification = c

	uc := s.State.EnsureConversation(s.Gate.Actor, s.Event.CreatedAt)
	if !c.OnTopic {
		uc.AddOffTopicStrike()
		if uc.IsOffTopicBlocked {
			s.Reply = fmt.Sprintf("@%s this thread needs to stay focused on the reported issue, so I'll stop responding to further comments from you here.", s.Gate.Actor)
		} else {
			s.Reply = fmt.Sprintf("@%s that seems unrelated to this issue. Let's keep this thread focused on the original report.", s.Gate.Actor)
		}
		s.PersistState = true
		s.State.Touch(s.Gate.Actor, s.Event.CreatedAt)
		return nil
	}

	s.State.Category = c.Category
	s.State.IsActionable = c.IsActionable()
	s.State.CompletenessScore = c.Completeness
	return nil
}

func (p *Pipeline) evidence(ctx context.Context, s *RunContext) error {
	if s.EvidenceDone {
		return nil
	}
	err := p.phases.GatherEvidence(ctx, p.tracker, s.Issue, s.Classification.Category, s.Gate.Actor, s.State, s.Event.CreatedAt)
	if err != nil {
		return err
	}
	s.EvidenceDone = true
	return nil
}

func (p *Pipeline) decide(ctx context.Context, s *RunContext) error {
	uc := s.State.EnsureConversation(s.Gate.Actor, s.Event.CreatedAt)

	if p.orch.RecordLoop(uc, s.LoopCounted) {
		s.LoopCounted = true
	}

	s.Decision = p.orch.Decide(orchestrator.Input{
		Conversation: uc,
		Assessment: orchestrator.Assessment{
			MissingFields:   s.Classification.MissingFields,
			CollectedFields: s.Classification.CollectedFields,
			IsActionable:    s.Classification.IsActionable(),
			Completeness:    s.Classification.Completeness,
		},
		ForcedEscalation: s.Gate.ShouldEscalate,
	})

	// At most one internal re-pass per event; a second continue-loop verdict
	// means the phases are not converging, so hand off instead.
	if s.Decision == orchestrator.DecisionContinueLoop {
		if s.InternalPasses >= 1 {
			s.Decision = orchestrator.DecisionEscalate
		} else {
			s.InternalPasses++
		}
	}

	log.Info().
		Str("actor", s.Gate.Actor).
		Str("decision", string(s.Decision)).
		Int("loop_count", uc.LoopCount).
		Msg("Triage decision")
	return nil
}

func (p *Pipeline) ask(ctx context.Context, s *RunContext) error {
	uc := s.State.EnsureConversation(s.Gate.Actor, s.Event.CreatedAt)

	text, _, err := p.phases.FollowUp(ctx, s.Gate.Actor, s.Classification.MissingFields, uc.AskedFields)
	if err != nil {
		return err
	}

	uc.RecordAskedFields(s.Classification.MissingFields)
	s.State.Touch(s.Gate.Actor, s.Event.CreatedAt)
	s.Reply = text.Body
	s.PersistState = true
	return nil
}

func (p *Pipeline) brief(ctx context.Context, s *RunContext) error {
	text, _, err := p.phases.Brief(ctx, s.Issue, s.State)
	if err != nil {
		return err
	}

	uc := s.State.EnsureConversation(s.Gate.Actor, s.Event.CreatedAt)
	uc.Finalize(s.Event.CreatedAt)
	s.State.BriefIterations++
	s.State.Touch(s.Gate.Actor, s.Event.CreatedAt)
	s.Reply = text.Body
	s.PersistState = true
	return nil
}

func (p *Pipeline) escalate(ctx context.Context, s *RunContext) error {
	summary := orchestrator.BuildEscalationSummary(s.State, orchestrator.Assessment{
		MissingFields:   s.Classification.MissingFields,
		CollectedFields: s.Classification.CollectedFields,
		IsActionable:    s.Classification.IsActionable(),
		Completeness:    s.Classification.Completeness,
	})

	uc := s.State.EnsureConversation(s.Gate.Actor, s.Event.CreatedAt)
	uc.IsExhausted = true
	s.State.Touch(s.Gate.Actor, s.Event.CreatedAt)

	s.Decision = orchestrator.DecisionEscalate
	s.Reply = summary
	s.PersistState = true
	s.Escalation.Active = true
	if p.opts.EscalateLabel != "" {
		s.Escalation.Labels = append(s.Escalation.Labels, p.opts.EscalateLabel)
	}
	if rule, ok := p.rulesCategory(s); ok {
		s.Escalation.Assignees = append(s.Escalation.Assignees, rule...)
	}
	return nil
}

// post writes the single reply for this event. Before posting it re-reads the
// thread; a comment that arrived since load refutes the loaded state, so the
// reply is withheld and the ticket is escalated by label instead.
func (p *Pipeline) post(ctx context.Context, s *RunContext) error {
	if conflict, err := p.hasConflict(ctx, s); err != nil {
		return err
	} else if conflict {
		s.Report.Conflict = true
		log.Warn().Int("issue", s.Event.IssueNumber).Msg("Thread changed since state load, withholding reply and escalating")
		if p.opts.EscalateLabel != "" {
			if err := p.tracker.AddLabels(ctx, s.Event.IssueNumber, []string{p.opts.EscalateLabel}); err != nil {
				return err
			}
			s.Report.Escalated = true
		}
		return nil
	}

	// A revised brief amends the original brief comment in place instead of
	// stacking a second brief onto the thread.
	if s.Decision == orchestrator.DecisionFinalize && s.PersistState && s.State.BriefCommentID != nil {
		encoded, err := state.Encode(s.Reply, s.State)
		if err != nil {
			return fmt.Errorf("failed to encode session state: %w", err)
		}
		if err := p.tracker.UpdateComment(ctx, *s.State.BriefCommentID, encoded); err != nil {
			return fmt.Errorf("failed to amend brief: %w", err)
		}
		s.Report.Posted = true
		s.Report.CommentID = *s.State.BriefCommentID
		return p.applyEscalation(ctx, s)
	}

	body := s.Reply
	if s.PersistState {
		encoded, err := state.Encode(body, s.State)
		if err != nil {
			return fmt.Errorf("failed to encode session state: %w", err)
		}
		body = encoded
	}

	id, err := p.tracker.PostComment(ctx, s.Event.IssueNumber, body)
	if err != nil {
		return fmt.Errorf("failed to post reply: %w", err)
	}
	s.Report.Posted = true
	s.Report.CommentID = id

	// A fresh brief records its own comment id in the persisted state so a
	// later revision can amend it. Dry-run posts have no id to record.
	if s.Decision == orchestrator.DecisionFinalize && s.PersistState && id != 0 {
		s.State.BriefCommentID = &id
		encoded, err := state.Encode(s.Reply, s.State)
		if err != nil {
			return fmt.Errorf("failed to encode session state: %w", err)
		}
		if err := p.tracker.UpdateComment(ctx, id, encoded); err != nil {
			return fmt.Errorf("failed to record brief id: %w", err)
		}
	}

	return p.applyEscalation(ctx, s)
}

func (p *Pipeline) applyEscalation(ctx context.Context, s *RunContext) error {
	if s.Escalation.Active {
		if err := p.tracker.AddLabels(ctx, s.Event.IssueNumber, s.Escalation.Labels); err != nil {
			return err
		}
		if err := p.tracker.AddAssignees(ctx, s.Event.IssueNumber, s.Escalation.Assignees); err != nil {
			return err
		}
		s.Report.Escalated = true
	}
	return nil
}

// hasConflict re-reads the thread and reports whether a non-bot comment newer
// than the loaded optimistic-concurrency token appeared.
func (p *Pipeline) hasConflict(ctx context.Context, s *RunContext) (bool, error) {
	comments, err := p.tracker.GetComments(ctx, s.Event.IssueNumber)
	if err != nil {
		return false, fmt.Errorf("conflict check failed: %w", err)
	}
	for _, c := range comments {
		if c.ID > s.State.LastSeenCommentID && c.ID != s.Event.CommentID && !strings.EqualFold(c.User.Login, p.opts.BotIdentity) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) rulesCategory(s *RunContext) ([]string, bool) {
	rule, ok := p.phases.Rule(s.Classification.Category)
	if !ok || len(rule.EscalateTo) == 0 {
		return nil, false
	}
	return rule.EscalateTo, true
}
