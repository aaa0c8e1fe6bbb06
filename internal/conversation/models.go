package conversation

import (
	"strings"
	"time"
)

// ConversationState is the per-ticket session state. It has no backing store:
// between invocations it lives serialized inside the state marker block of the
// bot's most recent comment, and is re-derived from there on every event.
type ConversationState struct {
	Category          string                       `json:"category,omitempty"`
	UserConversations map[string]*UserConversation `json:"users"`
	SharedFindings    []SharedFinding              `json:"findings,omitempty"`
	LastUpdated       time.Time                    `json:"last_updated"`
	IsActionable      bool                         `json:"actionable,omitempty"`
	CompletenessScore int                          `json:"completeness,omitempty"`
	IssueAuthor       string                       `json:"issue_author"`
	BriefCommentID    *int64                       `json:"brief_comment_id,omitempty"`
	BriefIterations   int                          `json:"brief_iterations,omitempty"`

	// LastSeenCommentID is an optimistic-concurrency token: the newest comment
	// id observed when this state was loaded. Persisting refuses and escalates
	// when a newer comment appeared in the meantime.
	LastSeenCommentID int64 `json:"last_seen_comment_id,omitempty"`
}

// UserConversation tracks one participant's progress through the triage loops.
type UserConversation struct {
	Username          string     `json:"username"`
	LoopCount         int        `json:"loop_count"`
	IsExhausted       bool       `json:"exhausted,omitempty"`
	FirstInteraction  time.Time  `json:"first_seen"`
	LastInteraction   time.Time  `json:"last_seen"`
	AskedFields       []string   `json:"asked_fields,omitempty"`
	IsFinalized       bool       `json:"finalized,omitempty"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
	OffTopicStrikes   int        `json:"off_topic_strikes,omitempty"`
	IsOffTopicBlocked bool       `json:"off_topic_blocked,omitempty"`
}

// SharedFinding is an evidence item visible to every participant. Findings are
// append-only for the life of the ticket; a failed lookup is recorded as a
// finding too, with Failed set.
type SharedFinding struct {
	DiscoveredBy string    `json:"discovered_by"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Category     string    `json:"category"`
	Finding      string    `json:"finding"`
	Source       string    `json:"source,omitempty"`
	Verdict      string    `json:"verdict,omitempty"`
	Failed       bool      `json:"failed,omitempty"`
}

// CommandInfo holds the slash commands found in the current event's own text.
// It is derived transiently per event and never persisted.
type CommandInfo struct {
	HasStopCommand     bool
	HasDiagnoseCommand bool
}

// NewState creates the initial state for a ticket on its first event.
func NewState(issueAuthor string, now time.Time) *ConversationState {
	s := &ConversationState{
		UserConversations: make(map[string]*UserConversation),
		IssueAuthor:       issueAuthor,
		LastUpdated:       now,
	}
	s.EnsureConversation(issueAuthor, now)
	return s
}

// normalizeUsername lowercases usernames so map keys are case-insensitive.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Conversation returns the tracked conversation for username, if any.
func (s *ConversationState) Conversation(username string) (*UserConversation, bool) {
	uc, ok := s.UserConversations[normalizeUsername(username)]
	return uc, ok
}

// EnsureConversation returns the conversation for username, creating it on
// first sight. Keys are only ever added, never removed.
func (s *ConversationState) EnsureConversation(username string, now time.Time) *UserConversation {
	key := normalizeUsername(username)
	if s.UserConversations == nil {
		s.UserConversations = make(map[string]*UserConversation)
	}
	if uc, ok := s.UserConversations[key]; ok {
		return uc
	}
	uc := &UserConversation{
		Username:         username,
		FirstInteraction: now,
		LastInteraction:  now,
	}
	s.UserConversations[key] = uc
	return uc
}

// IsAllowed reports whether username is on the ticket's allow-list: the issue
// author plus everyone already tracked in UserConversations.
func (s *ConversationState) IsAllowed(username string) bool {
	if strings.EqualFold(username, s.IssueAuthor) {
		return true
	}
	_, ok := s.UserConversations[normalizeUsername(username)]
	return ok
}

// AddFinding appends a finding to the shared, append-only list.
func (s *ConversationState) AddFinding(f SharedFinding) {
	s.SharedFindings = append(s.SharedFindings, f)
}

// Touch records activity for username at the given time.
func (s *ConversationState) Touch(username string, now time.Time) {
	if uc, ok := s.Conversation(username); ok {
		uc.LastInteraction = now
	}
	s.LastUpdated = now
}

// RecordAskedFields appends the fields just asked of this user.
func (u *UserConversation) RecordAskedFields(fields []string) {
	u.AskedFields = append(u.AskedFields, fields...)
}

// AddOffTopicStrike increments the strike counter; two strikes block the user
// permanently for the ticket's lifetime.
func (u *UserConversation) AddOffTopicStrike() {
	u.OffTopicStrikes++
	if u.OffTopicStrikes >= 2 {
		u.IsOffTopicBlocked = true
	}
}

// Finalize marks the conversation finalized at the given time. Finalization is
// immutable afterwards except for the single disagreement-override pass.
func (u *UserConversation) Finalize(now time.Time) {
	if u.IsFinalized {
		return
	}
	u.IsFinalized = true
	t := now
	u.FinalizedAt = &t
}
