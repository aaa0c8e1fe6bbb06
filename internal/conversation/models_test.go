package conversation

import (
	"testing"
	"time"
)

func TestEnsureConversation_CaseInsensitive(t *testing.T) {
	now := time.Now()
	s := NewState("Alice", now)

	uc1 := s.EnsureConversation("Bob", now)
	uc2 := s.EnsureConversation("bob", now)
	if uc1 != uc2 {
		t.Fatal("expected the same conversation for Bob and bob")
	}
	if len(s.UserConversations) != 2 {
		t.Fatalf("expected 2 tracked users, got %d", len(s.UserConversations))
	}

	// Original casing of the first sighting is preserved
	if uc1.Username != "Bob" {
		t.Errorf("expected username Bob, got %s", uc1.Username)
	}
}

func TestNewState_ContainsIssueAuthor(t *testing.T) {
	s := NewState("alice", time.Now())
	if _, ok := s.Conversation("ALICE"); !ok {
		t.Fatal("issue author must be tracked from the start")
	}
	if !s.IsAllowed("Alice") {
		t.Error("issue author must be on the allow-list")
	}
}

func TestIsAllowed(t *testing.T) {
	now := time.Now()
	s := NewState("alice", now)

	if s.IsAllowed("mallory") {
		t.Error("unknown commenter must not be allowed")
	}

	s.EnsureConversation("Mallory", now)
	if !s.IsAllowed("mallory") {
		t.Error("tracked user must be allowed")
	}
}

func TestAddOffTopicStrike_PermanentBlock(t *testing.T) {
	u := &UserConversation{Username: "bob"}

	u.AddOffTopicStrike()
	if u.IsOffTopicBlocked {
		t.Error("one strike must not block")
	}

	u.AddOffTopicStrike()
	if !u.IsOffTopicBlocked {
		t.Error("two strikes must block")
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	u := &UserConversation{Username: "bob"}
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u.Finalize(first)

	later := first.Add(time.Hour)
	u.Finalize(later)

	if u.FinalizedAt == nil || !u.FinalizedAt.Equal(first) {
		t.Errorf("finalizedAt must keep the first finalization time, got %v", u.FinalizedAt)
	}
}

func TestAddFinding_AppendOnly(t *testing.T) {
	now := time.Now()
	s := NewState("alice", now)

	s.AddFinding(SharedFinding{DiscoveredBy: "alice", DiscoveredAt: now, Category: "logs", Finding: "OOM in worker"})
	s.AddFinding(SharedFinding{DiscoveredBy: "bob", DiscoveredAt: now, Category: "config", Finding: "missing env var"})

	if len(s.SharedFindings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(s.SharedFindings))
	}
	if s.SharedFindings[0].Finding != "OOM in worker" {
		t.Error("findings must preserve insertion order")
	}
}
