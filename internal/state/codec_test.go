package state

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/supportbot/internal/conversation"
)

func sampleState() *conversation.ConversationState {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s := conversation.NewState("alice", now)
	uc, _ := s.Conversation("alice")
	uc.LoopCount = 2
	uc.AskedFields = []string{"error_message", "stack_trace"}
	s.Category = "bug"
	s.CompletenessScore = 6
	return s
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := sampleState()

	encoded, err := Encode("hello", s)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "hello") {
		t.Error("visible body must be preserved")
	}
	if !strings.Contains(encoded, fenceOpen) {
		t.Error("encoded text must contain the state fence")
	}

	decoded, ok := Decode(encoded)
	if !ok {
		t.Fatal("decode failed")
	}
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}

	uc, _ := decoded.Conversation("alice")
	if uc.LoopCount != 2 {
		t.Errorf("expected loopCount=2, got %d", uc.LoopCount)
	}
	if len(uc.AskedFields) != 2 || uc.AskedFields[0] != "error_message" {
		t.Errorf("askedFields not recovered: %v", uc.AskedFields)
	}
}

func TestEncodeDecode_Compressed(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s := conversation.NewState("alice", now)
	s.Category = "performance"
	for i := 0; i < 200; i++ {
		s.AddFinding(conversation.SharedFinding{
			DiscoveredBy: "alice",
			DiscoveredAt: now,
			Category:     "logs",
			Finding:      fmt.Sprintf("finding number %d with enough text to push past the threshold", i),
		})
	}

	encoded, err := Encode("investigating", s)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(encoded, compressedPrefix) {
		t.Error("large state must be compressed")
	}

	decoded, ok := Decode(encoded)
	if !ok {
		t.Fatal("decode of compressed payload failed")
	}
	if len(decoded.SharedFindings) != 200 {
		t.Fatalf("expected 200 findings recovered, got %d", len(decoded.SharedFindings))
	}
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Errorf("compressed round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_PrunesAskedFields(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s := conversation.NewState("alice", now)
	uc, _ := s.Conversation("alice")
	for i := 0; i < 30; i++ {
		uc.AskedFields = append(uc.AskedFields, fmt.Sprintf("field_%d", i))
	}

	encoded, err := Encode("", s)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, ok := Decode(encoded)
	if !ok {
		t.Fatal("decode failed")
	}
	got, _ := decoded.Conversation("alice")
	if len(got.AskedFields) != 20 {
		t.Fatalf("expected 20 asked fields after pruning, got %d", len(got.AskedFields))
	}
	// Most recent 20 survive: entry index 10 is the first kept of 30
	if got.AskedFields[0] != "field_10" {
		t.Errorf("expected first surviving entry field_10, got %s", got.AskedFields[0])
	}
	if got.AskedFields[19] != "field_29" {
		t.Errorf("expected last surviving entry field_29, got %s", got.AskedFields[19])
	}

	// Caller's state is untouched
	if len(uc.AskedFields) != 30 {
		t.Errorf("encode must not mutate the caller's state, got %d fields", len(uc.AskedFields))
	}
}

func TestEncode_IdempotentStrip(t *testing.T) {
	s := sampleState()

	once, err := Encode("body text", s)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	twice, err := Encode(once, s)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}

	if got := strings.Count(twice, fenceOpen); got != 1 {
		t.Errorf("expected exactly one state block after re-encoding, got %d", got)
	}
	if !strings.HasPrefix(twice, "body text") {
		t.Error("visible body must survive re-encoding")
	}
}

func TestDecode_LegacyMarker(t *testing.T) {
	s := sampleState()
	payload, err := marshalPayload(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	text := "older thread comment\n\n<!-- supportbot-state " + payload + " -->"

	decoded, ok := Decode(text)
	if !ok {
		t.Fatal("legacy marker must decode")
	}
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Errorf("legacy decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_LastMarkerWins(t *testing.T) {
	older := sampleState()
	olderUC, _ := older.Conversation("alice")
	olderUC.LoopCount = 1

	newer := sampleState()
	newerUC, _ := newer.Conversation("alice")
	newerUC.LoopCount = 3

	olderText, err := Encode("quoted reply", older)
	if err != nil {
		t.Fatal(err)
	}
	combined, err := Encode("", newer)
	if err != nil {
		t.Fatal(err)
	}
	// Hosts can show quoted older content above the genuine trailing marker
	text := "> " + olderText + "\n\nfresh reply\n\n" + combined

	decoded, ok := Decode(text)
	if !ok {
		t.Fatal("decode failed")
	}
	uc, _ := decoded.Conversation("alice")
	if uc.LoopCount != 3 {
		t.Errorf("expected the last marker to win (loopCount=3), got %d", uc.LoopCount)
	}
}

func TestDecode_Failures(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no marker", "just a plain comment"},
		{"malformed json", fenceOpen + "\n{not json\n" + fenceClose},
		{"bad compression", fenceOpen + "\ncompressed:!!!notbase64!!!\n" + fenceClose},
		{"truncated deflate", fenceOpen + "\ncompressed:aGVsbG8=\n" + fenceClose},
		{"empty text", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if state, ok := Decode(tc.text); ok || state != nil {
				t.Errorf("expected decode failure to report no prior state")
			}
		})
	}
}

func TestStrip_RemovesAllBlocks(t *testing.T) {
	s := sampleState()
	payload, _ := marshalPayload(s)
	text := "body\n\n" + fenceOpen + "\n" + payload + "\n" + fenceClose +
		"\n\n<!-- supportbot-state " + payload + " -->"

	stripped := Strip(text)
	if strings.Contains(stripped, fenceOpen) || strings.Contains(stripped, legacyOpen) {
		t.Errorf("strip left a marker behind: %q", stripped)
	}
	if !strings.Contains(stripped, "body") {
		t.Error("strip must keep the visible body")
	}
}
