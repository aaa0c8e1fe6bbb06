package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/supportbot/internal/conversation"
)

func TestDecide_Priority(t *testing.T) {
	o := New(3)

	cases := []struct {
		name string
		in   Input
		want Decision
	}{
		{
			name: "missing info with loops left asks follow-up",
			in: Input{
				Conversation: &conversation.UserConversation{LoopCount: 1},
				Assessment:   Assessment{MissingFields: []string{"error_message"}},
			},
			want: DecisionAskFollowUp,
		},
		{
			name: "missing info takes priority over actionable",
			in: Input{
				Conversation: &conversation.UserConversation{LoopCount: 0},
				Assessment:   Assessment{MissingFields: []string{"version"}, IsActionable: true},
			},
			want: DecisionAskFollowUp,
		},
		{
			name: "actionable with nothing missing finalizes",
			in: Input{
				Conversation: &conversation.UserConversation{LoopCount: 1},
				Assessment:   Assessment{IsActionable: true},
			},
			want: DecisionFinalize,
		},
		{
			name: "loops exhausted and not actionable escalates",
			in: Input{
				Conversation: &conversation.UserConversation{LoopCount: 3},
				Assessment:   Assessment{MissingFields: []string{"stack_trace"}},
			},
			want: DecisionEscalate,
		},
		{
			name: "guardrail-forced escalation wins over everything",
			in: Input{
				Conversation:     &conversation.UserConversation{LoopCount: 1},
				Assessment:       Assessment{MissingFields: []string{"version"}, IsActionable: true},
				ForcedEscalation: true,
			},
			want: DecisionEscalate,
		},
		{
			name: "nothing to ask, not actionable, loops left continues",
			in: Input{
				Conversation: &conversation.UserConversation{LoopCount: 1},
				Assessment:   Assessment{},
			},
			want: DecisionContinueLoop,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := o.Decide(tc.in); got != tc.want {
				t.Errorf("Decide() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRecordLoop_OncePerEvent(t *testing.T) {
	o := New(3)
	uc := &conversation.UserConversation{Username: "alice"}

	counted := o.RecordLoop(uc, false)
	if !counted || uc.LoopCount != 1 {
		t.Fatalf("expected first pass to count, got counted=%v loopCount=%d", counted, uc.LoopCount)
	}

	// Internal loop-back within the same event must not count again
	counted = o.RecordLoop(uc, true)
	if counted || uc.LoopCount != 1 {
		t.Fatalf("expected internal pass not to count, got counted=%v loopCount=%d", counted, uc.LoopCount)
	}
}

func TestRecordLoop_Monotonic(t *testing.T) {
	o := New(3)
	uc := &conversation.UserConversation{Username: "alice"}

	prev := 0
	for event := 0; event < 5; event++ {
		o.RecordLoop(uc, false)
		if uc.LoopCount < prev {
			t.Fatal("loop count must be non-decreasing")
		}
		if uc.LoopCount-prev > 1 {
			t.Fatal("loop count must grow by at most 1 per event")
		}
		prev = uc.LoopCount
	}
}

func TestBuildEscalationSummary(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	st := conversation.NewState("alice", now)
	st.Category = "crash"
	st.AddFinding(conversation.SharedFinding{
		DiscoveredBy: "alice", DiscoveredAt: now, Category: "logs", Finding: "segfault in parser",
	})

	summary := BuildEscalationSummary(st, Assessment{
		CollectedFields: map[string]string{"version": "2.1.0", "os": "linux"},
		MissingFields:   []string{"reproduction_steps"},
	})

	for _, want := range []string{"crash", "version: 2.1.0", "os: linux", "reproduction_steps", "segfault in parser"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestBuildEscalationSummary_DegradesToNoData(t *testing.T) {
	summary := BuildEscalationSummary(nil, Assessment{})

	if !strings.Contains(summary, "no data") {
		t.Errorf("empty summary must degrade to no data:\n%s", summary)
	}
	if strings.Count(summary, "no data") < 4 {
		t.Errorf("every absent section must degrade:\n%s", summary)
	}
}
