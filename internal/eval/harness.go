// Package eval replays golden triage scenarios against the pipeline with a
// scripted agent, so behavior changes show up as scenario diffs instead of
// production surprises.
package eval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/supportbot/internal/agent"
	"github.com/supportbot/internal/config"
	"github.com/supportbot/internal/guardrails"
	"github.com/supportbot/internal/phases"
	"github.com/supportbot/internal/triage"
)

// Scenario is one golden case: an issue, a sequence of events, the scripted
// model responses, and the expected outcome of the final event.
type Scenario struct {
	Name  string `yaml:"name"`
	Issue struct {
		Number int    `yaml:"number"`
		Title  string `yaml:"title"`
		Body   string `yaml:"body"`
		Author string `yaml:"author"`
	} `yaml:"issue"`
	Events []struct {
		Kind      string `yaml:"kind"` // issue_opened or comment_created
		Author    string `yaml:"author"`
		Body      string `yaml:"body"`
		CommentID int64  `yaml:"comment_id"`
	} `yaml:"events"`
	Responses []struct {
		Phase string `yaml:"phase"`
		JSON  string `yaml:"json"`
	} `yaml:"responses"`
	Expect struct {
		Decision      string   `yaml:"decision,omitempty"`
		StopReason    string   `yaml:"stop_reason,omitempty"`
		Posted        *bool    `yaml:"posted,omitempty"`
		Escalated     *bool    `yaml:"escalated,omitempty"`
		ReplyContains []string `yaml:"reply_contains,omitempty"`
	} `yaml:"expect"`
}

// Result is the outcome of replaying one scenario.
type Result struct {
	Name     string
	Passed   bool
	Failures []string
}

// LoadScenarios reads every .yaml scenario under dir, sorted by filename.
func LoadScenarios(dir string) ([]Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && (strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var scenarios []Scenario
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var sc Scenario
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("scenario %s invalid: %w", name, err)
		}
		if sc.Name == "" {
			sc.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// Run replays one scenario and checks its expectations against the final
// event's report.
func Run(ctx context.Context, sc Scenario, rules *config.TriageRules) Result {
	result := Result{Name: sc.Name}

	scripted := agent.NewScriptedAgent()
	for _, r := range sc.Responses {
		scripted.Script(r.Phase, r.JSON)
	}

	mem := newMemoryTracker(sc)
	pipeline, err := triage.New(mem, phases.New(scripted, rules, phases.DefaultThresholds()), triage.Options{
		BotIdentity:   "supportbot",
		EscalateLabel: "triage/escalated",
	})
	if err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf("pipeline setup: %v", err))
		return result
	}

	var report *triage.RunReport
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ev := range sc.Events {
		event := guardrails.Event{
			IssueNumber: sc.Issue.Number,
			IssueAuthor: sc.Issue.Author,
			Author:      ev.Author,
			Body:        ev.Body,
			CommentID:   ev.CommentID,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		switch ev.Kind {
		case "issue_opened":
			event.Kind = guardrails.EventIssueOpened
		case "comment_created":
			event.Kind = guardrails.EventCommentCreated
		default:
			result.Failures = append(result.Failures, fmt.Sprintf("event %d: unknown kind %q", i, ev.Kind))
			return result
		}

		report, err = pipeline.Run(ctx, event)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("event %d failed: %v", i, err))
			return result
		}
	}
	if report == nil {
		result.Failures = append(result.Failures, "scenario has no events")
		return result
	}

	result.Failures = append(result.Failures, check(sc, report, mem)...)
	result.Passed = len(result.Failures) == 0
	return result
}

func check(sc Scenario, report *triage.RunReport, mem *memoryTracker) []string {
	var failures []string

	if sc.Expect.Decision != "" && string(report.Decision) != sc.Expect.Decision {
		failures = append(failures, fmt.Sprintf("decision = %q, want %q", report.Decision, sc.Expect.Decision))
	}
	if sc.Expect.StopReason != "" && string(report.StopReason) != sc.Expect.StopReason {
		failures = append(failures, fmt.Sprintf("stop_reason = %q, want %q", report.StopReason, sc.Expect.StopReason))
	}
	if sc.Expect.Posted != nil && report.Posted != *sc.Expect.Posted {
		failures = append(failures, fmt.Sprintf("posted = %v, want %v", report.Posted, *sc.Expect.Posted))
	}
	if sc.Expect.Escalated != nil && report.Escalated != *sc.Expect.Escalated {
		failures = append(failures, fmt.Sprintf("escalated = %v, want %v", report.Escalated, *sc.Expect.Escalated))
	}

	if len(sc.Expect.ReplyContains) > 0 {
		if len(mem.posted) == 0 {
			failures = append(failures, "reply_contains set but nothing was posted")
		} else {
			last := mem.posted[len(mem.posted)-1]
			for _, want := range sc.Expect.ReplyContains {
				if !strings.Contains(last, want) {
					failures = append(failures, fmt.Sprintf("reply does not contain %q", want))
				}
			}
		}
	}
	return failures
}

// RunAll replays every scenario and returns the results.
func RunAll(ctx context.Context, scenarios []Scenario, rules *config.TriageRules) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		results = append(results, Run(ctx, sc, rules))
	}
	return results
}
