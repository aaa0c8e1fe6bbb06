package llm

import (
	"encoding/json"
	"testing"
)

func TestRepairJSON_ValidJSON(t *testing.T) {
	valid := `{"category": "bug", "score": 7}`

	repaired, stats, err := RepairJSON(valid)
	if err != nil {
		t.Fatalf("valid JSON must not error: %v", err)
	}
	if stats.WasRepaired {
		t.Error("valid JSON must not be repaired")
	}
	if repaired != valid {
		t.Error("valid JSON must be returned unchanged")
	}
}

func TestRepairJSON_TrailingCommas(t *testing.T) {
	broken := `{"category": "bug", "fields": ["a", "b",],}`

	repaired, stats, err := RepairJSON(broken)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if !stats.WasRepaired {
		t.Error("expected repair to be reported")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v", err)
	}
}

func TestRepairJSON_IncompleteObject(t *testing.T) {
	truncated := `{"category": "bug", "issues": [{"problem": "missing version"`

	repaired, _, err := RepairJSON(truncated)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v", err)
	}
	if out["category"] != "bug" {
		t.Error("fields before truncation must survive")
	}
}

func TestRepairJSON_Comments(t *testing.T) {
	commented := `{
		// the model explains itself here
		"category": "bug",
		"score": 5 /* inline remark */
	}`

	repaired, stats, err := RepairJSON(commented)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if stats.CommentsLost == 0 {
		t.Error("expected removed comments to be counted")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v", err)
	}
}

func TestRepairJSON_UnquotedKeys(t *testing.T) {
	unquoted := `{category: "bug", score: 5}`

	repaired, _, err := RepairJSON(unquoted)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v", err)
	}
	if out["category"] != "bug" {
		t.Error("unquoted keys must be recovered")
	}
}

func TestRepairJSON_SingleQuotes(t *testing.T) {
	single := `{"category": 'bug'}`

	repaired, _, err := RepairJSON(single)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"pure json", `{"a": 1}`, `{"a": 1}`},
		{"fenced block", "Here you go:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"prose prefix", `Sure! {"a": 1} hope that helps`, `{"a": 1}`},
		{"array", `[1, 2, 3]`, `[1, 2, 3]`},
		{"no json", `nothing structured here`, ``},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.raw); got != tc.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestProcessAgentResponse(t *testing.T) {
	type payload struct {
		Category string `json:"category"`
		Score    int    `json:"score"`
	}

	var out payload
	result, err := ProcessAgentResponse("The classification is:\n```json\n{\"category\": \"crash\", \"score\": 8,}\n```", &out)
	if err != nil {
		t.Fatalf("processing failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if out.Category != "crash" || out.Score != 8 {
		t.Errorf("unexpected payload: %+v", out)
	}
	if !result.RepairStats.WasRepaired {
		t.Error("trailing comma should have required repair")
	}
}

func TestProcessAgentResponse_NoJSON(t *testing.T) {
	var out map[string]interface{}
	_, err := ProcessAgentResponse("I could not produce a structured answer.", &out)
	if err == nil {
		t.Fatal("expected error for response without JSON")
	}
}
