package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CategoryRule defines the checklist and routing for one issue category.
type CategoryRule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Checklist   []string `yaml:"checklist"`             // fields required before the issue is actionable
	Labels      []string `yaml:"labels,omitempty"`      // labels applied when classified
	EscalateTo  []string `yaml:"escalate_to,omitempty"` // assignees on escalation
}

// TriageRules is the operator-editable triage rulebook.
type TriageRules struct {
	Categories      []CategoryRule `yaml:"categories"`
	DefaultCategory string         `yaml:"default_category"`
	EscalateLabels  []string       `yaml:"escalate_labels,omitempty"`
}

// LoadRules reads and validates a triage rules file.
func LoadRules(path string) (*TriageRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rules file: %w", err)
	}

	var rules TriageRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("error parsing rules file: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Validate checks the rulebook for internal consistency.
func (r *TriageRules) Validate() error {
	if len(r.Categories) == 0 {
		return fmt.Errorf("rules must define at least one category")
	}

	seen := make(map[string]bool)
	for _, cat := range r.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category with empty name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seen[cat.Name] = true
		if len(cat.Checklist) == 0 {
			return fmt.Errorf("category %q has an empty checklist", cat.Name)
		}
	}

	if r.DefaultCategory != "" && !seen[r.DefaultCategory] {
		return fmt.Errorf("default_category %q is not a defined category", r.DefaultCategory)
	}
	return nil
}

// Category looks up a category by name, falling back to the default.
func (r *TriageRules) Category(name string) (*CategoryRule, bool) {
	for i := range r.Categories {
		if r.Categories[i].Name == name {
			return &r.Categories[i], true
		}
	}
	if r.DefaultCategory != "" && name != r.DefaultCategory {
		return r.Category(r.DefaultCategory)
	}
	return nil, false
}

// CategoryNames returns the defined category names in rule order.
func (r *TriageRules) CategoryNames() []string {
	names := make([]string, 0, len(r.Categories))
	for _, cat := range r.Categories {
		names = append(names, cat.Name)
	}
	return names
}

// DefaultRules returns the built-in rulebook used when no rules file exists.
func DefaultRules() *TriageRules {
	return &TriageRules{
		DefaultCategory: "question",
		Categories: []CategoryRule{
			{
				Name:      "bug",
				Checklist: []string{"product_version", "environment", "steps_to_reproduce", "expected_behavior", "actual_behavior"},
				Labels:    []string{"type/bug"},
			},
			{
				Name:      "crash",
				Checklist: []string{"product_version", "environment", "crash_log", "steps_to_reproduce"},
				Labels:    []string{"type/crash"},
			},
			{
				Name:      "feature_request",
				Checklist: []string{"use_case", "desired_behavior"},
				Labels:    []string{"type/feature"},
			},
			{
				Name:      "question",
				Checklist: []string{"topic"},
				Labels:    []string{"type/question"},
			},
		},
	}
}
