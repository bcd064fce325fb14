/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into coderule.Rule objects. This enables
  rule configuration without code changes - finance operations can define
  code-generation rules in JSON, and the factory creates the proper Go
  structs.

WHY JSON?
  - Non-developers can modify rules
  - Easy integration with admin UI
  - Version control for rule definitions
  - Database storage of rule configs

JSON SCHEMA:
  {
    "id": 2,
    "code": "LIAB",
    "name": "Liability",
    "separator": ":",
    "groups": [
      {
        "id": 1,
        "code": "CARD",
        "name": "Card schemes",
        "input_type": "SELECT",
        "separator": "-",
        "steps": [
          {
            "step_id": 21,
            "step_order": 1,
            "label": "Currency",
            "category_code": "CURRENCY",
            "input_type": "SELECT",
            "separator": "."
          }
        ]
      }
    ]
  }

KEY FEATURES:
  - Validates JSON structure
  - Sets sensible defaults (separator ":", SELECT inputs)
  - Rejects duplicate rule codes and duplicate step ids
  - Ships seed rules for the five account types

USAGE:
  factory := NewRuleFactory()

  // From JSON string
  rules, err := factory.ParseRules(jsonString)

  // From the seed presets (recommended for a fresh install)
  rules, err := factory.ParseRules(SeedRulesJSON)

SEE ALSO:
  - coderule/types.go:   Rule/Group/Step definitions
  - coderule/catalog.go: Loads rules into the lookup catalog
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/coa-engine/coderule"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a code-generation rule.
type RuleJSON struct {
	ID        int         `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Separator string      `json:"separator,omitempty"`
	Groups    []GroupJSON `json:"groups,omitempty"`
}

// GroupJSON represents a group under a rule. The group with id 0 is the
// implicit group: it never appears in generated codes, it only carries the
// rule's steps.
type GroupJSON struct {
	ID        int        `json:"id"`
	Code      string     `json:"code,omitempty"`
	Name      string     `json:"name,omitempty"`
	InputType string     `json:"input_type,omitempty"` // SELECT or TEXT
	Separator string     `json:"separator,omitempty"`
	Steps     []StepJSON `json:"steps,omitempty"`
}

// StepJSON represents one code segment under a group.
type StepJSON struct {
	StepID       int             `json:"step_id"`
	StepOrder    int             `json:"step_order"`
	Label        string          `json:"label,omitempty"`
	CategoryCode string          `json:"category_code,omitempty"`
	InputCode    string          `json:"input_code,omitempty"`
	InputType    string          `json:"input_type,omitempty"` // SELECT or TEXT
	Separator    string          `json:"separator,omitempty"`
	Values       []StepValueJSON `json:"values,omitempty"`
}

// StepValueJSON is one selectable option for a SELECT step.
type StepValueJSON struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to coderule structs.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRules parses a JSON array of rules and validates the whole set.
func (f *RuleFactory) ParseRules(jsonStr string) ([]coderule.Rule, error) {
	var rjs []RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rjs); err != nil {
		return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSON(rjs)
}

// FromJSON converts a set of RuleJSON into validated coderule.Rules.
func (f *RuleFactory) FromJSON(rjs []RuleJSON) ([]coderule.Rule, error) {
	rules := make([]coderule.Rule, 0, len(rjs))
	seenCodes := make(map[string]bool)

	for _, rj := range rjs {
		if rj.Code == "" {
			return nil, fmt.Errorf("rule %d: code is required", rj.ID)
		}
		if seenCodes[rj.Code] {
			return nil, fmt.Errorf("duplicate rule code %q", rj.Code)
		}
		seenCodes[rj.Code] = true

		rule, err := f.buildRule(rj)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (f *RuleFactory) buildRule(rj RuleJSON) (coderule.Rule, error) {
	rule := coderule.Rule{
		ID:        rj.ID,
		Code:      rj.Code,
		Name:      rj.Name,
		Separator: defaultSeparator(rj.Separator),
	}

	for _, gj := range rj.Groups {
		group, err := f.buildGroup(rj.Code, gj)
		if err != nil {
			return coderule.Rule{}, err
		}
		rule.Groups = append(rule.Groups, group)
	}
	return rule, nil
}

func (f *RuleFactory) buildGroup(ruleCode string, gj GroupJSON) (coderule.Group, error) {
	group := coderule.Group{
		ID:        gj.ID,
		Code:      gj.Code,
		Name:      gj.Name,
		InputType: parseInputType(gj.InputType),
		Separator: defaultSeparator(gj.Separator),
	}

	if gj.ID != coderule.SentinelGroupID && gj.Code == "" && group.InputType != coderule.InputText {
		return coderule.Group{}, fmt.Errorf("rule %s: group %d: SELECT group needs a code", ruleCode, gj.ID)
	}

	seenSteps := make(map[int]bool)
	for _, sj := range gj.Steps {
		if seenSteps[sj.StepID] {
			return coderule.Group{}, fmt.Errorf("rule %s: duplicate step id %d", ruleCode, sj.StepID)
		}
		seenSteps[sj.StepID] = true
		group.Steps = append(group.Steps, buildStep(sj))
	}
	return group, nil
}

func buildStep(sj StepJSON) coderule.Step {
	step := coderule.Step{
		StepID:       sj.StepID,
		StepOrder:    sj.StepOrder,
		Label:        sj.Label,
		CategoryCode: sj.CategoryCode,
		InputCode:    sj.InputCode,
		InputType:    parseInputType(sj.InputType),
		Separator:    sj.Separator,
	}
	for _, vj := range sj.Values {
		step.Values = append(step.Values, coderule.StepValue{Value: vj.Value, Name: vj.Name})
	}
	return step
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseInputType(s string) coderule.InputType {
	switch s {
	case "TEXT", "text":
		return coderule.InputText
	default:
		return coderule.InputSelect
	}
}

func defaultSeparator(s string) string {
	if s == "" {
		return coderule.DefaultSeparator
	}
	return s
}
