package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coa-engine/coderule"
)

func TestParseRulesAppliesDefaults(t *testing.T) {
	// GIVEN a minimal rule with no separators or input types
	f := NewRuleFactory()
	rules, err := f.ParseRules(`[
		{"id": 1, "code": "ASSET", "name": "Asset",
		 "groups": [{"id": 0, "steps": [
			{"step_id": 11, "step_order": 1, "label": "Currency", "category_code": "CURRENCY"}
		 ]}]}
	]`)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	// THEN separators default and inputs default to SELECT
	rule := rules[0]
	assert.Equal(t, coderule.DefaultSeparator, rule.Separator)
	require.Len(t, rule.Groups, 1)
	assert.True(t, rule.Groups[0].IsSentinel())
	assert.Equal(t, coderule.InputSelect, rule.Groups[0].Steps[0].InputType)
}

func TestParseRulesRejectsDuplicateCodes(t *testing.T) {
	f := NewRuleFactory()

	_, err := f.ParseRules(`[
		{"id": 1, "code": "ASSET", "name": "Asset"},
		{"id": 2, "code": "ASSET", "name": "Asset again"}
	]`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule code")
}

func TestParseRulesRejectsDuplicateStepIDs(t *testing.T) {
	f := NewRuleFactory()

	_, err := f.ParseRules(`[
		{"id": 1, "code": "ASSET", "name": "Asset",
		 "groups": [{"id": 0, "steps": [
			{"step_id": 11, "step_order": 1},
			{"step_id": 11, "step_order": 2}
		 ]}]}
	]`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestParseRulesRequiresGroupCode(t *testing.T) {
	f := NewRuleFactory()

	// A SELECT group's code appears verbatim in generated codes; it cannot
	// be blank. TEXT groups and the implicit group have no such segment.
	_, err := f.ParseRules(`[
		{"id": 2, "code": "LIAB", "name": "Liability",
		 "groups": [{"id": 1, "input_type": "SELECT"}]}
	]`)
	require.Error(t, err)

	_, err = f.ParseRules(`[
		{"id": 2, "code": "LIAB", "name": "Liability",
		 "groups": [{"id": 1, "input_type": "TEXT"}]}
	]`)
	require.NoError(t, err)
}

func TestSeedRulesParseAndAssemble(t *testing.T) {
	// GIVEN the shipped seed rules
	f := NewRuleFactory()
	rules, err := f.ParseRules(SeedRulesJSON)
	require.NoError(t, err)
	require.Len(t, rules, 5)

	codes := make([]string, 0, len(rules))
	for _, r := range rules {
		codes = append(codes, r.Code)
	}
	assert.ElementsMatch(t, []string{"ASSET", "LIAB", "EQUITY", "REV", "EXP"}, codes)

	// THEN every rule carries a currency step somewhere
	for _, rule := range rules {
		found := false
		for _, g := range rule.Groups {
			for _, s := range g.Steps {
				if s.CategoryCode == coderule.CategoryCurrency {
					found = true
				}
			}
		}
		assert.True(t, found, "rule %s has no currency step", rule.Code)
	}

	// AND the liability card layout assembles as documented
	var liab coderule.Rule
	for _, r := range rules {
		if r.Code == "LIAB" {
			liab = r
		}
	}
	card := liab.Groups[0]
	code := coderule.AssembleCode(&liab, &card, "", map[int]string{201: "USD", 202: "VISA"})
	assert.Equal(t, "LIAB:CARD-USD.VISA", code)
}
