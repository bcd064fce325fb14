package coderule_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coa-engine/coderule"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// memorySource is an in-memory RuleSource for tests.
type memorySource struct {
	rules []coderule.Rule
	err   error
}

func (m *memorySource) ListRules(ctx context.Context) ([]coderule.Rule, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rules, nil
}

func currencyStep(id, order int, sep string) coderule.Step {
	return coderule.Step{
		StepID:       id,
		StepOrder:    order,
		Label:        "Currency",
		CategoryCode: coderule.CategoryCurrency,
		InputType:    coderule.InputSelect,
		Separator:    sep,
	}
}

func networkStep(id, order int, sep string) coderule.Step {
	return coderule.Step{
		StepID:       id,
		StepOrder:    order,
		Label:        "Network",
		CategoryCode: coderule.CategoryNetwork,
		InputType:    coderule.InputSelect,
		Separator:    sep,
	}
}

// testRules builds a small catalog covering the shapes the form meets:
// ASSET has only the sentinel group, LIAB has explicit groups, REV is
// sentinel-only with two steps.
func testRules() []coderule.Rule {
	return []coderule.Rule{
		{
			ID: 1, Code: "ASSET", Name: "Asset", Separator: ":",
			Groups: []coderule.Group{
				{
					ID: 0, Code: "DEFAULT", Name: "Default", InputType: coderule.InputSelect, Separator: ":",
					Steps: []coderule.Step{currencyStep(11, 1, ".")},
				},
			},
		},
		{
			ID: 2, Code: "LIAB", Name: "Liability", Separator: ":",
			Groups: []coderule.Group{
				{
					ID: 1, Code: "G1", Name: "Bank", InputType: coderule.InputSelect, Separator: "-",
					Steps: []coderule.Step{
						currencyStep(21, 1, "."),
						networkStep(22, 2, "/"),
					},
				},
				{
					ID: 2, Code: "G2", Name: "Manual", InputType: coderule.InputText, Separator: ":",
					Steps: []coderule.Step{currencyStep(23, 1, ".")},
				},
			},
		},
		{
			ID: 3, Code: "REV", Name: "Revenue", Separator: ":",
			Groups: []coderule.Group{
				{
					ID: 0, Code: "DEFAULT", Name: "Default", InputType: coderule.InputSelect, Separator: ":",
					Steps: []coderule.Step{
						currencyStep(31, 1, "."),
						networkStep(32, 2, "/"),
						{
							StepID: 33, StepOrder: 3, Label: "Kind",
							CategoryCode: coderule.CategoryKindsOfRevenue,
							InputType:    coderule.InputSelect, Separator: "-",
						},
					},
				},
			},
		},
	}
}

func newTestCatalog(t *testing.T) *coderule.Catalog {
	t.Helper()
	catalog := coderule.NewCatalog(&memorySource{rules: testRules()})
	require.NoError(t, catalog.Load(context.Background()))
	return catalog
}

// =============================================================================
// FORWARD ASSEMBLY
// =============================================================================

func TestAssembleCode_NoType_ReturnsPlaceholder(t *testing.T) {
	// GIVEN: no rule resolved
	// WHEN: assembling
	// THEN: the placeholder is returned, never a partial code

	assert.Equal(t, "-", coderule.AssembleCode(nil, nil, "", nil))
}

func TestAssembleCode_SentinelGroup_TypeAndCurrency(t *testing.T) {
	// GIVEN: ASSET rule (separator ":"), sentinel group, CURRENCY=USD
	// WHEN: assembling
	// THEN: "ASSET:USD" - the sentinel group emits no segment of its own

	rules := testRules()
	rule := rules[0]
	group := rule.Groups[0]

	code := coderule.AssembleCode(&rule, &group, "", map[int]string{11: "USD"})
	assert.Equal(t, "ASSET:USD", code)
}

func TestAssembleCode_ExplicitGroup_FullChain(t *testing.T) {
	// GIVEN: LIAB rule (sep ":"), group G1 (sep "-"), steps USD (sep ".") and VISA
	// WHEN: assembling
	// THEN: "LIAB:G1-USD.VISA" - rule sep before group, group sep before the
	//       first step, the prior step's own sep before the next

	rules := testRules()
	rule := rules[1]
	group := rule.Groups[0]

	code := coderule.AssembleCode(&rule, &group, "", map[int]string{21: "USD", 22: "VISA"})
	assert.Equal(t, "LIAB:G1-USD.VISA", code)
}

func TestAssembleCode_TextGroup_UsesGroupValue(t *testing.T) {
	// GIVEN: LIAB rule, TEXT group G2 with free-text value "123123"
	// WHEN: assembling with CURRENCY=USD
	// THEN: the free text replaces the group code segment

	rules := testRules()
	rule := rules[1]
	group := rule.Groups[1]

	code := coderule.AssembleCode(&rule, &group, "123123", map[int]string{23: "USD"})
	assert.Equal(t, "LIAB:123123:USD", code)
}

func TestAssembleCode_SkippedMiddleStep_NoDoubleSeparator(t *testing.T) {
	// GIVEN: REV sentinel group with steps s1(sep "."), s2(sep "/"), s3
	// WHEN: s2 is left empty
	// THEN: s3 is joined with s1's separator - the separator of the last
	//       step that emitted a value carries over the skipped one

	rules := testRules()
	rule := rules[2]
	group := rule.Groups[0]

	code := coderule.AssembleCode(&rule, &group, "", map[int]string{31: "USD", 33: "FEES"})
	assert.Equal(t, "REV:USD.FEES", code)

	// Same joined segments as if s2 never existed.
	withAll := coderule.AssembleCode(&rule, &group, "", map[int]string{31: "USD", 32: "NET", 33: "FEES"})
	assert.Equal(t, "REV:USD.NET/FEES", withAll)
}

func TestAssembleCode_EmptyTrailingStep_NoDanglingSeparator(t *testing.T) {
	// GIVEN: only the first of two steps is filled
	// WHEN: assembling
	// THEN: no trailing separator appears

	rules := testRules()
	rule := rules[1]
	group := rule.Groups[0]

	code := coderule.AssembleCode(&rule, &group, "", map[int]string{21: "USD"})
	assert.Equal(t, "LIAB:G1-USD", code)
}

// =============================================================================
// REVERSE MAPPING
// =============================================================================

func TestGroupValueFromCode_WithSteps_TakesFirstSegment(t *testing.T) {
	// GIVEN: code "LIAB:123123:USD" for a TEXT group that owns steps
	// WHEN: parsing positionally
	// THEN: the group value is the first segment after the type

	assert.Equal(t, "123123", coderule.GroupValueFromCode("LIAB:123123:USD", ":", true))
}

func TestGroupValueFromCode_NoSteps_TakesRemainder(t *testing.T) {
	// GIVEN: code "LIAB:123:456" for a TEXT group with no steps
	// WHEN: parsing positionally
	// THEN: everything after the type is the group value, separators intact

	assert.Equal(t, "123:456", coderule.GroupValueFromCode("LIAB:123:456", ":", false))
}

func TestGroupValueFromCode_NoSeparator_Empty(t *testing.T) {
	assert.Equal(t, "", coderule.GroupValueFromCode("LIAB", ":", true))
}

func TestApplyAnalysis_RebuildsSelection(t *testing.T) {
	// GIVEN: a server analysis for "LIAB:G1-USD.VISA"
	// WHEN: applying it to a fresh selection
	// THEN: type, group, and step values match the analysis exactly

	catalog := newTestCatalog(t)
	sel := coderule.NewSelection(catalog)

	analysis := &coderule.CodeAnalysis{
		Code:     "LIAB:G1-USD.VISA",
		TypeCode: "LIAB",
		IsValid:  true,
		FormData: coderule.AnalysisFormData{
			Type: coderule.AnalysisType{ID: 2, Code: "LIAB", Separator: ":"},
			Group: &coderule.AnalysisGroup{
				ID: 1, Code: "G1", InputType: coderule.InputSelect, Separator: "-", Selected: true,
				Steps: []coderule.AnalysisStep{
					{StepID: 21, StepOrder: 1, CategoryCode: coderule.CategoryCurrency, Separator: ".", CurrentValue: "USD"},
					{StepID: 22, StepOrder: 2, CategoryCode: coderule.CategoryNetwork, Separator: "/", CurrentValue: "VISA"},
				},
			},
		},
	}

	require.NoError(t, sel.ApplyAnalysis(analysis))

	assert.Equal(t, "LIAB", sel.Type())
	assert.Equal(t, "1", sel.Group())
	assert.Equal(t, "USD", sel.StepValue(21))
	assert.Equal(t, "VISA", sel.StepValue(22))
	assert.Equal(t, "LIAB:G1-USD.VISA", sel.Code())
}

func TestApplyAnalysis_TextGroup_FallsBackToPositionalParse(t *testing.T) {
	// GIVEN: an analysis for a TEXT group that omits current_value
	// WHEN: applying it
	// THEN: the group value is recovered from the code positionally

	catalog := newTestCatalog(t)
	sel := coderule.NewSelection(catalog)

	analysis := &coderule.CodeAnalysis{
		Code:     "LIAB:123123:USD",
		TypeCode: "LIAB",
		FormData: coderule.AnalysisFormData{
			Type: coderule.AnalysisType{ID: 2, Code: "LIAB", Separator: ":"},
			Group: &coderule.AnalysisGroup{
				ID: 2, Code: "G2", InputType: coderule.InputText, Separator: ":",
				Steps: []coderule.AnalysisStep{
					{StepID: 23, StepOrder: 1, CategoryCode: coderule.CategoryCurrency, Separator: ".", CurrentValue: "USD"},
				},
			},
		},
	}

	require.NoError(t, sel.ApplyAnalysis(analysis))
	assert.Equal(t, "123123", sel.GroupValue())
	assert.Equal(t, "LIAB:123123:USD", sel.Code())
}

func TestApplyAnalysis_NilAnalysis_Errors(t *testing.T) {
	// Absence of the server analysis is a degraded-mode error, never a
	// silent fall-back to client-side guessing.

	catalog := newTestCatalog(t)
	sel := coderule.NewSelection(catalog)

	err := sel.ApplyAnalysis(nil)
	assert.ErrorIs(t, err, coderule.ErrMissingAnalysis)
}
