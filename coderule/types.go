/*
Package coderule provides the account-code rule engine.

PURPOSE:
  This package contains the core types and algorithms for chart-of-accounts
  code generation. A code rule describes, for one account type (ASSET, LIAB,
  EQUITY, REV, EXP), how an account code is assembled out of ordered,
  separator-bound segments. The same engine handles forward assembly (build a
  code from the user's selection) and reverse mapping (repopulate a selection
  from a server-analyzed code).

KEY CONCEPTS IN THIS FILE (types.go):
  - Rule:  Top-level code template for one account type
  - Group: Sub-classification within a rule; id 0 is the implicit group
  - Step:  One ordered field contributing a segment to the code
  - CodeAnalysis: Server-supplied decomposition of an existing code

DESIGN PRINCIPLES:
  1. Server-owned: rules are loaded, never mutated client-side
  2. Determinism: same selection always yields the same code
  3. Explicit transitions: selection changes are method calls, not watchers

USAGE:
  catalog := coderule.NewCatalog(source)
  if err := catalog.Load(ctx); err != nil { ... }

  sel := coderule.NewSelection(catalog)
  sel.SetType("ASSET")
  sel.SetStepValue(11, "USD")
  code := sel.Code() // "ASSET:USD"

SEE ALSO:
  - catalog.go:   Rule catalog load and lookup
  - assemble.go:  Forward/reverse code assembly
  - selection.go: The selection state machine
*/
package coderule

import (
	"sort"
	"strconv"
)

// =============================================================================
// INPUT KINDS
// =============================================================================

// InputType describes how a group or step collects its segment value.
type InputType string

const (
	InputSelect InputType = "SELECT"
	InputText   InputType = "TEXT"
)

// Well-known step categories. A step tagged with one of these pulls its
// allowed values from the matching rule-category value list.
const (
	CategoryCurrency       = "CURRENCY"
	CategoryProvider       = "PROVIDER"
	CategoryBankName       = "BANK_NAME"
	CategoryNetwork        = "NETWORK"
	CategoryKindsOfRevenue = "KINDS_OF_REVENUE"
	CategoryKindsOfExpense = "KINDS_OF_EXPENSE"
)

// DefaultSeparator is used whenever a rule or group omits its own.
const DefaultSeparator = ":"

// =============================================================================
// RULE / GROUP / STEP - Server-owned code template
// =============================================================================

// StepValue is one enumerated option for a SELECT step.
type StepValue struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Step is one ordered field contributing a segment to the generated code.
// The separator belongs to the step and is placed before the NEXT segment,
// not before this one.
type Step struct {
	StepID       int         `json:"step_id"`
	StepOrder    int         `json:"step_order"`
	Label        string      `json:"label"`
	CategoryCode string      `json:"category_code,omitempty"`
	InputCode    string      `json:"input_code,omitempty"`
	InputType    InputType   `json:"input_type"`
	Separator    string      `json:"separator"`
	Values       []StepValue `json:"values,omitempty"`
}

// SentinelGroupID marks the implicit group: the rule has no explicit
// sub-classification and the group segment is never emitted into the code.
// Used by revenue/expense account types.
const SentinelGroupID = 0

// Group is a sub-classification within a rule.
type Group struct {
	ID        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	InputType InputType `json:"input_type"`
	Separator string    `json:"separator"`
	Steps     []Step    `json:"steps"`
}

// IsSentinel reports whether this is the implicit group (id 0).
func (g Group) IsSentinel() bool { return g.ID == SentinelGroupID }

// SortedSteps returns the group's steps in ascending step_order.
// The sort is stable: catalog order breaks ties.
func (g Group) SortedSteps() []Step {
	steps := make([]Step, len(g.Steps))
	copy(steps, g.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})
	return steps
}

// FindStep looks up a step by its stable identity.
func (g Group) FindStep(stepID int) (Step, bool) {
	for _, s := range g.Steps {
		if s.StepID == stepID {
			return s, true
		}
	}
	return Step{}, false
}

// separator returns the group's joiner, falling back to the default.
func (g Group) separator() string {
	if g.Separator == "" {
		return DefaultSeparator
	}
	return g.Separator
}

// Rule is the top-level code template for one account type. Its code doubles
// as the leading segment of every account code generated from it.
type Rule struct {
	ID        int     `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Separator string  `json:"separator"`
	Groups    []Group `json:"groups"`
}

// FindGroup looks up a group by its id rendered as a string, or by its code.
// Lookup is case-sensitive.
func (r Rule) FindGroup(idOrCode string) (Group, bool) {
	for _, g := range r.Groups {
		if strconv.Itoa(g.ID) == idOrCode || g.Code == idOrCode {
			return g, true
		}
	}
	return Group{}, false
}

// SentinelGroup returns the implicit group, if the rule carries one.
func (r Rule) SentinelGroup() (Group, bool) {
	for _, g := range r.Groups {
		if g.IsSentinel() {
			return g, true
		}
	}
	return Group{}, false
}

// SelectableGroups returns the groups a user can explicitly choose from,
// i.e. everything except the sentinel.
func (r Rule) SelectableGroups() []Group {
	var groups []Group
	for _, g := range r.Groups {
		if !g.IsSentinel() {
			groups = append(groups, g)
		}
	}
	return groups
}

// separator returns the rule's joiner, falling back to the default.
func (r Rule) separator() string {
	if r.Separator == "" {
		return DefaultSeparator
	}
	return r.Separator
}

// =============================================================================
// CODE ANALYSIS - Server-supplied decomposition of an existing code
// =============================================================================

// AnalysisStep mirrors Step, extended with the value the analyzed code
// carries for it.
type AnalysisStep struct {
	StepID           int         `json:"step_id"`
	StepOrder        int         `json:"step_order"`
	CategoryCode     string      `json:"category_code,omitempty"`
	InputType        InputType   `json:"input_type"`
	Separator        string      `json:"separator"`
	Values           []StepValue `json:"values,omitempty"`
	CurrentValue     string      `json:"current_value,omitempty"`
	CurrentValueName string      `json:"current_value_name,omitempty"`
}

// AnalysisGroup mirrors Group for the analyzed code.
type AnalysisGroup struct {
	ID           int            `json:"id"`
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	InputType    InputType      `json:"input_type"`
	Separator    string         `json:"separator"`
	Selected     bool           `json:"selected"`
	CurrentValue string         `json:"current_value,omitempty"`
	Steps        []AnalysisStep `json:"steps"`
}

// AnalysisType identifies the rule the analyzed code belongs to.
type AnalysisType struct {
	ID        int    `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Separator string `json:"separator"`
}

// AnalysisFormData carries the resolved type and group of the analyzed code.
type AnalysisFormData struct {
	Type  AnalysisType   `json:"type"`
	Group *AnalysisGroup `json:"group"`
}

// CodeAnalysis is the authoritative, server-supplied decomposition of an
// existing account code. It is preferred over any client-side parsing:
// account codes are not losslessly reversible by string splitting because
// separators may coincide with payload characters.
type CodeAnalysis struct {
	Code      string           `json:"code"`
	TypeCode  string           `json:"type_code"`
	TypeName  string           `json:"type_name"`
	GroupCode string           `json:"group_code"`
	GroupName string           `json:"group_name"`
	IsValid   bool             `json:"is_valid"`
	FormData  AnalysisFormData `json:"form_data"`
}

