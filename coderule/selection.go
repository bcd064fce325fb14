/*
selection.go - The selection state machine

PURPOSE:
  Tracks one form session's choice of type -> group -> step values, with the
  cascade-reset rules that keep downstream choices consistent with upstream
  ones. All derived views (current rule, resolved group, steps to render,
  generated code) are recomputed live from the selection and the catalog,
  never cached, so a cascade reset can't leave them stale.

TRANSITIONS:
  SetType(code)      clears group, group value, and step values; when the
                     rule's only group is the sentinel (id 0), the group is
                     auto-resolved to "0" with no user action
  SetGroup(id|code)  clears the group value and step values, leaves the type
  SetGroupValue(v)   free text for TEXT groups
  SetStepValue(id,v) stores one step value

STATES:
  Empty -> TypeChosen -> GroupResolved -> StepsInProgress -> Complete

  Complete here means every rendered step has a value; the validation engine
  in the workflow package decides whether submission is actually permitted.

SEE ALSO:
  - assemble.go: Code() delegates to AssembleCode
  - workflow/draft.go: wraps a Selection with form fields and errors
*/
package coderule

import "strconv"

// =============================================================================
// STATES
// =============================================================================

// SelectionState is the coarse progress of a form session.
type SelectionState string

const (
	StateEmpty           SelectionState = "empty"
	StateTypeChosen      SelectionState = "type_chosen"
	StateGroupResolved   SelectionState = "group_resolved"
	StateStepsInProgress SelectionState = "steps_in_progress"
	StateComplete        SelectionState = "complete"
)

// =============================================================================
// SELECTION
// =============================================================================

// Selection is the ephemeral, per-session choice of type, group, and step
// values. It holds no server state beyond a catalog reference and has no
// existence outside the active form session.
type Selection struct {
	catalog *Catalog

	selectedType  string
	selectedGroup string // group id as string, or group code
	groupValue    string // only meaningful for TEXT groups
	stepValues    map[int]string
}

// NewSelection creates an empty selection over the given catalog.
func NewSelection(catalog *Catalog) *Selection {
	return &Selection{
		catalog:    catalog,
		stepValues: make(map[int]string),
	}
}

// Reset returns the selection to its initial empty state.
func (s *Selection) Reset() {
	s.selectedType = ""
	s.selectedGroup = ""
	s.groupValue = ""
	s.stepValues = make(map[int]string)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// SetType selects the account type and cascades: group, group value, and all
// step values are cleared. When the newly selected rule carries the sentinel
// group and nothing else, the group resolves to "0" immediately.
func (s *Selection) SetType(code string) {
	s.selectedType = code
	s.selectedGroup = ""
	s.groupValue = ""
	s.stepValues = make(map[int]string)

	rule, ok := s.CurrentRule()
	if !ok {
		return
	}
	if _, hasSentinel := rule.SentinelGroup(); hasSentinel && len(rule.SelectableGroups()) == 0 {
		s.selectedGroup = strconv.Itoa(SentinelGroupID)
	}
}

// SetGroup selects a group by id (as string) or code and cascades: group
// value and step values are cleared. The selected type is untouched.
func (s *Selection) SetGroup(idOrCode string) {
	s.selectedGroup = idOrCode
	s.groupValue = ""
	s.stepValues = make(map[int]string)
}

// SetGroupValue stores the free-text segment for a TEXT group.
func (s *Selection) SetGroupValue(value string) {
	s.groupValue = value
}

// SetStepValue stores one step's value, keyed by the step's stable id.
func (s *Selection) SetStepValue(stepID int, value string) {
	s.stepValues[stepID] = value
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (s *Selection) Type() string       { return s.selectedType }
func (s *Selection) Group() string      { return s.selectedGroup }
func (s *Selection) GroupValue() string { return s.groupValue }

// StepValue returns the stored value for a step, or "".
func (s *Selection) StepValue(stepID int) string { return s.stepValues[stepID] }

// StepValues returns a copy of all stored step values.
func (s *Selection) StepValues() map[int]string {
	values := make(map[int]string, len(s.stepValues))
	for k, v := range s.stepValues {
		values[k] = v
	}
	return values
}

// =============================================================================
// DERIVED VIEWS - Always recomputed, never cached
// =============================================================================

// CurrentRule resolves the rule for the selected type.
func (s *Selection) CurrentRule() (Rule, bool) {
	if s.selectedType == "" {
		return Rule{}, false
	}
	return s.catalog.FindRule(s.selectedType)
}

// CurrentGroup resolves the active group: the explicitly selected one, or
// the sentinel group when the rule has one and nothing was selected.
func (s *Selection) CurrentGroup() (Group, bool) {
	rule, ok := s.CurrentRule()
	if !ok {
		return Group{}, false
	}
	if s.selectedGroup != "" {
		return rule.FindGroup(s.selectedGroup)
	}
	return rule.SentinelGroup()
}

// StepsToRender returns the resolved group's steps in ascending step_order.
func (s *Selection) StepsToRender() []Step {
	group, ok := s.CurrentGroup()
	if !ok {
		return nil
	}
	return group.SortedSteps()
}

// AvailableGroups returns the groups the user can explicitly choose from.
func (s *Selection) AvailableGroups() []Group {
	rule, ok := s.CurrentRule()
	if !ok {
		return nil
	}
	return rule.SelectableGroups()
}

// GroupSelectorRequired reports whether the resolved rule offers explicit
// groups, i.e. whether the user must pick one. Sentinel-only rules never
// require an explicit group selection.
func (s *Selection) GroupSelectorRequired() bool {
	return len(s.AvailableGroups()) > 0
}

// StepValueByCategory returns the value of the rendered step tagged with the
// given category code (e.g. CURRENCY), or "".
func (s *Selection) StepValueByCategory(categoryCode string) string {
	for _, step := range s.StepsToRender() {
		if step.CategoryCode == categoryCode {
			return s.stepValues[step.StepID]
		}
	}
	return ""
}

// StepValueByInputCode returns the value of the rendered step tagged with
// the given input code, or "".
func (s *Selection) StepValueByInputCode(inputCode string) string {
	for _, step := range s.StepsToRender() {
		if step.InputCode == inputCode {
			return s.stepValues[step.StepID]
		}
	}
	return ""
}

// Code assembles the account code from the current selection.
func (s *Selection) Code() string {
	rule, ok := s.CurrentRule()
	if !ok {
		return EmptyCodePlaceholder
	}
	var group *Group
	if g, ok := s.CurrentGroup(); ok {
		group = &g
	}
	return AssembleCode(&rule, group, s.groupValue, s.stepValues)
}

// State derives the session's coarse progress.
func (s *Selection) State() SelectionState {
	if s.selectedType == "" {
		return StateEmpty
	}
	if _, ok := s.CurrentGroup(); !ok {
		return StateTypeChosen
	}

	steps := s.StepsToRender()
	filled := 0
	for _, step := range steps {
		if s.stepValues[step.StepID] != "" {
			filled++
		}
	}
	switch {
	case len(steps) > 0 && filled == len(steps):
		return StateComplete
	case filled > 0:
		return StateStepsInProgress
	case len(steps) == 0:
		return StateComplete
	default:
		return StateGroupResolved
	}
}

// =============================================================================
// REVERSE MAPPING - Populate from a server code analysis
// =============================================================================

// ApplyAnalysis rebuilds the selection from a server-supplied code analysis.
// The analysis is authoritative; the lossy positional parser is consulted
// only for TEXT groups whose analysis omits current_value.
func (s *Selection) ApplyAnalysis(analysis *CodeAnalysis) error {
	if analysis == nil {
		return ErrMissingAnalysis
	}
	if !s.catalog.Loaded() {
		return ErrCatalogNotLoaded
	}

	s.SetType(analysis.TypeCode)
	if _, ok := s.CurrentRule(); !ok {
		return ErrRuleNotFound
	}

	group := analysis.FormData.Group
	if group == nil {
		return nil
	}

	// Select by id, sentinel included: CurrentGroup must resolve it even
	// though the sentinel never appears in the generated code.
	s.SetGroup(strconv.Itoa(group.ID))

	if group.InputType == InputText {
		if group.CurrentValue != "" {
			s.SetGroupValue(group.CurrentValue)
		} else {
			s.SetGroupValue(GroupValueFromCode(
				analysis.Code,
				analysis.FormData.Type.Separator,
				len(group.Steps) > 0,
			))
		}
	}

	for _, step := range group.Steps {
		if step.CurrentValue != "" {
			s.SetStepValue(step.StepID, step.CurrentValue)
		}
	}
	return nil
}

// Analysis produces the authoritative decomposition of the current
// selection, suitable for storing alongside the generated code. Codes are
// never re-parsed client-side; this record is how a stored code gets back
// into a form.
func (s *Selection) Analysis() (*CodeAnalysis, error) {
	rule, ok := s.CurrentRule()
	if !ok {
		return nil, ErrRuleNotFound
	}
	group, ok := s.CurrentGroup()
	if !ok {
		return nil, ErrGroupNotFound
	}

	analysisGroup := &AnalysisGroup{
		ID:        group.ID,
		Code:      group.Code,
		Name:      group.Name,
		InputType: group.InputType,
		Separator: group.Separator,
		Selected:  !group.IsSentinel(),
	}
	if group.InputType == InputText {
		analysisGroup.CurrentValue = s.groupValue
	}
	for _, step := range group.SortedSteps() {
		analysisGroup.Steps = append(analysisGroup.Steps, AnalysisStep{
			StepID:       step.StepID,
			StepOrder:    step.StepOrder,
			CategoryCode: step.CategoryCode,
			InputType:    step.InputType,
			Separator:    step.Separator,
			Values:       step.Values,
			CurrentValue: s.stepValues[step.StepID],
		})
	}

	return &CodeAnalysis{
		Code:      s.Code(),
		TypeCode:  rule.Code,
		TypeName:  rule.Name,
		GroupCode: group.Code,
		GroupName: group.Name,
		IsValid:   s.State() == StateComplete,
		FormData: AnalysisFormData{
			Type: AnalysisType{
				ID:        rule.ID,
				Code:      rule.Code,
				Name:      rule.Name,
				Separator: rule.Separator,
			},
			Group: analysisGroup,
		},
	}, nil
}
