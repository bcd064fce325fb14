/*
assemble.go - Forward and reverse code assembly

PURPOSE:
  The forward algorithm turns a resolved rule, group, and step values into
  the delimited account code. The reverse path repopulates a selection from
  a server-supplied code analysis.

FORWARD ALGORITHM:
  1. Start with the rule's code (the account type).
  2. For a non-sentinel group, append the rule's separator and then the
     group's code (SELECT groups) or the free-text group value (TEXT groups).
  3. Visit steps in ascending step_order. For each step with a non-empty
     value, place a separator before the value: the group's separator (or
     the rule's, when no explicit group) before the first emitted value, the
     previously EMITTED step's own separator before every later one.
  4. Steps with an empty value are skipped entirely: no placeholder, no
     dangling separator. A skipped step also does not contribute its
     separator; the next emitted value reuses the separator of the last
     step that actually produced a segment.
  5. With no type resolved the result is the "-" placeholder, never a
     partial code.

  TODO(product): confirm the skipped-step separator carry-over in step 3/4
  is intended; it is observable behavior today and is pinned by tests.

REVERSE ("code analysis"):
  The server analysis is authoritative and is the only reverse path the EDIT
  workflow uses. The group-value fallback below splits on the type separator
  and is lossy when payload characters coincide with separators; it exists
  only for TEXT groups whose analysis omits current_value.

SEE ALSO:
  - selection.go: Code() and ApplyAnalysis() drive these from form state
*/
package coderule

import "strings"

// EmptyCodePlaceholder is returned when no account type is resolved yet.
const EmptyCodePlaceholder = "-"

// AssembleCode deterministically builds the account code for the given
// resolution. group may be nil (no group resolved). groupValue is only
// consulted for TEXT groups. stepValues is keyed by step id.
func AssembleCode(rule *Rule, group *Group, groupValue string, stepValues map[int]string) string {
	if rule == nil || rule.Code == "" {
		return EmptyCodePlaceholder
	}

	var parts []string
	parts = append(parts, rule.Code)

	// Group segment: only explicit (non-sentinel) groups are emitted.
	explicitGroup := group != nil && !group.IsSentinel()
	if explicitGroup {
		segment := group.Code
		if group.InputType == InputText {
			segment = groupValue
		}
		if segment != "" {
			parts = append(parts, rule.separator(), segment)
		}
	}

	// Step segments in step_order. prevSep carries the separator of the
	// last step that actually emitted a value.
	var steps []Step
	if group != nil {
		steps = group.SortedSteps()
	}

	first := true
	prevSep := ""
	for _, step := range steps {
		value := stepValues[step.StepID]
		if value == "" {
			continue
		}

		if first {
			if explicitGroup {
				parts = append(parts, group.separator())
			} else {
				parts = append(parts, rule.separator())
			}
			first = false
		} else if prevSep != "" {
			parts = append(parts, prevSep)
		}

		parts = append(parts, value)
		prevSep = step.Separator
	}

	return strings.Join(parts, "")
}

// GroupValueFromCode recovers a TEXT group's free-text value from an
// existing code by positional parsing. A payload containing the separator
// character cannot be split back reliably. Prefer the analysis'
// current_value whenever the server supplies it.
func GroupValueFromCode(code, typeSeparator string, groupHasSteps bool) string {
	if typeSeparator == "" {
		typeSeparator = DefaultSeparator
	}
	parts := strings.Split(code, typeSeparator)
	if len(parts) < 2 {
		return ""
	}
	afterType := parts[1:]
	if groupHasSteps {
		// Steps follow the group segment; the group value is the first
		// segment after the type.
		return afterType[0]
	}
	// No steps: everything after the type is the group value.
	return strings.Join(afterType, typeSeparator)
}
