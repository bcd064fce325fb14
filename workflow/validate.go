/*
validate.go - The validation engine

PURPOSE:
  Field-level and cross-field rules over a Draft, producing a keyed error
  map. Submission is permitted iff the map is empty. Duplicate-account
  failures and plain required-field failures are distinguishable kinds even
  though both land in the same map.

RULES:
  accountName    required (non-blank after trim)
  accountNo      required, and must not collide with an existing account;
                 in EDIT mode the collision check is skipped when the value
                 equals the record's original account number
  accountStatus  required
  type           required
  group          required only when the rule offers explicit groups
  step_<id>      every rendered step requires a value
  currency       a CURRENCY-tagged step is required even if not otherwise
                 flagged - every generated code embeds a currency segment

SEE ALSO:
  - draft.go: Holds the error map and the duplicate-check state
*/
package workflow

import (
	"strconv"
	"strings"

	"github.com/warp/coa-engine/coderule"
)

// =============================================================================
// FIELD ERRORS
// =============================================================================

// ErrorKind classifies a field error. Required-field and duplicate failures
// render identically but callers can tell them apart.
type ErrorKind string

const (
	KindRequired  ErrorKind = "required"
	KindDuplicate ErrorKind = "duplicate"
	KindInvalid   ErrorKind = "invalid"
)

// FieldError is one entry in the validation error map.
type FieldError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ErrorMap maps field/step keys to human-readable errors.
type ErrorMap map[string]FieldError

// Valid reports whether submission is permitted.
func (m ErrorMap) Valid() bool { return len(m) == 0 }

// StepKey builds the error-map key for a step.
func StepKey(stepID int) string { return "step_" + strconv.Itoa(stepID) }

// =============================================================================
// VALIDATION
// =============================================================================

// Validate evaluates all rules against the draft's current state and
// replaces the draft's error map with the result. The duplicate-account
// entry reflects the last applied check result; Validate itself performs no
// network call.
func (d *Draft) Validate() ErrorMap {
	errs := make(ErrorMap)

	if strings.TrimSpace(d.form.AccountName) == "" {
		errs["accountName"] = FieldError{KindRequired, "Account name is required"}
	}

	accountNo := strings.TrimSpace(d.form.AccountNo)
	switch {
	case accountNo == "":
		errs["accountNo"] = FieldError{KindRequired, "Account No. is required"}
	case d.accountNoExists():
		errs["accountNo"] = FieldError{KindDuplicate, "This account no. already exists!"}
	}

	if d.form.AccountStatus == "" {
		errs["accountStatus"] = FieldError{KindRequired, "Account Status is required"}
	}

	if d.Selection.Type() == "" {
		errs["type"] = FieldError{KindRequired, "Type is required"}
	}

	// Group is only required when there is something to choose.
	if d.Selection.GroupSelectorRequired() && d.Selection.Group() == "" {
		errs["group"] = FieldError{KindRequired, "Group is required"}
	}

	// Every rendered step requires a value.
	for _, step := range d.Selection.StepsToRender() {
		if d.Selection.StepValue(step.StepID) == "" {
			label := step.Label
			if label == "" {
				label = "This field"
			}
			errs[StepKey(step.StepID)] = FieldError{KindRequired, label + " is required"}
		}
	}

	// Currency is specifically required: every code embeds a currency segment.
	for _, step := range d.Selection.StepsToRender() {
		if step.CategoryCode == coderule.CategoryCurrency && d.Selection.StepValue(step.StepID) == "" {
			errs["currency"] = FieldError{KindRequired, "Currency is required"}
		}
	}

	d.errors = errs
	return errs
}
