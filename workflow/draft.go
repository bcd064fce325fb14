/*
draft.go - The form session

PURPOSE:
  A Draft is one user's in-progress CREATE or EDIT form: the plain form
  fields, the rule-engine selection, the keyed error map, and the
  duplicate-account-number check state. It exists only for the active form
  session and is discarded on reset or successful submission.

STALENESS GUARD:
  The duplicate check is asynchronous in the UI: the user can keep typing
  while a response is in flight. ApplyCheckResult compares the checked
  value against the CURRENT field value and discards the result on
  mismatch, so a stale response can never clobber newer input. The last
  checked value is tracked so repeated checks of the same value are
  answered locally.

EDIT MODE:
  PopulateFromRequest rebuilds the draft from a stored request using the
  server's code analysis (its absence is an error - client-side reverse
  parsing is not a silent fallback). PopulateFromAccount fills the reduced
  edit form (account number, status, name, description) from an approved
  account; type and currency are immutable post-approval.

SEE ALSO:
  - validate.go:              The rules evaluated over this state
  - coderule/selection.go:    The embedded selection state machine
*/
package workflow

import (
	"context"
	"strings"

	"github.com/warp/coa-engine/coderule"
)

// AccountLookup answers duplicate-account-number checks. Implemented by the
// sqlite store in production.
type AccountLookup interface {
	AccountNoExists(ctx context.Context, accountNo string) (bool, error)
}

// FormField names the plain (non-selection) draft fields.
type FormField string

const (
	FieldAccountName   FormField = "accountName"
	FieldAccountNo     FormField = "accountNo"
	FieldAccountStatus FormField = "accountStatus"
	FieldDescription   FormField = "description"
)

// formData holds the plain form fields.
type formData struct {
	AccountName   string
	AccountNo     string
	AccountStatus string
	Description   string
}

// checkState tracks the duplicate-check bookkeeping for the staleness guard.
type checkState struct {
	lastChecked string
	exists      *bool // nil until a check result has been applied
}

// Draft is one form session.
type Draft struct {
	Selection *coderule.Selection

	mode      RequestType
	requestID string
	accountID *int64

	// Original values captured when entering EDIT mode.
	originalAccountNo   string
	originalRequestType RequestType

	form   formData
	errors ErrorMap
	check  checkState

	lookup AccountLookup
}

// NewDraft creates an empty CREATE-mode draft.
func NewDraft(catalog *coderule.Catalog, lookup AccountLookup) *Draft {
	return &Draft{
		Selection: coderule.NewSelection(catalog),
		mode:      RequestCreate,
		errors:    make(ErrorMap),
		lookup:    lookup,
	}
}

// Reset discards all session state and returns the draft to CREATE mode.
func (d *Draft) Reset() {
	d.Selection.Reset()
	d.mode = RequestCreate
	d.requestID = ""
	d.accountID = nil
	d.originalAccountNo = ""
	d.originalRequestType = ""
	d.form = formData{}
	d.errors = make(ErrorMap)
	d.check = checkState{}
}

func (d *Draft) Mode() RequestType                { return d.mode }
func (d *Draft) RequestID() string                { return d.requestID }
func (d *Draft) AccountID() *int64                { return d.accountID }
func (d *Draft) OriginalRequestType() RequestType { return d.originalRequestType }
func (d *Draft) Errors() ErrorMap                 { return d.errors }

// Field returns the current value of a plain form field.
func (d *Draft) Field(field FormField) string {
	switch field {
	case FieldAccountName:
		return d.form.AccountName
	case FieldAccountNo:
		return d.form.AccountNo
	case FieldAccountStatus:
		return d.form.AccountStatus
	case FieldDescription:
		return d.form.Description
	}
	return ""
}

// =============================================================================
// MUTATIONS - Each clears exactly the errors it invalidates
// =============================================================================

// SetField stores a plain form field value and clears that field's error.
func (d *Draft) SetField(field FormField, value string) {
	switch field {
	case FieldAccountName:
		d.form.AccountName = value
	case FieldAccountNo:
		d.form.AccountNo = value
	case FieldAccountStatus:
		d.form.AccountStatus = value
	case FieldDescription:
		d.form.Description = value
	}
	delete(d.errors, string(field))
}

// SetType cascades through the selection and clears all errors.
func (d *Draft) SetType(code string) {
	d.Selection.SetType(code)
	d.errors = make(ErrorMap)
}

// SetGroup cascades through the selection and clears all errors. The type
// and its error, if any, are untouched.
func (d *Draft) SetGroup(idOrCode string) {
	d.Selection.SetGroup(idOrCode)
	typeErr, hadTypeErr := d.errors["type"]
	d.errors = make(ErrorMap)
	if hadTypeErr {
		d.errors["type"] = typeErr
	}
}

// SetGroupValue stores the TEXT-group free text and clears the group error.
func (d *Draft) SetGroupValue(value string) {
	d.Selection.SetGroupValue(value)
	delete(d.errors, "group")
}

// SetStepValue stores one step value and clears only that step's error.
func (d *Draft) SetStepValue(stepID int, value string) {
	d.Selection.SetStepValue(stepID, value)
	delete(d.errors, StepKey(stepID))
}

// =============================================================================
// DUPLICATE ACCOUNT NUMBER CHECK
// =============================================================================

// accountNoExists reports the last applied check result for the current
// field value; an unchecked value reports false.
func (d *Draft) accountNoExists() bool {
	if d.check.exists == nil {
		return false
	}
	return d.check.lastChecked == strings.TrimSpace(d.form.AccountNo) && *d.check.exists
}

// CheckAccountNo runs the duplicate check for the current account number
// and applies the result. Returns whether the number exists.
//
// The check is skipped without a lookup call when:
//   - the field is blank,
//   - EDIT mode and the value equals the original account number,
//   - the value equals the last checked value (answered from cache).
func (d *Draft) CheckAccountNo(ctx context.Context) (bool, error) {
	accountNo := strings.TrimSpace(d.form.AccountNo)
	if accountNo == "" {
		d.check = checkState{}
		delete(d.errors, "accountNo")
		return false, nil
	}

	// Editing a record back to its own number is never a collision.
	if d.mode == RequestEdit && d.originalAccountNo != "" && accountNo == strings.TrimSpace(d.originalAccountNo) {
		no := false
		d.check = checkState{lastChecked: accountNo, exists: &no}
		delete(d.errors, "accountNo")
		return false, nil
	}

	if d.check.lastChecked == accountNo && d.check.exists != nil {
		if *d.check.exists {
			d.errors["accountNo"] = FieldError{KindDuplicate, "This account no. already exists!"}
		} else {
			delete(d.errors, "accountNo")
		}
		return *d.check.exists, nil
	}

	exists, err := d.lookup.AccountNoExists(ctx, accountNo)
	if err != nil {
		// A failed check never blocks typing; the submission-time
		// validation will retry.
		return false, &coderule.FetchError{Resource: "account number check", Err: err}
	}

	d.ApplyCheckResult(accountNo, exists)
	return exists, nil
}

// ApplyCheckResult applies a duplicate-check response. The result is
// discarded when the checked value no longer matches the current field
// value - a stale response must not clobber newer input. Returns whether
// the result was applied.
func (d *Draft) ApplyCheckResult(checkedValue string, exists bool) bool {
	if strings.TrimSpace(d.form.AccountNo) != strings.TrimSpace(checkedValue) {
		return false // stale response, discard
	}

	checked := strings.TrimSpace(checkedValue)
	d.check = checkState{lastChecked: checked, exists: &exists}
	if exists {
		d.errors["accountNo"] = FieldError{KindDuplicate, "This account no. already exists!"}
	} else {
		delete(d.errors, "accountNo")
	}
	return true
}

// =============================================================================
// EDIT-MODE POPULATION
// =============================================================================

// PopulateFromRequest rebuilds the draft from a stored request via its
// server code analysis. A missing analysis is a degraded-mode error.
func (d *Draft) PopulateFromRequest(req *Request) error {
	if req == nil {
		return ErrRequestNotFound
	}
	if req.Analysis == nil {
		return coderule.ErrMissingAnalysis
	}

	d.Reset()
	d.mode = RequestEdit
	d.requestID = req.ID
	d.accountID = req.AccountID
	d.originalRequestType = req.Type
	d.originalAccountNo = req.Data.AccountNo

	d.form = formData{
		AccountName:   req.Data.Name,
		AccountNo:     req.Data.AccountNo,
		AccountStatus: req.Data.Status,
		Description:   req.Data.Description,
	}

	return d.Selection.ApplyAnalysis(req.Analysis)
}

// PopulateFromAccount fills the reduced EDIT form from an existing approved
// account. Only account number, status, name, and description are editable
// this way; the selection stays empty because type and currency are
// immutable post-approval.
func (d *Draft) PopulateFromAccount(account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}

	d.Reset()
	d.mode = RequestEdit
	id := account.ID
	d.accountID = &id
	d.originalAccountNo = account.AccountNo

	d.form = formData{
		AccountName:   account.Name,
		AccountNo:     account.AccountNo,
		AccountStatus: string(account.Status),
		Description:   account.Description,
	}
	return nil
}

// =============================================================================
// PAYLOAD ASSEMBLY
// =============================================================================

// BuildCreateData assembles the CREATE payload from the draft. The draft
// must validate first; ErrValidationFailed is returned otherwise.
func (d *Draft) BuildCreateData() (AccountData, error) {
	if !d.Validate().Valid() {
		return AccountData{}, ErrValidationFailed
	}

	if !ValidAccountType(d.Selection.Type()) {
		return AccountData{}, &SubmissionError{Op: "build payload", Err: ErrValidationFailed}
	}

	return AccountData{
		AccountNo:   strings.TrimSpace(d.form.AccountNo),
		Code:        d.Selection.Code(),
		Name:        strings.TrimSpace(d.form.AccountName),
		Type:        AccountType(d.Selection.Type()),
		Currency:    d.Selection.StepValueByCategory(coderule.CategoryCurrency),
		Status:      d.form.AccountStatus,
		Provider:    d.Selection.StepValueByCategory(coderule.CategoryProvider),
		Network:     d.Selection.StepValueByCategory(coderule.CategoryNetwork),
		Description: strings.TrimSpace(d.form.Description),
	}, nil
}

// BuildEditData assembles the reduced EDIT payload from the draft.
func (d *Draft) BuildEditData() (AccountData, error) {
	if d.accountID == nil {
		return AccountData{}, ErrAccountNotFound
	}
	accountNo := strings.TrimSpace(d.form.AccountNo)
	if accountNo == "" || d.form.AccountStatus == "" {
		return AccountData{}, ErrValidationFailed
	}
	if d.accountNoExists() {
		return AccountData{}, ErrDuplicateAccountNo
	}

	return AccountData{
		AccountID:   *d.accountID,
		AccountNo:   accountNo,
		Status:      d.form.AccountStatus,
		Name:        strings.TrimSpace(d.form.AccountName),
		Description: strings.TrimSpace(d.form.Description),
	}, nil
}
