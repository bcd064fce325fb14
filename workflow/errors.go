/*
errors.go - Error types for the maker-checker workflow

PURPOSE:
  All workflow error types in one place. The error taxonomy follows the
  system design: validation errors stay local and keyed per field, fetch
  and submission errors surface to the caller for retry, transition errors
  reject illegal checker actions loudly instead of no-op'ing.

SEE ALSO:
  - validate.go: FieldError / ValidationResult
  - service.go:  Uses TransitionError
*/
package workflow

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccountNo is returned when the chosen account number is
	// already taken.
	ErrDuplicateAccountNo = errors.New("account number already exists")

	// ErrEmptyReason is returned when a rejection carries no reason.
	ErrEmptyReason = errors.New("rejection reason required")

	// ErrSelfApproval is returned when a checker tries to decide their own
	// request. Maker-checker is a two-party workflow.
	ErrSelfApproval = errors.New("maker cannot check own request")

	// ErrValidationFailed is returned when submission is attempted with a
	// non-empty validation error map. No network call is made.
	ErrValidationFailed = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TransitionError is returned when a checker action hits a request that is
// not pending. A second approve/reject is an error, never a silent success.
type TransitionError struct {
	RequestID string
	Status    RequestStatus
	Action    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s: status is %s, want %s",
		e.Action, e.RequestID, e.Status, StatusPending)
}

// SubmissionError wraps a create/update/approve/reject failure. Form state
// is preserved by the caller so the user can retry.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsClientError returns true when the failure is the caller's input, not a
// system fault.
func IsClientError(err error) bool {
	var transition *TransitionError
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrDuplicateAccountNo) ||
		errors.Is(err, ErrEmptyReason) ||
		errors.Is(err, ErrSelfApproval) ||
		errors.As(err, &transition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}
