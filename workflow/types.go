/*
Package workflow implements the chart-of-accounts maker-checker workflow.

PURPOSE:
  Ties the rule engine (coderule) to the account domain: a maker drafts an
  account CREATE or EDIT request through a form session, the validation
  engine gates submission, and a different actor (the checker) approves or
  rejects the pending request. Decisions are terminal.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:     A chart-of-accounts record (server-owned)
  - Request:     A maker-checker record wrapping an account payload
  - AccountData: The account payload carried by a request

REQUEST FLOW:
  Draft -> Submitting -> Pending -> { Approved | Rejected }

  A pending request may be re-opened into a Draft for in-place editing;
  approved and rejected requests are immutable.

SEE ALSO:
  - draft.go:    The form session
  - validate.go: The validation engine
  - service.go:  Request lifecycle transitions
*/
package workflow

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/coa-engine/coderule"
)

// =============================================================================
// ACCOUNT
// =============================================================================

// AccountType is the top-level classification; it doubles as the leading
// segment of the account code.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIAB"
	TypeEquity    AccountType = "EQUITY"
	TypeRevenue   AccountType = "REV"
	TypeExpense   AccountType = "EXP"
)

// ValidAccountType reports whether s is one of the allowed account types.
func ValidAccountType(s string) bool {
	switch AccountType(s) {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountInactive AccountStatus = "INACTIVE"
)

// Account is a chart-of-accounts record. The remote system of record owns
// it; the workflow only produces write-intent payloads.
type Account struct {
	ID          int64
	AccountNo   string
	Code        string
	Name        string
	Type        AccountType
	Status      AccountStatus
	Currency    string
	Provider    string
	Network     string
	Description string
	ParentID    *int64
	Balance     decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// REQUEST - Maker-checker record
// =============================================================================

type RequestType string

const (
	RequestCreate RequestType = "CREATE"
	RequestEdit   RequestType = "EDIT"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

// Actor identifies a maker or checker.
type Actor struct {
	ID       int64
	Email    string
	FullName string
}

// AccountData is the account payload carried by a request. CREATE requests
// fill the full set; EDIT requests only carry account id, account number,
// status, name, and description - everything else is immutable post-approval.
type AccountData struct {
	AccountID   int64       `json:"account_id,omitempty"`
	AccountNo   string      `json:"account_no"`
	Code        string      `json:"code,omitempty"`
	Name        string      `json:"name,omitempty"`
	Type        AccountType `json:"type,omitempty"`
	Currency    string      `json:"currency,omitempty"`
	Status      string      `json:"status"`
	Provider    string      `json:"provider,omitempty"`
	Network     string      `json:"network,omitempty"`
	Description string      `json:"description,omitempty"`
	ParentID    *int64      `json:"parent_id,omitempty"`
}

// Request is a persisted maker-checker record. Once decided it never
// transitions again.
type Request struct {
	ID        string
	AccountID *int64 // set for EDIT requests sourced from an account
	Type      RequestType
	Status    RequestStatus

	Maker   Actor
	Checker *Actor

	Data            AccountData
	Analysis        *coderule.CodeAnalysis // server decomposition of Data.Code
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
	CheckedAt *time.Time
}

// Decided reports whether the request reached a terminal status.
func (r *Request) Decided() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// =============================================================================
// LISTING FILTERS
// =============================================================================

// AccountFilter narrows an account listing. Zero values mean "no filter";
// Search matches account number, code, and name as a substring.
type AccountFilter struct {
	Type     string
	Status   string
	Currency string
	Provider string
	Network  string
	Search   string

	Page     int // 1-based; 0 means first page
	PageSize int // 0 means DefaultPageSize
}

// DefaultPageSize caps unpaged listings.
const DefaultPageSize = 20

// Normalize fills the paging defaults in place.
func (f *AccountFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
}

// RequestFilter narrows a request listing.
type RequestFilter struct {
	Status RequestStatus // empty means all
	Type   RequestType   // empty means all

	Page     int
	PageSize int
}

func (f *RequestFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
}
