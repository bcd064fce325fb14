/*
service.go - Request lifecycle orchestration

PURPOSE:
  RequestService drives the maker-checker lifecycle over persisted
  requests: creation of CREATE/EDIT requests, in-place update of a still
  pending request, and the terminal approve/reject transitions. On
  approval the account payload is materialized into the accounts store.

TRANSITION GUARDS:
  - Only PENDING requests can be updated, approved, or rejected.
  - A decided request never transitions again; a second attempt returns a
    TransitionError, not a silent success.
  - The checker must differ from the maker (two-party control).
  - Rejection requires a non-empty reason.

SEE ALSO:
  - draft.go:  Produces the payloads submitted here
  - types.go:  Request/Account definitions
*/
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/coa-engine/coderule"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// RequestStore persists maker-checker requests.
type RequestStore interface {
	SaveRequest(ctx context.Context, req *Request) error
	UpdateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
}

// AccountStore persists accounts and answers lookups.
type AccountStore interface {
	AccountLookup
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByNo(ctx context.Context, accountNo string) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error
	UpdateAccount(ctx context.Context, account *Account) error
}

// =============================================================================
// REQUEST SERVICE
// =============================================================================

// RequestService orchestrates the request lifecycle.
type RequestService struct {
	Requests RequestStore
	Accounts AccountStore

	// now is swappable in tests.
	now func() time.Time
}

// NewRequestService wires a request service over the given stores.
func NewRequestService(requests RequestStore, accounts AccountStore) *RequestService {
	return &RequestService{Requests: requests, Accounts: accounts, now: time.Now}
}

// CreateRequest submits a CREATE request for a new account. The payload is
// expected to come from a validated draft; the duplicate check is repeated
// here server-side because the client-side result may be stale.
func (s *RequestService) CreateRequest(ctx context.Context, maker Actor, data AccountData, analysis *coderule.CodeAnalysis) (*Request, error) {
	if err := s.checkCreateData(ctx, data); err != nil {
		return nil, err
	}

	now := s.now()
	req := &Request{
		ID:        uuid.NewString(),
		Type:      RequestCreate,
		Status:    StatusPending,
		Maker:     maker,
		Data:      data,
		Analysis:  analysis,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Requests.SaveRequest(ctx, req); err != nil {
		return nil, &SubmissionError{Op: "create request", Err: err}
	}
	return req, nil
}

// UpdateRequest replaces the payload of a still-pending request in place.
func (s *RequestService) UpdateRequest(ctx context.Context, requestID string, maker Actor, data AccountData, analysis *coderule.CodeAnalysis) (*Request, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return nil, &TransitionError{RequestID: requestID, Status: req.Status, Action: "update"}
	}

	if req.Type == RequestCreate {
		// Only re-check collisions when the number actually changed.
		if data.AccountNo != req.Data.AccountNo {
			if err := s.checkCreateData(ctx, data); err != nil {
				return nil, err
			}
		}
	}

	req.Data = data
	if analysis != nil {
		req.Analysis = analysis
	}
	req.UpdatedAt = s.now()
	if err := s.Requests.UpdateRequest(ctx, req); err != nil {
		return nil, &SubmissionError{Op: "update request", Err: err}
	}
	return req, nil
}

// CreateEditRequest submits a reduced-field EDIT request sourced from an
// existing approved account. Only account number, status, name, and
// description are editable; everything else is immutable post-approval.
func (s *RequestService) CreateEditRequest(ctx context.Context, maker Actor, data AccountData) (*Request, error) {
	account, err := s.Accounts.GetAccount(ctx, data.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	// A changed number must not collide; the original number is not a
	// collision with itself.
	if data.AccountNo != account.AccountNo {
		exists, err := s.Accounts.AccountNoExists(ctx, data.AccountNo)
		if err != nil {
			return nil, &SubmissionError{Op: "create edit request", Err: err}
		}
		if exists {
			return nil, ErrDuplicateAccountNo
		}
	}

	now := s.now()
	accountID := account.ID
	req := &Request{
		ID:        uuid.NewString(),
		AccountID: &accountID,
		Type:      RequestEdit,
		Status:    StatusPending,
		Maker:     maker,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Requests.SaveRequest(ctx, req); err != nil {
		return nil, &SubmissionError{Op: "create edit request", Err: err}
	}
	return req, nil
}

// Approve transitions a pending request to APPROVED and materializes its
// payload into the accounts store. Terminal.
func (s *RequestService) Approve(ctx context.Context, requestID string, checker Actor) (*Request, error) {
	req, err := s.loadPending(ctx, requestID, "approve")
	if err != nil {
		return nil, err
	}
	if checker.ID == req.Maker.ID {
		return nil, ErrSelfApproval
	}

	if err := s.applyDecision(ctx, req); err != nil {
		return nil, err
	}

	now := s.now()
	req.Status = StatusApproved
	req.Checker = &checker
	req.CheckedAt = &now
	req.UpdatedAt = now

	if err := s.Requests.UpdateRequest(ctx, req); err != nil {
		return nil, &SubmissionError{Op: "approve request", Err: err}
	}
	return req, nil
}

// Reject transitions a pending request to REJECTED. Requires a non-empty
// reason. Terminal.
func (s *RequestService) Reject(ctx context.Context, requestID string, checker Actor, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReason
	}

	req, err := s.loadPending(ctx, requestID, "reject")
	if err != nil {
		return nil, err
	}
	if checker.ID == req.Maker.ID {
		return nil, ErrSelfApproval
	}

	now := s.now()
	req.Status = StatusRejected
	req.Checker = &checker
	req.RejectionReason = strings.TrimSpace(reason)
	req.CheckedAt = &now
	req.UpdatedAt = now

	if err := s.Requests.UpdateRequest(ctx, req); err != nil {
		return nil, &SubmissionError{Op: "reject request", Err: err}
	}
	return req, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *RequestService) loadPending(ctx context.Context, requestID, action string) (*Request, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return nil, &TransitionError{RequestID: requestID, Status: req.Status, Action: action}
	}
	return req, nil
}

func (s *RequestService) checkCreateData(ctx context.Context, data AccountData) error {
	if data.AccountNo == "" || data.Name == "" || data.Currency == "" || data.Status == "" || data.Code == "" {
		return ErrValidationFailed
	}
	if !ValidAccountType(string(data.Type)) {
		return ErrValidationFailed
	}
	exists, err := s.Accounts.AccountNoExists(ctx, data.AccountNo)
	if err != nil {
		return &SubmissionError{Op: "create request", Err: err}
	}
	if exists {
		return ErrDuplicateAccountNo
	}
	return nil
}

// applyDecision materializes an approved request's payload.
func (s *RequestService) applyDecision(ctx context.Context, req *Request) error {
	switch req.Type {
	case RequestCreate:
		now := s.now()
		account := &Account{
			AccountNo:   req.Data.AccountNo,
			Code:        req.Data.Code,
			Name:        req.Data.Name,
			Type:        req.Data.Type,
			Status:      AccountStatus(req.Data.Status),
			Currency:    req.Data.Currency,
			Provider:    req.Data.Provider,
			Network:     req.Data.Network,
			Description: req.Data.Description,
			ParentID:    req.Data.ParentID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Accounts.SaveAccount(ctx, account); err != nil {
			return &SubmissionError{Op: "apply create", Err: err}
		}
		return nil

	case RequestEdit:
		account, err := s.Accounts.GetAccount(ctx, req.Data.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAccountNotFound
		}
		account.AccountNo = req.Data.AccountNo
		account.Status = AccountStatus(req.Data.Status)
		if req.Data.Name != "" {
			account.Name = req.Data.Name
		}
		account.Description = req.Data.Description
		account.UpdatedAt = s.now()
		if err := s.Accounts.UpdateAccount(ctx, account); err != nil {
			return &SubmissionError{Op: "apply edit", Err: err}
		}
		return nil

	default:
		return fmt.Errorf("unknown request type %q", req.Type)
	}
}
