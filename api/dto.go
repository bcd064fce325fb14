/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: RuleJSON type
*/
package api

import (
	"time"

	"github.com/warp/coa-engine/auth"
	"github.com/warp/coa-engine/coderule"
	"github.com/warp/coa-engine/workflow"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the single error shape every endpoint returns.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionDTO carries the issued token and its horizons.
type SessionDTO struct {
	Token            string `json:"token"`
	AccessExpiresAt  string `json:"access_expires_at"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
}

// LoginResponse bundles the session with the profile.
type LoginResponse struct {
	Session SessionDTO    `json:"session"`
	Profile *auth.Profile `json:"profile"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents a chart-of-accounts record in API responses.
type AccountDTO struct {
	ID          int64  `json:"id"`
	AccountNo   string `json:"account_no"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Currency    string `json:"currency,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Network     string `json:"network,omitempty"`
	Description string `json:"description,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Balance     string `json:"balance"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// AccountListResponse is one page of accounts.
type AccountListResponse struct {
	Data     []AccountDTO `json:"data"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// ExistResponse answers the account-number duplicate check.
type ExistResponse struct {
	Exists bool `json:"exists"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// SelectionDTO carries the maker's form selection so the server can replay
// it: the generated code is never parsed back, it is re-derived.
type SelectionDTO struct {
	Type       string         `json:"type"`
	Group      string         `json:"group,omitempty"`
	GroupValue string         `json:"group_value,omitempty"`
	Steps      map[int]string `json:"steps,omitempty"`
}

// CreateRequestRequest submits a CREATE request.
type CreateRequestRequest struct {
	Data      workflow.AccountData `json:"data"`
	Selection *SelectionDTO        `json:"selection"`
}

// UpdateRequestRequest edits a still-pending request in place.
type UpdateRequestRequest struct {
	Data      workflow.AccountData `json:"data"`
	Selection *SelectionDTO        `json:"selection,omitempty"`
}

// CreateEditRequestRequest submits the reduced EDIT request.
type CreateEditRequestRequest struct {
	Data workflow.AccountData `json:"data"`
}

// RejectRequestRequest carries the mandatory rejection reason.
type RejectRequestRequest struct {
	Reason string `json:"reason"`
}

// ActorDTO identifies a maker or checker in responses.
type ActorDTO struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// RequestDTO represents a maker-checker request in API responses.
type RequestDTO struct {
	ID              string                 `json:"id"`
	AccountID       *int64                 `json:"account_id,omitempty"`
	Type            string                 `json:"type"`
	Status          string                 `json:"status"`
	Maker           ActorDTO               `json:"maker"`
	Checker         *ActorDTO              `json:"checker,omitempty"`
	Data            workflow.AccountData   `json:"data"`
	Analysis        *coderule.CodeAnalysis `json:"code_analysis,omitempty"`
	RejectionReason string                 `json:"rejection_reason,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
	CheckedAt       *string                `json:"checked_at,omitempty"`
}

// RequestListResponse is one page of requests with the pending badge count.
type RequestListResponse struct {
	Data                []RequestDTO `json:"data"`
	Total               int          `json:"total"`
	TotalPendingRequest int          `json:"total_pending_request"`
	Page                int          `json:"page"`
	PageSize            int          `json:"page_size"`
}

// =============================================================================
// RULES AND CATEGORIES
// =============================================================================

// SaveRuleValuesRequest replaces one category's value list.
type SaveRuleValuesRequest struct {
	CategoryID int64                    `json:"category_id"`
	Data       []coderule.CategoryValue `json:"data"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountDTO(a workflow.Account) AccountDTO {
	return AccountDTO{
		ID:          a.ID,
		AccountNo:   a.AccountNo,
		Code:        a.Code,
		Name:        a.Name,
		Type:        string(a.Type),
		Status:      string(a.Status),
		Currency:    a.Currency,
		Provider:    a.Provider,
		Network:     a.Network,
		Description: a.Description,
		ParentID:    a.ParentID,
		Balance:     a.Balance.String(),
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toRequestDTO(req *workflow.Request) RequestDTO {
	dto := RequestDTO{
		ID:              req.ID,
		AccountID:       req.AccountID,
		Type:            string(req.Type),
		Status:          string(req.Status),
		Maker:           ActorDTO(req.Maker),
		Data:            req.Data,
		Analysis:        req.Analysis,
		RejectionReason: req.RejectionReason,
		CreatedAt:       req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       req.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if req.Checker != nil {
		checker := ActorDTO(*req.Checker)
		dto.Checker = &checker
	}
	if req.CheckedAt != nil {
		s := req.CheckedAt.UTC().Format(time.RFC3339)
		dto.CheckedAt = &s
	}
	return dto
}
