/*
handlers.go - HTTP API handlers for the chart-of-accounts back office

PURPOSE:
  Exposes the rule engine and maker-checker workflow via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/login             Credential login, issues a session
    POST   /api/auth/logout            Discards the session
    POST   /api/auth/refresh           Extends the access horizon
    GET    /api/auth/profile           The logged-in profile

  Accounts:
    GET    /api/coa-accounts                    Paginated, filtered listing
    GET    /api/coa-accounts/{id}               Account detail
    GET    /api/coa-accounts/{accountNo}/exist  Duplicate check

  Rules:
    GET    /api/coa-rules              Rule configs for the form catalog
    POST   /api/coa-rules              Save rule configs (admin)

  Categories:
    GET    /api/rule-categories        Value lists with active values
    POST   /api/rule-categories/values Replace one category's values

  Requests:
    GET    /api/request-coa-accounts               Listing + pending count
    POST   /api/request-coa-accounts               Submit CREATE request
    POST   /api/request-coa-accounts/edit          Submit EDIT request
    GET    /api/request-coa-accounts/{id}          Request detail
    PUT    /api/request-coa-accounts/{id}          Edit pending request
    POST   /api/request-coa-accounts/{id}/approve  Checker approves
    POST   /api/request-coa-accounts/{id}/reject   Checker rejects

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store:    Database access
  - Catalog:  Loaded rule catalog (shared with the stores)
  - Requests: Maker-checker lifecycle service
  - Auth:     Session service

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as {error, code} JSON with appropriate HTTP status:
  - 400: Invalid input
  - 401: Missing or dead session
  - 404: Resource not found
  - 409: Conflict (duplicate number, decided request)
  - 422: Validation failures
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup, middleware, bearer-token resolution
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/coa-engine/auth"
	"github.com/warp/coa-engine/coderule"
	"github.com/warp/coa-engine/factory"
	"github.com/warp/coa-engine/store/sqlite"
	"github.com/warp/coa-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Catalog  *coderule.Catalog
	Requests *workflow.RequestService
	Auth     *auth.Service

	ruleFactory *factory.RuleFactory
}

// NewHandler wires a handler over the store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:       store,
		Catalog:     coderule.NewCatalog(store),
		Requests:    workflow.NewRequestService(store, store),
		Auth:        auth.NewService(store, store),
		ruleFactory: factory.NewRuleFactory(),
	}
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Login verifies credentials and issues a session.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	session, profile, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Session: toSessionDTO(session),
		Profile: profile,
	})
}

// Logout discards the bearer session.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshSession extends the access horizon of the bearer session.
// POST /api/auth/refresh
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Auth.Refresh(r.Context(), bearerToken(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// GetProfile returns the logged-in profile.
// GET /api/auth/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Login required")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// ListAccounts returns one page of the chart of accounts.
// GET /api/coa-accounts?type=&status=&currency=&provider=&network=&search=&page=&page_size=
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := workflow.AccountFilter{
		Type:     q.Get("type"),
		Status:   q.Get("status"),
		Currency: q.Get("currency"),
		Provider: q.Get("provider"),
		Network:  q.Get("network"),
		Search:   q.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	filter.Normalize()

	accounts, total, err := h.Store.ListAccounts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list accounts")
		return
	}

	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, AccountListResponse{
		Data:     dtos,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// GetAccount returns one account by id.
// GET /api/coa-accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid account id")
		return
	}

	account, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to get account")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "not_found", "Account not found")
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// AccountExists answers the duplicate account number check.
// GET /api/coa-accounts/{accountNo}/exist
func (h *Handler) AccountExists(w http.ResponseWriter, r *http.Request) {
	accountNo := chi.URLParam(r, "accountNo")
	exists, err := h.Store.AccountNoExists(r.Context(), accountNo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to check account number")
		return
	}
	writeJSON(w, http.StatusOK, ExistResponse{Exists: exists})
}

// =============================================================================
// RULE ENDPOINTS
// =============================================================================

// ListRules returns the rule configs the form catalog is built from.
// GET /api/coa-rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list rules")
		return
	}
	if rules == nil {
		rules = []coderule.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// SaveRules replaces rule configs and reloads the catalog.
// POST /api/coa-rules
func (h *Handler) SaveRules(w http.ResponseWriter, r *http.Request) {
	var rjs []factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&rjs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	rules, err := h.ruleFactory.FromJSON(rjs)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_rule", err.Error())
		return
	}

	for _, rule := range rules {
		if err := h.Store.SaveRule(r.Context(), rule); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to save rule")
			return
		}
	}

	if err := h.Catalog.Load(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to reload catalog")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// =============================================================================
// CATEGORY ENDPOINTS
// =============================================================================

// ListCategories returns all value lists with their active values.
// GET /api/rule-categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []coderule.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// SaveRuleValues replaces one category's value list.
// POST /api/rule-categories/values
func (h *Handler) SaveRuleValues(w http.ResponseWriter, r *http.Request) {
	var req SaveRuleValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if req.CategoryID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "category_id is required")
		return
	}

	if err := h.Store.ReplaceCategoryValues(r.Context(), req.CategoryID, req.Data); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to save values")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// ListRequests returns one page of requests plus the pending badge count.
// GET /api/request-coa-accounts?status=&type=&page=&page_size=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := workflow.RequestFilter{
		Status: workflow.RequestStatus(q.Get("status")),
		Type:   workflow.RequestType(q.Get("type")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	filter.Normalize()

	requests, total, err := h.Store.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list requests")
		return
	}
	pending, err := h.Store.CountPendingRequests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to count pending requests")
		return
	}

	dtos := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, RequestListResponse{
		Data:                dtos,
		Total:               total,
		TotalPendingRequest: pending,
		Page:                filter.Page,
		PageSize:            filter.PageSize,
	})
}

// GetRequest returns one request by id.
// GET /api/request-coa-accounts/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Requests.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to get request")
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, "not_found", "Request not found")
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CreateRequest submits a CREATE request. The server replays the maker's
// selection to derive the code analysis; the submitted code must match.
// POST /api/request-coa-accounts
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	maker, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	analysis, ok := h.deriveAnalysis(r.Context(), w, body.Selection, body.Data.Code)
	if !ok {
		return
	}

	req, err := h.Requests.CreateRequest(r.Context(), maker, body.Data, analysis)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// CreateEditRequest submits the reduced EDIT request for an approved
// account.
// POST /api/request-coa-accounts/edit
func (h *Handler) CreateEditRequest(w http.ResponseWriter, r *http.Request) {
	maker, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body CreateEditRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	req, err := h.Requests.CreateEditRequest(r.Context(), maker, body.Data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// UpdateRequest edits a still-pending request in place.
// PUT /api/request-coa-accounts/{id}
func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	maker, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body UpdateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	var analysis *coderule.CodeAnalysis
	if body.Selection != nil {
		var derived bool
		analysis, derived = h.deriveAnalysis(r.Context(), w, body.Selection, body.Data.Code)
		if !derived {
			return
		}
	}

	req, err := h.Requests.UpdateRequest(r.Context(), chi.URLParam(r, "id"), maker, body.Data, analysis)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ApproveRequest lets a checker approve a pending request.
// POST /api/request-coa-accounts/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	checker, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	req, err := h.Requests.Approve(r.Context(), chi.URLParam(r, "id"), checker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// RejectRequest lets a checker reject a pending request with a reason.
// POST /api/request-coa-accounts/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	checker, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body RejectRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	req, err := h.Requests.Reject(r.Context(), chi.URLParam(r, "id"), checker, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// HELPERS
// =============================================================================

// requireActor resolves the logged-in profile into a workflow actor.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (workflow.Actor, bool) {
	profile := profileFrom(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Login required")
		return workflow.Actor{}, false
	}
	return workflow.Actor{
		ID:       profile.UserID,
		Email:    profile.Email,
		FullName: profile.FullName,
	}, true
}

// deriveAnalysis replays the maker's selection server-side and checks the
// submitted code against the re-derived one.
func (h *Handler) deriveAnalysis(ctx context.Context, w http.ResponseWriter, sel *SelectionDTO, submittedCode string) (*coderule.CodeAnalysis, bool) {
	if sel == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "selection is required")
		return nil, false
	}
	if !h.Catalog.Loaded() {
		if err := h.Catalog.Load(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Rule catalog unavailable")
			return nil, false
		}
	}

	selection := coderule.NewSelection(h.Catalog)
	selection.SetType(sel.Type)
	if sel.Group != "" {
		selection.SetGroup(sel.Group)
	}
	if sel.GroupValue != "" {
		selection.SetGroupValue(sel.GroupValue)
	}
	for stepID, value := range sel.Steps {
		selection.SetStepValue(stepID, value)
	}

	analysis, err := selection.Analysis()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_selection", "Selection does not resolve to a rule")
		return nil, false
	}
	if analysis.Code != submittedCode {
		writeError(w, http.StatusUnprocessableEntity, "code_mismatch", "Submitted code does not match the selection")
		return nil, false
	}
	return analysis, true
}

func toSessionDTO(session *auth.Session) SessionDTO {
	return SessionDTO{
		Token:            session.Token,
		AccessExpiresAt:  session.AccessExpiresAt.UTC().Format(time.RFC3339),
		RefreshExpiresAt: session.RefreshExpiresAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeDomainError maps workflow errors onto the HTTP contract.
func writeDomainError(w http.ResponseWriter, err error) {
	var transition *workflow.TransitionError
	switch {
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "not_pending", transition.Error())
	case errors.Is(err, workflow.ErrDuplicateAccountNo):
		writeError(w, http.StatusConflict, "duplicate_account_no", "This account no. already exists!")
	case errors.Is(err, workflow.ErrSelfApproval):
		writeError(w, http.StatusForbidden, "self_approval", "Maker cannot check own request")
	case errors.Is(err, workflow.ErrEmptyReason):
		writeError(w, http.StatusUnprocessableEntity, "empty_reason", "Rejection reason is required")
	case errors.Is(err, workflow.ErrValidationFailed):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "Request payload failed validation")
	case workflow.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "Request failed")
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized", "Session is not valid")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "Session lookup failed")
	}
}
