/*
handlers_test.go - HTTP contract tests

Tests for:
- Login, bearer resolution, and the 401 gate
- Request submission with server-side code derivation
- Approve/reject flow over HTTP, including the conflict mapping
- Account listing filters and the exist endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coa-engine/auth"
	"github.com/warp/coa-engine/coderule"
	"github.com/warp/coa-engine/factory"
	"github.com/warp/coa-engine/store/sqlite"
	"github.com/warp/coa-engine/workflow"
)

// =============================================================================
// TEST SERVER
// =============================================================================

type testServer struct {
	server *httptest.Server
	store  *sqlite.Store

	makerToken   string
	checkerToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Seed the shipped rules
	rules, err := factory.NewRuleFactory().ParseRules(factory.SeedRulesJSON)
	require.NoError(t, err)
	for _, rule := range rules {
		require.NoError(t, store.SaveRule(ctx, rule))
	}

	// Two users so the maker-checker split can be exercised
	for _, u := range []struct {
		email, name, role string
	}{
		{"maker@example.com", "Mia Maker", "maker"},
		{"checker@example.com", "Chan Checker", "checker"},
	} {
		hash, err := auth.HashPassword("s3cret")
		require.NoError(t, err)
		require.NoError(t, store.SaveUser(ctx, &auth.User{
			Email:        u.email,
			FullName:     u.name,
			PasswordHash: hash,
			Roles:        []string{u.role},
		}))
	}

	handler := NewHandler(store)
	require.NoError(t, handler.Catalog.Load(ctx))

	ts := &testServer{
		server: httptest.NewServer(NewRouter(handler)),
		store:  store,
	}
	t.Cleanup(ts.server.Close)

	ts.makerToken = ts.login(t, "maker@example.com")
	ts.checkerToken = ts.login(t, "checker@example.com")
	return ts
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	var resp LoginResponse
	status := ts.do(t, http.MethodPost, "/api/auth/login", "",
		LoginRequest{Email: email, Password: "s3cret"}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.Session.Token)
	return resp.Session.Token
}

// do issues a request and decodes the response into out when non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		require.NoError(t, json.NewEncoder(reqBody).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// cardRequest builds a valid CREATE submission for the seeded LIAB rule.
func cardRequest(accountNo string) CreateRequestRequest {
	return CreateRequestRequest{
		Data: workflow.AccountData{
			AccountNo: accountNo,
			Code:      "LIAB:CARD-USD.VISA",
			Name:      "Card payable " + accountNo,
			Type:      workflow.TypeLiability,
			Currency:  "USD",
			Status:    "ACTIVE",
		},
		Selection: &SelectionDTO{
			Type:  "LIAB",
			Group: "CARD",
			Steps: map[int]string{201: "USD", 202: "VISA"},
		},
	}
}

// =============================================================================
// AUTH
// =============================================================================

func TestLoginAndProfile(t *testing.T) {
	ts := newTestServer(t)

	var profile auth.Profile
	status := ts.do(t, http.MethodGet, "/api/auth/profile", ts.makerToken, nil, &profile)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "maker@example.com", profile.Email)
	assert.True(t, profile.HasRole("maker"))
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized,
		ts.do(t, http.MethodGet, "/api/coa-accounts", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized,
		ts.do(t, http.MethodGet, "/api/request-coa-accounts", "bogus-token", nil, nil))
}

func TestBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	status := ts.do(t, http.MethodPost, "/api/auth/login", "",
		LoginRequest{Email: "maker@example.com", Password: "wrong"}, nil)

	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogoutKillsSession(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusNoContent,
		ts.do(t, http.MethodPost, "/api/auth/logout", ts.makerToken, nil, nil))

	assert.Equal(t, http.StatusUnauthorized,
		ts.do(t, http.MethodGet, "/api/auth/profile", ts.makerToken, nil, nil))
}

// =============================================================================
// RULES AND CATEGORIES
// =============================================================================

func TestListRules(t *testing.T) {
	ts := newTestServer(t)

	var rules []json.RawMessage
	status := ts.do(t, http.MethodGet, "/api/coa-rules", ts.makerToken, nil, &rules)

	require.Equal(t, http.StatusOK, status)
	assert.Len(t, rules, 5)
}

func TestSaveRuleValues(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	id, err := ts.store.SaveCategory(ctx, "CURRENCY", "Currency")
	require.NoError(t, err)

	status := ts.do(t, http.MethodPost, "/api/rule-categories/values", ts.makerToken,
		SaveRuleValuesRequest{
			CategoryID: id,
			Data:       []coderule.CategoryValue{{Name: "US Dollar", Value: "USD"}},
		}, nil)
	require.Equal(t, http.StatusNoContent, status)

	var categories []json.RawMessage
	status = ts.do(t, http.MethodGet, "/api/rule-categories", ts.makerToken, nil, &categories)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, categories, 1)
}

// =============================================================================
// REQUEST FLOW
// =============================================================================

func TestCreateApproveFlow(t *testing.T) {
	ts := newTestServer(t)

	// Maker submits; the server derives and stores the code analysis
	var created RequestDTO
	status := ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken,
		cardRequest("2001"), &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "PENDING", created.Status)
	require.NotNil(t, created.Analysis)
	assert.Equal(t, "LIAB:CARD-USD.VISA", created.Analysis.Code)

	// Maker cannot check their own request
	status = ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/approve",
		ts.makerToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Checker approves and the account materializes
	var approved RequestDTO
	status = ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/approve",
		ts.checkerToken, nil, &approved)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "APPROVED", approved.Status)
	require.NotNil(t, approved.Checker)
	assert.Equal(t, "checker@example.com", approved.Checker.Email)

	var exist ExistResponse
	status = ts.do(t, http.MethodGet, "/api/coa-accounts/2001/exist", ts.makerToken, nil, &exist)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, exist.Exists)

	// A second approve is a conflict, not a silent success
	status = ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/approve",
		ts.checkerToken, nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestRejectFlow(t *testing.T) {
	ts := newTestServer(t)

	var created RequestDTO
	status := ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken,
		cardRequest("2001"), &created)
	require.Equal(t, http.StatusCreated, status)

	// Missing reason is rejected
	status = ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/reject",
		ts.checkerToken, RejectRequestRequest{Reason: "  "}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	var rejected RequestDTO
	status = ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/reject",
		ts.checkerToken, RejectRequestRequest{Reason: "wrong network"}, &rejected)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "REJECTED", rejected.Status)
	assert.Equal(t, "wrong network", rejected.RejectionReason)

	// No account materialized
	var exist ExistResponse
	ts.do(t, http.MethodGet, "/api/coa-accounts/2001/exist", ts.makerToken, nil, &exist)
	assert.False(t, exist.Exists)
}

func TestCreateRequestCodeMismatch(t *testing.T) {
	ts := newTestServer(t)

	body := cardRequest("2001")
	body.Data.Code = "LIAB:CARD-USD.MC" // does not match the selection

	status := ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken, body, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestCreateRequestDuplicateNumber(t *testing.T) {
	ts := newTestServer(t)

	var created RequestDTO
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken, cardRequest("2001"), &created))
	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/approve", ts.checkerToken, nil, nil))

	status := ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken, cardRequest("2001"), nil)

	assert.Equal(t, http.StatusConflict, status)
}

func TestListRequestsPendingCount(t *testing.T) {
	ts := newTestServer(t)

	var first RequestDTO
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken, cardRequest("2001"), &first))
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken, cardRequest("2002"), nil))
	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+first.ID+"/approve", ts.checkerToken, nil, nil))

	var listing RequestListResponse
	status := ts.do(t, http.MethodGet, "/api/request-coa-accounts", ts.makerToken, nil, &listing)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, listing.Total)
	assert.Equal(t, 1, listing.TotalPendingRequest)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccountListingAndDetail(t *testing.T) {
	ts := newTestServer(t)

	// Materialize two accounts through the workflow
	for _, no := range []string{"2001", "2002"} {
		var created RequestDTO
		require.Equal(t, http.StatusCreated,
			ts.do(t, http.MethodPost, "/api/request-coa-accounts", ts.makerToken, cardRequest(no), &created))
		require.Equal(t, http.StatusOK,
			ts.do(t, http.MethodPost, "/api/request-coa-accounts/"+created.ID+"/approve", ts.checkerToken, nil, nil))
	}

	var listing AccountListResponse
	status := ts.do(t, http.MethodGet, "/api/coa-accounts?type=LIAB&search=2001", ts.makerToken, nil, &listing)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, listing.Total)
	account := listing.Data[0]
	assert.Equal(t, "LIAB:CARD-USD.VISA", account.Code)

	var detail AccountDTO
	status = ts.do(t, http.MethodGet, "/api/coa-accounts/"+strconv.FormatInt(account.ID, 10), ts.makerToken, nil, &detail)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2001", detail.AccountNo)

	assert.Equal(t, http.StatusNotFound,
		ts.do(t, http.MethodGet, "/api/coa-accounts/99999", ts.makerToken, nil, nil))
}
