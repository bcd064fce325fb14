/*
service_test.go - Request lifecycle tests

KEY SCENARIOS:
  - CREATE request submission with server-side duplicate rejection
  - Approve materializes the account; reject records the reason
  - Decided requests never transition again
  - Maker cannot check their own request
*/
package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// IN-MEMORY STORES
// =============================================================================

type memoryStore struct {
	requests map[string]*Request
	accounts map[int64]*Account
	nextID   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		requests: make(map[string]*Request),
		accounts: make(map[int64]*Account),
		nextID:   1,
	}
}

func (s *memoryStore) SaveRequest(ctx context.Context, req *Request) error {
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *memoryStore) UpdateRequest(ctx context.Context, req *Request) error {
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *memoryStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (s *memoryStore) AccountNoExists(ctx context.Context, accountNo string) (bool, error) {
	for _, a := range s.accounts {
		if a.AccountNo == accountNo {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) GetAccountByNo(ctx context.Context, accountNo string) (*Account, error) {
	for _, a := range s.accounts {
		if a.AccountNo == accountNo {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) SaveAccount(ctx context.Context, account *Account) error {
	account.ID = s.nextID
	s.nextID++
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *memoryStore) UpdateAccount(ctx context.Context, account *Account) error {
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

var (
	maker   = Actor{ID: 1, Email: "maker@example.com", FullName: "Mia Maker"}
	checker = Actor{ID: 2, Email: "checker@example.com", FullName: "Chan Checker"}
)

func newTestService(t *testing.T) (*RequestService, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	return NewRequestService(store, store), store
}

func createData(accountNo string) AccountData {
	return AccountData{
		AccountNo: accountNo,
		Code:      "ASSET:USD",
		Name:      "Cash on hand",
		Type:      TypeAsset,
		Currency:  "USD",
		Status:    "ACTIVE",
	}
}

func submitCreate(t *testing.T, svc *RequestService, accountNo string) *Request {
	t.Helper()
	req, err := svc.CreateRequest(context.Background(), maker, createData(accountNo), nil)
	require.NoError(t, err)
	return req
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestCreateRequestStartsPending(t *testing.T) {
	svc, store := newTestService(t)

	req := submitCreate(t, svc, "1001")

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, maker, req.Maker)
	assert.Nil(t, req.Checker)
	assert.False(t, req.Decided())

	stored, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCreateRequestRejectsTakenAccountNo(t *testing.T) {
	// GIVEN an approved account numbered "1001"
	svc, store := newTestService(t)
	require.NoError(t, store.SaveAccount(context.Background(), &Account{AccountNo: "1001"}))

	// WHEN submitting a request reusing the number
	_, err := svc.CreateRequest(context.Background(), maker, createData("1001"), nil)

	// THEN the server-side check rejects it regardless of client state
	require.ErrorIs(t, err, ErrDuplicateAccountNo)
	assert.True(t, IsClientError(err))
}

func TestCreateRequestRejectsIncompletePayload(t *testing.T) {
	svc, _ := newTestService(t)

	data := createData("1001")
	data.Currency = ""
	_, err := svc.CreateRequest(context.Background(), maker, data, nil)

	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestUpdateRequestOnlyWhilePending(t *testing.T) {
	svc, _ := newTestService(t)
	req := submitCreate(t, svc, "1001")

	// Pending requests can be edited in place
	updated := createData("1002")
	got, err := svc.UpdateRequest(context.Background(), req.ID, maker, updated, nil)
	require.NoError(t, err)
	assert.Equal(t, "1002", got.Data.AccountNo)

	// Once approved the same edit is refused
	_, err = svc.Approve(context.Background(), req.ID, checker)
	require.NoError(t, err)

	_, err = svc.UpdateRequest(context.Background(), req.ID, maker, updated, nil)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, StatusApproved, transitionErr.Status)
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApproveMaterializesAccount(t *testing.T) {
	svc, store := newTestService(t)
	req := submitCreate(t, svc, "1001")

	got, err := svc.Approve(context.Background(), req.ID, checker)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.Checker)
	assert.Equal(t, checker.ID, got.Checker.ID)
	assert.NotNil(t, got.CheckedAt)
	assert.True(t, got.Decided())

	account, err := store.GetAccountByNo(context.Background(), "1001")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "ASSET:USD", account.Code)
	assert.Equal(t, TypeAsset, account.Type)
	assert.Equal(t, AccountActive, account.Status)
}

func TestRejectRecordsReason(t *testing.T) {
	svc, store := newTestService(t)
	req := submitCreate(t, svc, "1001")

	got, err := svc.Reject(context.Background(), req.ID, checker, "  wrong currency  ")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "wrong currency", got.RejectionReason)
	assert.NotNil(t, got.CheckedAt)

	// No account materializes from a rejection
	account, err := store.GetAccountByNo(context.Background(), "1001")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestRejectRequiresReason(t *testing.T) {
	svc, _ := newTestService(t)
	req := submitCreate(t, svc, "1001")

	_, err := svc.Reject(context.Background(), req.ID, checker, "   ")

	require.ErrorIs(t, err, ErrEmptyReason)
}

func TestDecidedRequestsNeverTransitionAgain(t *testing.T) {
	svc, _ := newTestService(t)

	approved := submitCreate(t, svc, "1001")
	_, err := svc.Approve(context.Background(), approved.ID, checker)
	require.NoError(t, err)

	rejected := submitCreate(t, svc, "1002")
	_, err = svc.Reject(context.Background(), rejected.ID, checker, "no")
	require.NoError(t, err)

	var transitionErr *TransitionError

	// A second decision on either terminal status fails loudly
	_, err = svc.Approve(context.Background(), approved.ID, checker)
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, StatusApproved, transitionErr.Status)

	_, err = svc.Reject(context.Background(), approved.ID, checker, "late")
	require.ErrorAs(t, err, &transitionErr)

	_, err = svc.Approve(context.Background(), rejected.ID, checker)
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, StatusRejected, transitionErr.Status)
}

func TestMakerCannotCheckOwnRequest(t *testing.T) {
	svc, _ := newTestService(t)
	req := submitCreate(t, svc, "1001")

	_, err := svc.Approve(context.Background(), req.ID, maker)
	require.ErrorIs(t, err, ErrSelfApproval)

	_, err = svc.Reject(context.Background(), req.ID, maker, "mine")
	require.ErrorIs(t, err, ErrSelfApproval)

	// The request is untouched and another checker can still decide it
	got, err := svc.Approve(context.Background(), req.ID, checker)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestApproveUnknownRequest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Approve(context.Background(), "no-such-id", checker)

	require.ErrorIs(t, err, ErrRequestNotFound)
	assert.True(t, IsNotFound(err))
}

// =============================================================================
// EDIT REQUESTS
// =============================================================================

func TestEditRequestLifecycle(t *testing.T) {
	// GIVEN an approved account
	svc, store := newTestService(t)
	ctx := context.Background()
	account := &Account{AccountNo: "1001", Code: "ASSET:USD", Name: "Cash", Type: TypeAsset, Status: AccountActive, Currency: "USD"}
	require.NoError(t, store.SaveAccount(ctx, account))

	// WHEN submitting and approving an EDIT of its mutable fields
	req, err := svc.CreateEditRequest(ctx, maker, AccountData{
		AccountID:   account.ID,
		AccountNo:   "1001",
		Name:        "Petty cash",
		Status:      "INACTIVE",
		Description: "till money",
	})
	require.NoError(t, err)
	assert.Equal(t, RequestEdit, req.Type)
	require.NotNil(t, req.AccountID)
	assert.Equal(t, account.ID, *req.AccountID)

	_, err = svc.Approve(ctx, req.ID, checker)
	require.NoError(t, err)

	// THEN the mutable fields change and the immutable ones survive
	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Petty cash", got.Name)
	assert.Equal(t, AccountInactive, got.Status)
	assert.Equal(t, "till money", got.Description)
	assert.Equal(t, "ASSET:USD", got.Code)
	assert.Equal(t, "USD", got.Currency)
}

func TestEditRequestRejectsCollidingNumber(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	first := &Account{AccountNo: "1001", Name: "Cash", Status: AccountActive}
	second := &Account{AccountNo: "1002", Name: "Bank", Status: AccountActive}
	require.NoError(t, store.SaveAccount(ctx, first))
	require.NoError(t, store.SaveAccount(ctx, second))

	// Renumbering onto another account's number is refused
	_, err := svc.CreateEditRequest(ctx, maker, AccountData{AccountID: second.ID, AccountNo: "1001", Status: "ACTIVE"})
	require.ErrorIs(t, err, ErrDuplicateAccountNo)

	// Keeping its own number is not a collision
	_, err = svc.CreateEditRequest(ctx, maker, AccountData{AccountID: second.ID, AccountNo: "1002", Status: "ACTIVE"})
	require.NoError(t, err)
}

func TestEditRequestUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateEditRequest(context.Background(), maker, AccountData{AccountID: 99, AccountNo: "1001", Status: "ACTIVE"})

	require.ErrorIs(t, err, ErrAccountNotFound)
}
