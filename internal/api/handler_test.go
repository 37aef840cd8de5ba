package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/middleware"
)

const secret = "api-test-secret"

type fakeService struct {
	summary     *ledger.Summary
	entries     []ledger.Entry
	withdrawals map[uuid.UUID]*ledger.Withdrawal
	verify      *ledger.Verification
	err         error

	lastEntryFilter      ledger.EntryFilter
	lastWithdrawalFilter ledger.WithdrawalFilter
	lastAmount           decimal.Decimal
	lastNote             string
	settled              []string
}

func (f *fakeService) WalletSummary(_ context.Context, owner string, _ int) (*ledger.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.summary
	s.Wallet.OwnerID = owner
	return &s, nil
}

func (f *fakeService) ListEntries(_ context.Context, fl ledger.EntryFilter) ([]ledger.Entry, error) {
	f.lastEntryFilter = fl
	return f.entries, f.err
}

func (f *fakeService) ListWithdrawals(_ context.Context, fl ledger.WithdrawalFilter) ([]ledger.Withdrawal, error) {
	f.lastWithdrawalFilter = fl
	var out []ledger.Withdrawal
	for _, w := range f.withdrawals {
		out = append(out, *w)
	}
	return out, f.err
}

func (f *fakeService) GetWithdrawal(_ context.Context, id uuid.UUID) (*ledger.Withdrawal, error) {
	wd, ok := f.withdrawals[id]
	if !ok {
		return nil, ledger.ErrWithdrawalNotFound
	}
	return wd, nil
}

func (f *fakeService) RequestWithdrawal(_ context.Context, seller string, amount decimal.Decimal) (*ledger.Withdrawal, error) {
	f.lastAmount = amount
	if f.err != nil {
		return nil, f.err
	}
	return &ledger.Withdrawal{ID: uuid.New(), SellerID: seller, Amount: amount, Status: ledger.StatusPending}, nil
}

func (f *fakeService) Approve(_ context.Context, id uuid.UUID, admin, note string) (*ledger.Withdrawal, error) {
	return f.decide(id, admin, note, ledger.StatusApproved)
}

func (f *fakeService) Reject(_ context.Context, id uuid.UUID, admin, note string) (*ledger.Withdrawal, error) {
	return f.decide(id, admin, note, ledger.StatusRejected)
}

func (f *fakeService) decide(id uuid.UUID, admin, note string, st ledger.WithdrawalStatus) (*ledger.Withdrawal, error) {
	f.lastNote = note
	if f.err != nil {
		return nil, f.err
	}
	wd, ok := f.withdrawals[id]
	if !ok {
		return nil, ledger.ErrWithdrawalNotFound
	}
	wd.Status = st
	wd.ReviewedBy = &admin
	return wd, nil
}

func (f *fakeService) SettleOrder(_ context.Context, orderID string) (*ledger.Entry, error) {
	f.settled = append(f.settled, orderID)
	if f.err != nil {
		return nil, f.err
	}
	ref := orderID
	return &ledger.Entry{ID: uuid.New(), Direction: ledger.DirectionCredit, Source: ledger.SourceOrderSettlement,
		Amount: decimal.RequireFromString("90"), BalanceAfter: decimal.RequireFromString("90"), OrderRef: &ref}, nil
}

func (f *fakeService) VerifyWallet(_ context.Context, id uuid.UUID) (*ledger.Verification, error) {
	if f.verify == nil {
		return nil, ledger.ErrWalletNotFound
	}
	v := *f.verify
	v.WalletID = id
	if !v.Consistent {
		return &v, fmt.Errorf("wallet %s: %w", id, ledger.ErrLedgerMismatch)
	}
	return &v, nil
}

type alertSink struct{ msgs []string }

func (a *alertSink) EnqueueAdminAlert(_ context.Context, _, msg string) error {
	a.msgs = append(a.msgs, msg)
	return nil
}

func setup(t *testing.T, svc *fakeService) (*echo.Echo, *alertSink) {
	t.Helper()
	sink := &alertSink{}
	e := echo.New()
	e.Validator = NewValidator()
	Register(e, NewHandler(svc, zap.NewNop(), WithAlerts(sink)), secret, nil)
	return e, sink
}

func token(t *testing.T, user, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func do(e *echo.Echo, method, path, tok, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestSummary(t *testing.T) {
	svc := &fakeService{summary: &ledger.Summary{Wallet: ledger.Wallet{ID: uuid.New(), Balance: decimal.RequireFromString("12.5")}}}
	e, _ := setup(t, svc)

	rec := do(e, http.MethodGet, "/wallet/me", token(t, "seller-1", middleware.RoleSeller), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	wallet := body["wallet"].(map[string]any)
	assert.Equal(t, "12.50", wallet["balance"])
	assert.Equal(t, "seller-1", wallet["owner_id"])
	assert.Empty(t, body["recent_transactions"])

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/wallet/me", "", "").Code)
	assert.Equal(t, http.StatusForbidden,
		do(e, http.MethodGet, "/wallet/me", token(t, "svc", middleware.RoleFulfillment), "").Code)
}

func TestTransactions_ScopedToCaller(t *testing.T) {
	svc := &fakeService{}
	e, _ := setup(t, svc)

	rec := do(e, http.MethodGet, "/wallet/transactions?owner_id=seller-2&limit=10", token(t, "seller-1", middleware.RoleSeller), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "seller-1", svc.lastEntryFilter.OwnerID)
	assert.Equal(t, 10, svc.lastEntryFilter.Limit)

	rec = do(e, http.MethodGet, "/wallet/transactions?owner_id=seller-2", token(t, "admin-1", middleware.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "seller-2", svc.lastEntryFilter.OwnerID)

	rec = do(e, http.MethodGet, "/wallet/transactions?limit=5000", token(t, "seller-1", middleware.RoleSeller), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawals_StatusFilter(t *testing.T) {
	svc := &fakeService{}
	e, _ := setup(t, svc)

	rec := do(e, http.MethodGet, "/wallet/withdrawals?status=pending", token(t, "admin-1", middleware.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ledger.StatusPending, svc.lastWithdrawalFilter.Status)
	assert.Empty(t, svc.lastWithdrawalFilter.SellerID)

	rec = do(e, http.MethodGet, "/wallet/withdrawals?status=paid", token(t, "admin-1", middleware.RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawal_HiddenFromOtherSellers(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{withdrawals: map[uuid.UUID]*ledger.Withdrawal{
		id: {ID: id, SellerID: "seller-1", Status: ledger.StatusPending, Amount: decimal.RequireFromString("40")},
	}}
	e, _ := setup(t, svc)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/wallet/withdrawals/"+id.String(), token(t, "seller-1", middleware.RoleSeller), "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/wallet/withdrawals/"+id.String(), token(t, "seller-2", middleware.RoleSeller), "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/wallet/withdrawals/"+id.String(), token(t, "admin-1", middleware.RoleAdmin), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/wallet/withdrawals/nope", token(t, "admin-1", middleware.RoleAdmin), "").Code)
}

func TestCreateWithdrawal(t *testing.T) {
	svc := &fakeService{}
	e, _ := setup(t, svc)
	seller := token(t, "seller-1", middleware.RoleSeller)

	rec := do(e, http.MethodPost, "/wallet/withdrawals", seller, `{"amount":"40.00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decimal.RequireFromString("40").Equal(svc.lastAmount))
	wd := decode(t, rec)["withdrawal"].(map[string]any)
	assert.Equal(t, "PENDING", wd["status"])
	assert.Equal(t, "40.00", wd["amount"])

	rec = do(e, http.MethodPost, "/wallet/withdrawals", seller, `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/wallet/withdrawals", token(t, "admin-1", middleware.RoleAdmin), `{"amount":"1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{ledger.ErrInvalidAmount, http.StatusBadRequest, ledger.ErrInvalidAmount.Error()},
		{ledger.ErrMissingPayoutDestination, http.StatusBadRequest, ledger.ErrMissingPayoutDestination.Error()},
		{fmt.Errorf("seller seller-1: %w", ledger.ErrInsufficientBalance), http.StatusBadRequest, ledger.ErrInsufficientBalance.Error()},
		{ledger.ErrLockTimeout, http.StatusServiceUnavailable, ledger.ErrLockTimeout.Error()},
		{ledger.ErrNegativeBalance, http.StatusInternalServerError, "internal error"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			svc := &fakeService{err: tc.err}
			e, _ := setup(t, svc)
			rec := do(e, http.MethodPost, "/wallet/withdrawals", token(t, "seller-1", middleware.RoleSeller), `{"amount":"10"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, decode(t, rec)["error"])
		})
	}
}

func TestErrorMapping_RetryAfterAndAlert(t *testing.T) {
	svc := &fakeService{err: ledger.ErrLockTimeout}
	e, sink := setup(t, svc)
	rec := do(e, http.MethodPost, "/wallet/withdrawals", token(t, "seller-1", middleware.RoleSeller), `{"amount":"10"}`)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Empty(t, sink.msgs)

	svc.err = ledger.ErrNegativeBalance
	do(e, http.MethodPost, "/wallet/withdrawals", token(t, "seller-1", middleware.RoleSeller), `{"amount":"10"}`)
	assert.Len(t, sink.msgs, 1)
}

func TestReview(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{withdrawals: map[uuid.UUID]*ledger.Withdrawal{
		id: {ID: id, SellerID: "seller-1", Status: ledger.StatusPending},
	}}
	e, _ := setup(t, svc)
	admin := token(t, "admin-1", middleware.RoleAdmin)

	rec := do(e, http.MethodPost, "/admin/withdrawals/"+id.String()+"/approve", token(t, "seller-1", middleware.RoleSeller), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodPost, "/admin/withdrawals/"+id.String()+"/approve", admin, `{"admin_note":"paid via NEFT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid via NEFT", svc.lastNote)
	body := decode(t, rec)
	assert.Equal(t, "withdrawal approved", body["message"])
	assert.Equal(t, "admin-1", body["withdrawal"].(map[string]any)["reviewed_by"])

	rec = do(e, http.MethodPost, "/admin/withdrawals/"+id.String()+"/reject", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.lastNote)

	long := `{"admin_note":"` + strings.Repeat("x", 1001) + `"}`
	rec = do(e, http.MethodPost, "/admin/withdrawals/"+id.String()+"/reject", admin, long)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = ledger.ErrInvalidStateTransition
	rec = do(e, http.MethodPost, "/admin/withdrawals/"+id.String()+"/approve", admin, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.err = nil
	rec = do(e, http.MethodPost, "/admin/withdrawals/"+uuid.NewString()+"/approve", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettle(t *testing.T) {
	svc := &fakeService{}
	e, _ := setup(t, svc)

	rec := do(e, http.MethodPost, "/admin/orders/ord-1/settle", token(t, "orders", middleware.RoleFulfillment), "")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode(t, rec)["entry"].(map[string]any)
	assert.Equal(t, "90.00", entry["amount"])
	assert.Equal(t, []string{"ord-1"}, svc.settled)

	rec = do(e, http.MethodPost, "/admin/orders/ord-2/settle", token(t, "seller-1", middleware.RoleSeller), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	svc.err = ledger.ErrOrderNotPaid
	rec = do(e, http.MethodPost, "/admin/orders/ord-3/settle", token(t, "admin-1", middleware.RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type queueStub struct {
	ids []string
	err error
}

func (q *queueStub) EnqueueSettlement(_ context.Context, orderID string) error {
	q.ids = append(q.ids, orderID)
	return q.err
}

func TestDelivered(t *testing.T) {
	svc := &fakeService{}
	q := &queueStub{}
	e := echo.New()
	e.Validator = NewValidator()
	Register(e, NewHandler(svc, zap.NewNop(), WithSettlementQueue(q)), secret, nil)
	svcTok := token(t, "orders", middleware.RoleFulfillment)

	rec := do(e, http.MethodPost, "/admin/orders/ord-9/delivered", svcTok, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"ord-9"}, q.ids)
	assert.Empty(t, svc.settled)

	q.err = fmt.Errorf("redis down")
	rec = do(e, http.MethodPost, "/admin/orders/ord-10/delivered", svcTok, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	inline, _ := setup(t, svc)
	rec = do(inline, http.MethodPost, "/admin/orders/ord-11/delivered", svcTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ord-11"}, svc.settled)
}

func TestVerify(t *testing.T) {
	svc := &fakeService{verify: &ledger.Verification{Entries: 3, Replayed: decimal.RequireFromString("50"),
		Balance: decimal.RequireFromString("50"), Consistent: true}}
	e, sink := setup(t, svc)
	admin := token(t, "admin-1", middleware.RoleAdmin)
	id := uuid.New()

	rec := do(e, http.MethodGet, "/admin/wallets/"+id.String()+"/verify", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["consistent"])
	assert.Empty(t, sink.msgs)

	svc.verify = &ledger.Verification{Entries: 3, Replayed: decimal.RequireFromString("50"),
		Balance: decimal.RequireFromString("70"), Consistent: false, FirstBadSeq: 3}
	rec = do(e, http.MethodGet, "/admin/wallets/"+id.String()+"/verify", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["consistent"])
	assert.Equal(t, "70.00", body["wallet_balance"])
	assert.Equal(t, float64(3), body["first_bad_seq"])
	assert.Len(t, sink.msgs, 1)

	svc.verify = nil
	rec = do(e, http.MethodGet, "/admin/wallets/"+id.String()+"/verify", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReady(t *testing.T) {
	e := echo.New()
	down := NewHandler(&fakeService{}, zap.NewNop(), WithReadiness(func(context.Context) error { return fmt.Errorf("db down") }))
	e.GET("/ready", down.Ready)
	e.GET("/health", down.Health)

	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/health", "", "").Code)
}
