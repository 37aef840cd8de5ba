package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/middleware"
)

// LedgerService is the subset of *ledger.Service the HTTP layer drives.
type LedgerService interface {
	WalletSummary(ctx context.Context, ownerID string, recent int) (*ledger.Summary, error)
	ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error)
	ListWithdrawals(ctx context.Context, f ledger.WithdrawalFilter) ([]ledger.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*ledger.Withdrawal, error)
	RequestWithdrawal(ctx context.Context, sellerID string, amount decimal.Decimal) (*ledger.Withdrawal, error)
	Approve(ctx context.Context, id uuid.UUID, adminID, note string) (*ledger.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, adminID, note string) (*ledger.Withdrawal, error)
	SettleOrder(ctx context.Context, orderID string) (*ledger.Entry, error)
	VerifyWallet(ctx context.Context, walletID uuid.UUID) (*ledger.Verification, error)
}

type AdminAlerter interface {
	EnqueueAdminAlert(ctx context.Context, severity, message string) error
}

// SettlementQueue defers settlement to the background worker.
type SettlementQueue interface {
	EnqueueSettlement(ctx context.Context, orderID string) error
}

type Handler struct {
	svc    LedgerService
	log    *zap.Logger
	alerts AdminAlerter
	queue  SettlementQueue
	ready  func(context.Context) error
}

type HandlerOption func(*Handler)

func WithAlerts(a AdminAlerter) HandlerOption { return func(h *Handler) { h.alerts = a } }

func WithSettlementQueue(q SettlementQueue) HandlerOption {
	return func(h *Handler) { h.queue = q }
}

// WithReadiness sets the dependency check behind GET /ready.
func WithReadiness(fn func(context.Context) error) HandlerOption {
	return func(h *Handler) { h.ready = fn }
}

func NewHandler(svc LedgerService, log *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, log: log}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) alert(c echo.Context, msg string) {
	if h.alerts == nil {
		return
	}
	if err := h.alerts.EnqueueAdminAlert(c.Request().Context(), "critical", msg); err != nil {
		h.log.Warn("admin alert not queued", zap.Error(err))
	}
}

func (h *Handler) bindQuery(c echo.Context) (listQuery, error) {
	var q listQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return q, err
	}
	return q, c.Validate(q)
}

// GET /wallet/me
func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.WalletSummary(c.Request().Context(), middleware.UserID(c), ledger.SummaryEntries)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"wallet":              toWallet(sum.Wallet),
		"recent_transactions": toEntries(sum.Recent),
	})
}

// GET /wallet/transactions
// Sellers see their own entries; admins see all, or one owner with ?owner_id=.
func (h *Handler) Transactions(c echo.Context) error {
	q, err := h.bindQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid query parameters"})
	}
	f := ledger.EntryFilter{OwnerID: middleware.UserID(c), Limit: q.Limit, Offset: q.Offset}
	if middleware.IsAdmin(c) {
		f.OwnerID = q.OwnerID
	}
	entries, err := h.svc.ListEntries(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": toEntries(entries)})
}

// GET /wallet/withdrawals
func (h *Handler) Withdrawals(c echo.Context) error {
	q, err := h.bindQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid query parameters"})
	}
	f := ledger.WithdrawalFilter{SellerID: middleware.UserID(c), Limit: q.Limit, Offset: q.Offset}
	if middleware.IsAdmin(c) {
		f.SellerID = q.OwnerID
	}
	if q.Status != "" {
		// already constrained by validation
		f.Status, _ = ledger.ParseWithdrawalStatus(q.Status)
	}
	list, err := h.svc.ListWithdrawals(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"withdrawals": toWithdrawals(list)})
}

// GET /wallet/withdrawals/:id
func (h *Handler) Withdrawal(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid withdrawal id"})
	}
	wd, err := h.svc.GetWithdrawal(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	if !middleware.IsAdmin(c) && wd.SellerID != middleware.UserID(c) {
		return h.fail(c, ledger.ErrWithdrawalNotFound)
	}
	return c.JSON(http.StatusOK, echo.Map{"withdrawal": toWithdrawal(*wd)})
}

// POST /wallet/withdrawals
func (h *Handler) CreateWithdrawal(c echo.Context) error {
	var req CreateWithdrawalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	wd, err := h.svc.RequestWithdrawal(c.Request().Context(), middleware.UserID(c), req.Amount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":    "withdrawal request submitted",
		"withdrawal": toWithdrawal(*wd),
	})
}

func (h *Handler) review(c echo.Context, approve bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid withdrawal id"})
	}
	var req ReviewReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "admin_note is too long"})
	}

	ctx := c.Request().Context()
	adminID := middleware.UserID(c)
	var wd *ledger.Withdrawal
	if approve {
		wd, err = h.svc.Approve(ctx, id, adminID, req.AdminNote)
	} else {
		wd, err = h.svc.Reject(ctx, id, adminID, req.AdminNote)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":    "withdrawal " + strings.ToLower(string(wd.Status)),
		"withdrawal": toWithdrawal(*wd),
	})
}

// POST /admin/withdrawals/:id/approve
func (h *Handler) Approve(c echo.Context) error { return h.review(c, true) }

// POST /admin/withdrawals/:id/reject
func (h *Handler) Reject(c echo.Context) error { return h.review(c, false) }

// POST /admin/orders/:id/settle
func (h *Handler) Settle(c echo.Context) error {
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}
	entry, err := h.svc.SettleOrder(c.Request().Context(), orderID)
	if err != nil {
		return h.fail(c, err)
	}
	resp := echo.Map{"order_id": orderID, "settled": true, "entry": nil}
	if entry != nil {
		resp["entry"] = toEntry(*entry)
	}
	return c.JSON(http.StatusOK, resp)
}

// POST /admin/orders/:id/delivered
// Queues settlement and returns at once. Falls back to settling inline when
// no queue is configured.
func (h *Handler) Delivered(c echo.Context) error {
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}
	if h.queue == nil {
		return h.Settle(c)
	}
	if err := h.queue.EnqueueSettlement(c.Request().Context(), orderID); err != nil {
		h.log.Error("settlement not queued", zap.String("order_id", orderID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "settlement queue unavailable"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"order_id": orderID, "queued": true})
}

// GET /admin/wallets/:id/verify
// An inconsistent ledger is still a 200: the report is the answer.
func (h *Handler) Verify(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid wallet id"})
	}
	v, err := h.svc.VerifyWallet(c.Request().Context(), id)
	if errors.Is(err, ledger.ErrLedgerMismatch) && v != nil {
		h.log.Error("wallet ledger inconsistent", zap.String("wallet_id", id.String()), zap.Error(err))
		h.alert(c, err.Error())
		return c.JSON(http.StatusOK, toVerification(*v))
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toVerification(*v))
}

// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// GET /ready
func (h *Handler) Ready(c echo.Context) error {
	if h.ready != nil {
		if err := h.ready(c.Request().Context()); err != nil {
			h.log.Warn("readiness check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
