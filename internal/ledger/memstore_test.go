package ledger_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

// memStore is an in-memory ledger.Store. Row locks are real: a Lock* call
// blocks until the holding transaction ends or lockTimeout passes, and a
// failed transaction rolls its writes back.
type memStore struct {
	mu          sync.Mutex
	wallets     map[uuid.UUID]*ledger.Wallet
	byOwner     map[string]uuid.UUID
	entries     []ledger.Entry
	seq         int64
	orders      map[string]*ledger.Order
	withdrawals map[uuid.UUID]*ledger.Withdrawal
	commission  *decimal.Decimal

	rowMu       sync.Mutex
	rows        map[string]chan struct{}
	lockTimeout time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		wallets:     map[uuid.UUID]*ledger.Wallet{},
		byOwner:     map[string]uuid.UUID{},
		orders:      map[string]*ledger.Order{},
		withdrawals: map[uuid.UUID]*ledger.Withdrawal{},
		rows:        map[string]chan struct{}{},
		lockTimeout: 2 * time.Second,
	}
}

func (s *memStore) addOrder(o ledger.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = &o
}

func (s *memStore) order(id string) ledger.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *memStore) setCommission(pct string) {
	d := decimal.RequireFromString(pct)
	s.mu.Lock()
	s.commission = &d
	s.mu.Unlock()
}

func (s *memStore) walletOf(owner string) ledger.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOwner[owner]
	if !ok {
		return ledger.Wallet{}
	}
	return *s.wallets[id]
}

// forceBalance overwrites a balance behind the ledger's back.
func (s *memStore) forceBalance(owner, bal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[s.byOwner[owner]].Balance = decimal.RequireFromString(bal)
}

func (s *memStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memStore) row(key string) chan struct{} {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	ch, ok := s.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[key] = ch
	}
	return ch
}

func (s *memStore) WithinTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	tx := &memTx{s: s, held: map[string]chan struct{}{}}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if f.WalletID != uuid.Nil && e.WalletID != f.WalletID {
			continue
		}
		if f.OwnerID != "" && s.wallets[e.WalletID].OwnerID != f.OwnerID {
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Offset, f.Limit), nil
}

func (s *memStore) GetWithdrawal(_ context.Context, id uuid.UUID) (*ledger.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wd, ok := s.withdrawals[id]
	if !ok {
		return nil, ledger.ErrWithdrawalNotFound
	}
	cp := *wd
	return &cp, nil
}

func (s *memStore) ListWithdrawals(_ context.Context, f ledger.WithdrawalFilter) ([]ledger.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Withdrawal
	for _, wd := range s.withdrawals {
		if f.SellerID != "" && wd.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && wd.Status != f.Status {
			continue
		}
		out = append(out, *wd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type memTx struct {
	s    *memStore
	held map[string]chan struct{}
	undo []func()
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	ch := tx.s.row(key)
	t := time.NewTimer(tx.s.lockTimeout)
	defer t.Stop()
	select {
	case ch <- struct{}{}:
		tx.held[key] = ch
		return nil
	case <-t.C:
		return fmt.Errorf("%w: %s", ledger.ErrLockTimeout, key)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ledger.ErrLockTimeout, key)
	}
}

func (tx *memTx) release() {
	for _, ch := range tx.held {
		<-ch
	}
}

func (tx *memTx) GetOrCreateWallet(_ context.Context, ownerID string) (*ledger.Wallet, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwner[ownerID]; ok {
		w := *s.wallets[id]
		return &w, nil
	}
	now := time.Now().UTC()
	w := &ledger.Wallet{ID: uuid.New(), OwnerID: ownerID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	s.wallets[w.ID] = w
	s.byOwner[ownerID] = w.ID
	tx.undo = append(tx.undo, func() {
		delete(s.wallets, w.ID)
		delete(s.byOwner, ownerID)
	})
	cp := *w
	return &cp, nil
}

func (tx *memTx) LockWallet(ctx context.Context, walletID uuid.UUID) (*ledger.Wallet, error) {
	if err := tx.lock(ctx, "wallet:"+walletID.String()); err != nil {
		return nil, err
	}
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (tx *memTx) SaveWalletBalance(_ context.Context, w *ledger.Wallet) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.wallets[w.ID]
	if !ok {
		return ledger.ErrWalletNotFound
	}
	prev := *cur
	cur.Balance = w.Balance
	cur.UpdatedAt = time.Now().UTC()
	tx.undo = append(tx.undo, func() { *cur = prev })
	return nil
}

func (tx *memTx) LastBalanceAfter(_ context.Context, walletID uuid.UUID) (decimal.Decimal, bool, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].WalletID == walletID {
			return s.entries[i].BalanceAfter, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func (tx *memTx) AppendEntry(_ context.Context, e *ledger.Entry) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.entries {
		if e.OrderRef != nil && x.OrderRef != nil && *x.OrderRef == *e.OrderRef && x.Source == e.Source {
			return fmt.Errorf("duplicate settlement entry for order %s", *e.OrderRef)
		}
		if e.WithdrawalRef != nil && x.WithdrawalRef != nil && *x.WithdrawalRef == *e.WithdrawalRef {
			return fmt.Errorf("duplicate entry for withdrawal %s", *e.WithdrawalRef)
		}
	}
	s.seq++
	e.Seq = s.seq
	s.entries = append(s.entries, *e)
	id := e.ID
	tx.undo = append(tx.undo, func() {
		for i := range s.entries {
			if s.entries[i].ID == id {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (tx *memTx) EntryForOrder(_ context.Context, orderID string) (*ledger.Entry, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Source == ledger.SourceOrderSettlement && e.OrderRef != nil && *e.OrderRef == orderID {
			cp := e
			return &cp, nil
		}
	}
	return nil, ledger.ErrEntryNotFound
}

func (tx *memTx) WalletEntries(_ context.Context, walletID uuid.UUID) ([]ledger.Entry, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memTx) LockOrder(ctx context.Context, orderID string) (*ledger.Order, error) {
	if err := tx.lock(ctx, "order:"+orderID); err != nil {
		return nil, err
	}
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ledger.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (tx *memTx) MarkOrderSettled(_ context.Context, orderID string, amount decimal.Decimal) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ledger.ErrOrderNotFound
	}
	prev := *o
	o.SettlementCredited = true
	o.SettlementAmount = amount
	tx.undo = append(tx.undo, func() { *o = prev })
	return nil
}

func (tx *memTx) CommissionPercent(context.Context) (decimal.Decimal, bool, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commission == nil {
		return decimal.Zero, false, nil
	}
	return *s.commission, true, nil
}

func (tx *memTx) InsertWithdrawal(_ context.Context, wd *ledger.Withdrawal) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *wd
	s.withdrawals[wd.ID] = &cp
	tx.undo = append(tx.undo, func() { delete(s.withdrawals, cp.ID) })
	return nil
}

func (tx *memTx) LockWithdrawal(ctx context.Context, id uuid.UUID) (*ledger.Withdrawal, error) {
	if err := tx.lock(ctx, "withdrawal:"+id.String()); err != nil {
		return nil, err
	}
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	wd, ok := s.withdrawals[id]
	if !ok {
		return nil, ledger.ErrWithdrawalNotFound
	}
	cp := *wd
	return &cp, nil
}

func (tx *memTx) SaveWithdrawalReview(_ context.Context, wd *ledger.Withdrawal) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.withdrawals[wd.ID]
	if !ok {
		return ledger.ErrWithdrawalNotFound
	}
	prev := *cur
	*cur = *wd
	tx.undo = append(tx.undo, func() { *cur = prev })
	return nil
}

type payoutBook map[string]*ledger.PayoutDestination

func (b payoutBook) PayoutDestination(_ context.Context, sellerID string) (*ledger.PayoutDestination, error) {
	return b[sellerID], nil
}

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []ledger.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
