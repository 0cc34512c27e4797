package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
	"github.com/josh-kwaku/account-ledger/internal/lock"
)

type undoKey struct{}

type undoLog struct {
	fns []func()
}

// memStore is an in-memory user, account and transaction store. WithinTx
// rolls back only the writes made through its own ctx, so records written
// outside the tx survive a rollback.
type memStore struct {
	mu sync.Mutex

	users    map[int64]*domain.User
	accounts map[int64]*domain.Account
	txns     []*domain.Transaction

	nextAccountID int64
	nextTxnID     int64

	// failOn makes the named method return the error.
	failOn map[string]error
	// failTxnResult limits failOn["CreateTransaction"] to one result.
	failTxnResult domain.TransactionResult

	// writtenInTx records, per transaction id, whether Create ran inside
	// WithinTx.
	writtenInTx map[string]bool
	// onCreateTxn is called with every appended transaction.
	onCreateTxn func(*domain.Transaction)
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[int64]*domain.User),
		accounts:    make(map[int64]*domain.Account),
		failOn:      make(map[string]error),
		writtenInTx: make(map[string]bool),
	}
}

func (m *memStore) addUser(id int64) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &domain.User{ID: id, Name: fmt.Sprintf("user-%d", id), CreatedAt: time.Now().UTC()}
	m.users[id] = u
	return u
}

func (m *memStore) addAccount(userID int64, number string, balance int64) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAccountID++
	a := &domain.Account{
		ID:            m.nextAccountID,
		UserID:        userID,
		AccountNumber: number,
		Status:        domain.AccountStatusInUse,
		Balance:       balance,
		RegisteredAt:  time.Now().UTC(),
	}
	m.accounts[a.ID] = a
	cp := *a
	return &cp
}

func (m *memStore) addTransaction(t *domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxnID++
	t.ID = m.nextTxnID
	cp := *t
	m.txns = append(m.txns, &cp)
}

func (m *memStore) account(id int64) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

func (m *memStore) transactionsFor(accountNumber string, result domain.TransactionResult) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.AccountNumber == accountNumber && t.Result == result {
			out = append(out, *t)
		}
	}
	return out
}

func (m *memStore) onRollback(ctx context.Context, fn func()) {
	if l, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		l.fns = append(l.fns, fn)
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	l := &undoLog{}
	err := fn(context.WithValue(ctx, undoKey{}, l))
	if err != nil {
		m.mu.Lock()
		for i := len(l.fns) - 1; i >= 0; i-- {
			l.fns[i]()
		}
		m.mu.Unlock()
	}
	return err
}

func (m *memStore) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["GetUser"]; err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// accountStore exposes memStore through the account repository method set;
// GetByID collides with the user store's.
type accountStore struct{ *memStore }

func (s accountStore) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s accountStore) GetByAccountNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["GetByAccountNumber"]; err != nil {
		return nil, err
	}
	for _, a := range s.accounts {
		if a.AccountNumber == accountNumber {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByAccountNumber: %w", domain.ErrNotFound)
}

func (s accountStore) GetByUserID(_ context.Context, userID int64) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Account{}
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s accountStore) CountActiveByUserID(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.accounts {
		if a.UserID == userID && a.IsActive() {
			n++
		}
	}
	return n, nil
}

func (s accountStore) Create(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.AccountNumber == account.AccountNumber {
			return fmt.Errorf("Create: %w", domain.ErrDuplicate)
		}
	}
	s.nextAccountID++
	account.ID = s.nextAccountID
	cp := *account
	s.accounts[cp.ID] = &cp
	return nil
}

func (s accountStore) Unregister(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || !a.IsActive() {
		return fmt.Errorf("Unregister: %w", domain.ErrVersionConflict)
	}
	prev := *a
	a.Status = domain.AccountStatusUnregistered
	a.UnregisteredAt = &at
	s.onRollback(ctx, func() { *s.accounts[id] = prev })
	return nil
}

func (s accountStore) UpdateBalance(ctx context.Context, id int64, newBalance int64, newVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["UpdateBalance"]; err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok || a.Version != newVersion-1 || !a.IsActive() {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	if newBalance < 0 {
		return fmt.Errorf("UpdateBalance: negative balance %d", newBalance)
	}
	prev := *a
	a.Balance = newBalance
	a.Version = newVersion
	s.onRollback(ctx, func() { *s.accounts[id] = prev })
	return nil
}

type transactionStore struct{ *memStore }

func (s transactionStore) Create(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	hook := s.onCreateTxn
	if err := s.failOn["CreateTransaction"]; err != nil &&
		(s.failTxnResult == "" || s.failTxnResult == txn.Result) {
		s.mu.Unlock()
		return err
	}
	s.nextTxnID++
	txn.ID = s.nextTxnID
	cp := *txn
	s.txns = append(s.txns, &cp)
	_, inTx := ctx.Value(undoKey{}).(*undoLog)
	s.writtenInTx[txn.TransactionID] = inTx
	id := txn.TransactionID
	s.onRollback(ctx, func() {
		for i, t := range s.txns {
			if t.TransactionID == id {
				s.txns = append(s.txns[:i], s.txns[i+1:]...)
				return
			}
		}
	})
	s.mu.Unlock()

	if hook != nil {
		hook(&cp)
	}
	return nil
}

func (s transactionStore) GetByTransactionID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.TransactionID == transactionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByTransactionID: %w", domain.ErrNotFound)
}

func (s transactionStore) HasSuccessfulCancel(_ context.Context, originalTransactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.Type == domain.TransactionTypeCancel && t.Result == domain.TransactionResultSuccess &&
			t.OriginalTransactionID != nil && *t.OriginalTransactionID == originalTransactionID {
			return true, nil
		}
	}
	return false, nil
}

// seqNumbers hands out account numbers in order, optionally starting with
// a fixed list.
type seqNumbers struct {
	mu     sync.Mutex
	queued []string
	n      int
}

func (g *seqNumbers) Generate(_ context.Context, userID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queued) > 0 {
		next := g.queued[0]
		g.queued = g.queued[1:]
		return next, nil
	}
	g.n++
	return fmt.Sprintf("%d%09d", userID%10, g.n), nil
}

// spyLocker wraps a real Locker and tracks which keys are held.
type spyLocker struct {
	inner lock.Locker

	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func newSpyLocker() *spyLocker {
	return &spyLocker{inner: lock.NewLocal(), held: make(map[string]bool)}
}

func (l *spyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.inner.WithLock(ctx, key, func(ctx context.Context) error {
		l.mu.Lock()
		l.held[key] = true
		l.keys = append(l.keys, key)
		l.mu.Unlock()

		defer func() {
			l.mu.Lock()
			l.held[key] = false
			l.mu.Unlock()
		}()
		return fn(ctx)
	})
}

func (l *spyLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

func (l *spyLocker) usedKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
