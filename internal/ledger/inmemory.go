package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLockWait bounds how long the in-memory store waits for a row lock
// before reporting ErrLockTimeout.
const DefaultLockWait = 5 * time.Second

// MemoryStore is a concurrency-safe Store kept in process memory. Each wallet
// has its own row lock held from LockWallet until the unit of work ends, and
// writes stay private to the unit of work until it commits.
type MemoryStore struct {
	mu       sync.RWMutex
	wallets  map[string]Wallet
	owners   map[string]string
	records  []Transaction
	byRef    map[string]int
	rowLocks map[string]chan struct{}
	lockWait time.Duration
}

// NewMemoryStore creates an empty store. A non-positive lockWait falls back
// to DefaultLockWait.
func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &MemoryStore{
		wallets:  make(map[string]Wallet),
		owners:   make(map[string]string),
		byRef:    make(map[string]int),
		rowLocks: make(map[string]chan struct{}),
		lockWait: lockWait,
	}
}

func (s *MemoryStore) WalletByID(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, notFound("wallet", id)
	}
	return w, nil
}

func (s *MemoryStore) WalletByOwner(_ context.Context, ownerID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owners[ownerID]
	if !ok {
		return Wallet{}, notFound("wallet for owner", ownerID)
	}
	return s.wallets[id], nil
}

func (s *MemoryStore) CreateWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.owners[w.OwnerID]; exists {
		return newError(KindConflict, "", ErrConflict.Message, nil)
	}
	if _, exists := s.wallets[w.ID]; exists {
		return newError(KindGeneric, "", fmt.Sprintf("wallet %s already exists", w.ID), nil)
	}
	s.wallets[w.ID] = w
	s.owners[w.OwnerID] = w.ID
	s.rowLocks[w.ID] = make(chan struct{}, 1)
	return nil
}

func (s *MemoryStore) TransactionByReference(_ context.Context, reference string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byRef[reference]
	if !ok {
		return Transaction{}, notFound("transaction", reference)
	}
	return s.records[idx], nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, walletID string, limit, offset int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.WalletID != walletID && rec.RelatedWalletID != walletID {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// WithinTx runs fn against a private write set and applies it on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		store:    s,
		held:     make(map[string]struct{}),
		balances: make(map[string]decimal.Decimal),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type memoryTx struct {
	store    *MemoryStore
	held     map[string]struct{}
	balances map[string]decimal.Decimal
	records  []Transaction
}

func (t *memoryTx) LockWallet(ctx context.Context, id string) (Wallet, error) {
	s := t.store
	if _, ok := t.held[id]; !ok {
		s.mu.RLock()
		lock, ok := s.rowLocks[id]
		s.mu.RUnlock()
		if !ok {
			return Wallet{}, notFound("wallet", id)
		}

		timer := time.NewTimer(s.lockWait)
		defer timer.Stop()
		select {
		case lock <- struct{}{}:
			t.held[id] = struct{}{}
		case <-timer.C:
			return Wallet{}, newError(KindLockTimeout, "", fmt.Sprintf("wallet %s: %s", id, ErrLockTimeout.Message), nil)
		case <-ctx.Done():
			return Wallet{}, ctx.Err()
		}
	}

	s.mu.RLock()
	w := s.wallets[id]
	s.mu.RUnlock()
	if pending, ok := t.balances[id]; ok {
		w.Balance = pending
	}
	return w, nil
}

func (t *memoryTx) SetBalance(_ context.Context, id string, balance decimal.Decimal) error {
	if _, ok := t.held[id]; !ok {
		return fmt.Errorf("wallet %s is not locked by this unit of work", id)
	}
	if balance.IsNegative() {
		return newError(KindInsufficientFunds, "", ErrInsufficientFunds.Message, nil)
	}
	t.balances[id] = balance
	return nil
}

func (t *memoryTx) ReferenceExists(_ context.Context, reference string) (bool, error) {
	for _, rec := range t.records {
		if rec.Reference == reference {
			return true, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.byRef[reference]
	return ok, nil
}

func (t *memoryTx) AppendTransaction(_ context.Context, rec Transaction) error {
	if !rec.Amount.IsPositive() {
		return newError(KindValidation, "", "amount must be greater than zero", nil)
	}
	t.records = append(t.records, rec)
	return nil
}

// commit re-checks the storage constraints under the store lock, so two
// units of work racing on the same reference cannot both land.
func (t *memoryTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(t.records))
	for _, rec := range t.records {
		if _, dup := s.byRef[rec.Reference]; dup {
			return newError(KindDuplicateReference, "", ErrDuplicateReference.Message, nil)
		}
		if _, dup := seen[rec.Reference]; dup {
			return newError(KindDuplicateReference, "", ErrDuplicateReference.Message, nil)
		}
		seen[rec.Reference] = struct{}{}
		if _, ok := s.wallets[rec.WalletID]; !ok {
			return newError(KindForeignKeyViolation, "", ErrForeignKeyViolation.Message, nil)
		}
		if rec.RelatedWalletID != "" {
			if _, ok := s.wallets[rec.RelatedWalletID]; !ok {
				return newError(KindForeignKeyViolation, "", ErrForeignKeyViolation.Message, nil)
			}
		}
	}

	now := time.Now().UTC()
	for id, balance := range t.balances {
		w := s.wallets[id]
		w.Balance = balance
		w.UpdatedAt = now
		s.wallets[id] = w
	}
	for _, rec := range t.records {
		s.byRef[rec.Reference] = len(s.records)
		s.records = append(s.records, rec)
	}
	return nil
}

func (t *memoryTx) release() {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for id := range t.held {
		<-t.store.rowLocks[id]
	}
	t.held = nil
}
