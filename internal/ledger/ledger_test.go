package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demo-credit/wallet-service/internal/logging"
)

type harness struct {
	store    Store
	engine   *Engine
	newOwner func(t *testing.T) string
}

func randomOwner(*testing.T) string { return uuid.NewString() }

func backends(t *testing.T) map[string]func(t *testing.T) harness {
	t.Helper()
	out := map[string]func(t *testing.T) harness{
		"memory": func(t *testing.T) harness {
			s := NewMemoryStore(time.Second)
			return harness{store: s, engine: NewEngine(s, logging.Discard()), newOwner: randomOwner}
		},
		"sqlite": func(t *testing.T) harness {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return harness{store: s, engine: NewEngine(s, logging.Discard()), newOwner: randomOwner}
		},
	}
	if os.Getenv("TEST_DATABASE_URL") != "" {
		out["postgres"] = newPostgresHarness
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h harness)) {
	for name, build := range backends(t) {
		build := build
		t.Run(name, func(t *testing.T) {
			fn(t, build(t))
		})
	}
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFundedWallet(t *testing.T, h harness, balance string) Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := h.engine.CreateWallet(ctx, h.newOwner(t), "")
	require.NoError(t, err)
	if b := amt(balance); b.IsPositive() {
		_, err := h.engine.Fund(ctx, MovementInput{WalletID: w.ID, Amount: b, Reference: "seed-" + uuid.NewString(), Description: "seed"})
		require.NoError(t, err)
	}
	return w
}

func balanceOf(t *testing.T, h harness, id string) decimal.Decimal {
	t.Helper()
	w, err := h.engine.WalletByID(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func assertBalance(t *testing.T, h harness, id, want string) {
	t.Helper()
	got := balanceOf(t, h, id)
	assert.Truef(t, got.Equal(amt(want)), "balance of %s: want %s, got %s", id, want, got)
}

func TestFundIncreasesBalance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		w := newFundedWallet(t, h, "1000")

		rec, err := h.engine.Fund(context.Background(), MovementInput{WalletID: w.ID, Amount: amt("500"), Reference: "r1", Description: "top up"})
		require.NoError(t, err)

		assertBalance(t, h, w.ID, "1500")
		assert.Equal(t, TypeFund, rec.Type)
		assert.Equal(t, StatusCompleted, rec.Status)
		assert.Equal(t, w.ID, rec.WalletID)
		assert.Empty(t, rec.RelatedWalletID)
		assert.True(t, rec.Amount.Equal(amt("500")))

		stored, err := h.engine.TransactionByReference(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, stored.ID)
		assert.Equal(t, "top up", stored.Description)
	})
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		w := newFundedWallet(t, h, "1000")

		_, err := h.engine.Withdraw(ctx, MovementInput{WalletID: w.ID, Amount: amt("1500"), Reference: "r2"})
		require.ErrorIs(t, err, ErrInsufficientFunds)
		assertBalance(t, h, w.ID, "1000")

		_, err = h.engine.TransactionByReference(ctx, "r2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWithdrawWholeBalance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		w := newFundedWallet(t, h, "250.75")

		rec, err := h.engine.Withdraw(context.Background(), MovementInput{WalletID: w.ID, Amount: amt("250.75"), Reference: "drain"})
		require.NoError(t, err)
		assert.Equal(t, TypeWithdraw, rec.Type)
		assertBalance(t, h, w.ID, "0")
	})
}

func TestTransferMovesFunds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		w1 := newFundedWallet(t, h, "1000")
		w2 := newFundedWallet(t, h, "0")

		rec, err := h.engine.Transfer(ctx, TransferInput{FromWalletID: w1.ID, ToWalletID: w2.ID, Amount: amt("300"), Reference: "t1"})
		require.NoError(t, err)

		assertBalance(t, h, w1.ID, "700")
		assertBalance(t, h, w2.ID, "300")
		assert.Equal(t, TypeTransfer, rec.Type)
		assert.Equal(t, w1.ID, rec.WalletID)
		assert.Equal(t, w2.ID, rec.RelatedWalletID)

		history, err := h.engine.Transactions(ctx, w2.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "t1", history[0].Reference)
	})
}

func TestReusedReferenceIsRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		w1 := newFundedWallet(t, h, "1000")
		w2 := newFundedWallet(t, h, "0")
		in := TransferInput{FromWalletID: w1.ID, ToWalletID: w2.ID, Amount: amt("300"), Reference: "t1"}

		_, err := h.engine.Transfer(ctx, in)
		require.NoError(t, err)
		_, err = h.engine.Transfer(ctx, in)
		require.ErrorIs(t, err, ErrDuplicateReference)

		assertBalance(t, h, w1.ID, "700")
		assertBalance(t, h, w2.ID, "300")

		_, err = h.engine.Fund(ctx, MovementInput{WalletID: w2.ID, Amount: amt("1"), Reference: "t1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		_, err = h.engine.Withdraw(ctx, MovementInput{WalletID: w1.ID, Amount: amt("1"), Reference: "t1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assertBalance(t, h, w1.ID, "700")
		assertBalance(t, h, w2.ID, "300")
	})
}

func TestTransferIsAllOrNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		w1 := newFundedWallet(t, h, "100")
		w2 := newFundedWallet(t, h, "50")

		_, err := h.engine.Transfer(ctx, TransferInput{FromWalletID: w1.ID, ToWalletID: w2.ID, Amount: amt("100.01"), Reference: "too-much"})
		require.ErrorIs(t, err, ErrInsufficientFunds)
		assertBalance(t, h, w1.ID, "100")
		assertBalance(t, h, w2.ID, "50")

		_, err = h.engine.Transfer(ctx, TransferInput{FromWalletID: w1.ID, ToWalletID: uuid.NewString(), Amount: amt("10"), Reference: "nowhere"})
		require.ErrorIs(t, err, ErrNotFound)
		assertBalance(t, h, w1.ID, "100")

		_, err = h.engine.Transfer(ctx, TransferInput{FromWalletID: uuid.NewString(), ToWalletID: w2.ID, Amount: amt("10"), Reference: "from-nowhere"})
		require.ErrorIs(t, err, ErrNotFound)
		assertBalance(t, h, w2.ID, "50")
	})
}

func TestTransferToSameWalletIsInvalid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		w := newFundedWallet(t, h, "100")
		for _, amount := range []string{"0", "-5", "1", "100", "1000000"} {
			_, err := h.engine.Transfer(context.Background(), TransferInput{FromWalletID: w.ID, ToWalletID: w.ID, Amount: amt(amount), Reference: "self-" + amount})
			assert.ErrorIsf(t, err, ErrValidation, "amount %s", amount)
		}
		assertBalance(t, h, w.ID, "100")
	})
}

func TestCreateWalletOncePerOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		owner := h.newOwner(t)
		w, err := h.engine.CreateWallet(ctx, owner, "ngn")
		require.NoError(t, err)
		assert.Equal(t, "NGN", w.Currency)
		assert.True(t, w.Balance.IsZero())

		_, err = h.engine.CreateWallet(ctx, owner, "")
		assert.ErrorIs(t, err, ErrConflict)

		byOwner, err := h.engine.WalletByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, w.ID, byOwner.ID)
	})
}

func TestConcurrentMovementsKeepEveryUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		w := newFundedWallet(t, h, "100")

		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, 2*workers)
		for i := 0; i < workers; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				_, err := h.engine.Fund(ctx, MovementInput{WalletID: w.ID, Amount: amt("10"), Reference: fmt.Sprintf("fund-%d", i)})
				errs <- err
			}(i)
			go func(i int) {
				defer wg.Done()
				_, err := h.engine.Withdraw(ctx, MovementInput{WalletID: w.ID, Amount: amt("5"), Reference: fmt.Sprintf("withdraw-%d", i)})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assertBalance(t, h, w.ID, "150")
	})
}

func TestOppositeTransfersComplete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		a := newFundedWallet(t, h, "1000")
		b := newFundedWallet(t, h, "1000")

		const rounds = 10
		var wg sync.WaitGroup
		errs := make(chan error, 2*rounds)
		for i := 0; i < rounds; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				_, err := h.engine.Transfer(ctx, TransferInput{FromWalletID: a.ID, ToWalletID: b.ID, Amount: amt("7"), Reference: fmt.Sprintf("ab-%d", i)})
				errs <- err
			}(i)
			go func(i int) {
				defer wg.Done()
				_, err := h.engine.Transfer(ctx, TransferInput{FromWalletID: b.ID, ToWalletID: a.ID, Amount: amt("3"), Reference: fmt.Sprintf("ba-%d", i)})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assertBalance(t, h, a.ID, "960")
		assertBalance(t, h, b.ID, "1040")
	})
}

func TestTransactionsNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		w := newFundedWallet(t, h, "0")
		for i := 0; i < 3; i++ {
			_, err := h.engine.Fund(ctx, MovementInput{WalletID: w.ID, Amount: amt("1"), Reference: fmt.Sprintf("h-%d", i)})
			require.NoError(t, err)
		}

		page, err := h.engine.Transactions(ctx, w.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "h-2", page[0].Reference)
		assert.Equal(t, "h-1", page[1].Reference)

		rest, err := h.engine.Transactions(ctx, w.ID, 2, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "h-0", rest[0].Reference)
	})
}

// untouchableStore fails the test on any access.
type untouchableStore struct {
	Store
	t *testing.T
}

func (s untouchableStore) WithinTx(context.Context, func(context.Context, Tx) error) error {
	s.t.Fatal("storage accessed")
	return nil
}

func TestInvalidInputNeverReachesStorage(t *testing.T) {
	e := NewEngine(untouchableStore{t: t}, logging.Discard())
	ctx := context.Background()
	valid := uuid.NewString()

	cases := []struct {
		name string
		call func() error
	}{
		{"withdraw without wallet", func() error {
			_, err := e.Withdraw(ctx, MovementInput{WalletID: "", Amount: amt("100"), Reference: "r3"})
			return err
		}},
		{"fund zero", func() error {
			_, err := e.Fund(ctx, MovementInput{WalletID: valid, Amount: decimal.Zero, Reference: "r"})
			return err
		}},
		{"fund negative", func() error {
			_, err := e.Fund(ctx, MovementInput{WalletID: valid, Amount: amt("-1"), Reference: "r"})
			return err
		}},
		{"fund sub-cent", func() error {
			_, err := e.Fund(ctx, MovementInput{WalletID: valid, Amount: amt("10.005"), Reference: "r"})
			return err
		}},
		{"fund without reference", func() error {
			_, err := e.Fund(ctx, MovementInput{WalletID: valid, Amount: amt("1")})
			return err
		}},
		{"transfer missing destination", func() error {
			_, err := e.Transfer(ctx, TransferInput{FromWalletID: valid, Amount: amt("1"), Reference: "r"})
			return err
		}},
		{"transfer to same wallet spelled differently", func() error {
			_, err := e.Transfer(ctx, TransferInput{FromWalletID: valid, ToWalletID: strings.ToUpper(valid), Amount: amt("1"), Reference: "r"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestCreditBeyondStoragePrecisionIsInvalid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		full := newFundedWallet(t, h, "9999999999999.99")
		source := newFundedWallet(t, h, "50")

		_, err := h.engine.Fund(ctx, MovementInput{WalletID: full.ID, Amount: amt("0.01"), Reference: "overflow-fund"})
		require.ErrorIs(t, err, ErrValidation)

		_, err = h.engine.Transfer(ctx, TransferInput{FromWalletID: source.ID, ToWalletID: full.ID, Amount: amt("1"), Reference: "overflow-transfer"})
		require.ErrorIs(t, err, ErrValidation)

		assertBalance(t, h, full.ID, "9999999999999.99")
		assertBalance(t, h, source.ID, "50")
		_, err = h.engine.TransactionByReference(ctx, "overflow-transfer")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCreateWalletRequiresUUIDOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		_, err := h.engine.CreateWallet(ctx, "not-a-uuid", "")
		require.ErrorIs(t, err, ErrValidation)

		owner := h.newOwner(t)
		w, err := h.engine.CreateWallet(ctx, strings.ToUpper(owner), "")
		require.NoError(t, err)
		byOwner, err := h.engine.WalletByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, w.ID, byOwner.ID)
	})
}
