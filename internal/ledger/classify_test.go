package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPostgres(t *testing.T) {
	cases := []struct {
		name string
		err  *pgconn.PgError
		want Kind
	}{
		{"reference unique", &pgconn.PgError{Code: "23505", ConstraintName: constraintTransactionRefKey}, KindDuplicateReference},
		{"owner unique", &pgconn.PgError{Code: "23505", ConstraintName: constraintWalletOwner}, KindConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, KindForeignKeyViolation},
		{"negative balance check", &pgconn.PgError{Code: "23514", ConstraintName: constraintPositiveBalance}, KindInsufficientFunds},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, KindLockTimeout},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindDeadlock},
		{"admin shutdown of connection", &pgconn.PgError{Code: "08006"}, KindConnection},
		{"anything else", &pgconn.PgError{Code: "42P01", Message: "relation missing"}, KindGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("op", fmt.Errorf("exec: %w", tc.err))
			assert.Equal(t, tc.want, KindOf(err))
			assert.ErrorIs(t, err, tc.err, "driver error stays reachable")
		})
	}
}

func TestClassifyPassesThroughClassifiedErrors(t *testing.T) {
	orig := newError(KindInsufficientFunds, "", "short", nil)

	err := Classify("ledger.Withdraw", fmt.Errorf("wrapped: %w", orig))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "ledger.Withdraw", le.Op)
	assert.Empty(t, orig.Op, "original is not mutated")

	assert.NoError(t, Classify("op", nil))
}

func TestClassifyConnectionFailures(t *testing.T) {
	for _, raw := range []error{
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")},
		fmt.Errorf("connect: %w", syscall.ECONNREFUSED),
		driver.ErrBadConn,
	} {
		assert.Equal(t, KindConnection, KindOf(Classify("op", raw)), raw.Error())
	}
}

func TestClassifyGenericKeepsMessage(t *testing.T) {
	err := Classify("op", errors.New("disk on fire"))
	require.ErrorIs(t, err, ErrGeneric)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.False(t, IsRetryable(err))
}

func TestClassifySQLiteConstraints(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", time.Second)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	w := Wallet{ID: uuid.NewString(), OwnerID: uuid.NewString(), Balance: decimal.Zero, Currency: "NGN", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateWallet(ctx, w))

	dup := w
	dup.ID = uuid.NewString()
	err = s.CreateWallet(ctx, dup)
	var liteErr sqlite3.Error
	require.True(t, errors.As(err, &liteErr))
	assert.Equal(t, KindConflict, KindOf(Classify("op", err)))

	rec := Transaction{ID: uuid.NewString(), WalletID: w.ID, Type: TypeFund, Amount: decimal.NewFromInt(1), Status: StatusCompleted, Reference: "ref", CreatedAt: now}
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error { return tx.AppendTransaction(ctx, rec) }))

	rec.ID = uuid.NewString()
	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error { return tx.AppendTransaction(ctx, rec) })
	assert.Equal(t, KindDuplicateReference, KindOf(Classify("op", err)))

	orphan := rec
	orphan.ID, orphan.Reference, orphan.WalletID = uuid.NewString(), "orphan", uuid.NewString()
	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error { return tx.AppendTransaction(ctx, orphan) })
	assert.Equal(t, KindForeignKeyViolation, KindOf(Classify("op", err)))

	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetBalance(ctx, w.ID, decimal.NewFromInt(-1))
	})
	assert.Equal(t, KindInsufficientFunds, KindOf(Classify("op", err)))
}
