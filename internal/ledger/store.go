package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistent Balance Store and Transaction Log. Implementations
// report missing rows with ErrNotFound and may return raw driver errors for
// everything else; the engine classifies them.
type Store interface {
	// WithinTx runs fn inside one atomic unit of work. A non-nil return from
	// fn, or a failed commit, discards every mutation made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	WalletByID(ctx context.Context, id string) (Wallet, error)
	WalletByOwner(ctx context.Context, ownerID string) (Wallet, error)
	// CreateWallet inserts w. A second wallet for the same owner must be
	// rejected by a storage uniqueness constraint.
	CreateWallet(ctx context.Context, w Wallet) error

	TransactionByReference(ctx context.Context, reference string) (Transaction, error)
	// ListTransactions returns records where walletID is either side of the
	// movement, newest first.
	ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]Transaction, error)
}

// Tx is the view of the store available inside a unit of work.
type Tx interface {
	// LockWallet takes the exclusive row lock on the wallet and returns its
	// state as seen under that lock.
	LockWallet(ctx context.Context, id string) (Wallet, error)
	// SetBalance overwrites the balance of a wallet locked by this Tx.
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	// AppendTransaction inserts rec. A reused reference must be rejected by a
	// storage uniqueness constraint.
	AppendTransaction(ctx context.Context, rec Transaction) error
}
