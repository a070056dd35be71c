package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the three movement kinds.
type TransactionType string

const (
	TypeFund     TransactionType = "fund"
	TypeWithdraw TransactionType = "withdraw"
	TypeTransfer TransactionType = "transfer"
)

// TransactionStatus is the settlement state of a record. The engine settles
// synchronously, so only StatusCompleted is ever written.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// DefaultCurrency is used when a wallet is created without one.
const DefaultCurrency = "NGN"

// Wallet is the single balance account owned by one principal.
type Wallet struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an append-only record explaining one balance change.
// RelatedWalletID is set only for transfers and names the destination.
type Transaction struct {
	ID              string            `json:"id"`
	WalletID        string            `json:"wallet_id"`
	RelatedWalletID string            `json:"related_wallet_id,omitempty"`
	Type            TransactionType   `json:"type"`
	Amount          decimal.Decimal   `json:"amount"`
	Status          TransactionStatus `json:"status"`
	Description     string            `json:"description"`
	Reference       string            `json:"reference"`
	CreatedAt       time.Time         `json:"created_at"`
}

// MovementInput carries the arguments of a fund or withdraw.
type MovementInput struct {
	WalletID    string          `validate:"required,uuid"`
	Amount      decimal.Decimal `validate:"amount"`
	Reference   string          `validate:"required,max=100"`
	Description string          `validate:"max=255"`
}

// TransferInput carries the arguments of a wallet-to-wallet transfer.
type TransferInput struct {
	FromWalletID string          `validate:"required,uuid"`
	ToWalletID   string          `validate:"required,uuid,nefield=FromWalletID"`
	Amount       decimal.Decimal `validate:"amount"`
	Reference    string          `validate:"required,max=100"`
	Description  string          `validate:"max=255"`
}
