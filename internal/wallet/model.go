package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the available amount of a wallet at a point in time.
type Balance struct {
	WalletID string          `json:"wallet_id"`
	Amount   decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	AsOf     time.Time       `json:"as_of"`
}
