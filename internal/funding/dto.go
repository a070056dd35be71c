package funding

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/demo-credit/wallet-service/internal/ledger"
)

// MovementRequest is the body of the fund and withdraw endpoints. Amount
// accepts a JSON number or a decimal string.
type MovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
}

// check rejects requests the ledger would refuse, before a gateway sees them.
func (r MovementRequest) check(op string) error {
	if !ledger.ValidAmount(r.Amount) {
		return ledger.NewValidationError(op, "amount must be positive with at most two decimal places")
	}
	if strings.TrimSpace(r.Reference) == "" {
		return ledger.NewValidationError(op, "reference is required")
	}
	return nil
}

// MovementResponse reports the recorded movement and the resulting balance.
type MovementResponse struct {
	Transaction      ledger.Transaction `json:"transaction"`
	Balance          decimal.Decimal    `json:"balance"`
	Currency         string             `json:"currency"`
	GatewayReference string             `json:"gateway_reference"`
	CompletedAt      time.Time          `json:"completed_at"`
}
