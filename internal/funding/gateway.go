package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway authorizes money entering or leaving the platform before the
// ledger records it.
type Gateway interface {
	AuthorizeDeposit(ctx context.Context, req Authorization) (Decision, error)
	AuthorizePayout(ctx context.Context, req Authorization) (Decision, error)
}

// Authorization is what the gateway is asked to approve.
type Authorization struct {
	WalletID  string
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

// Decision captures the gateway response.
type Decision struct {
	Reference string
	Status    string
}

// ApprovingGateway approves every request with a synthetic reference. It is
// the gateway used until a real provider is wired.
type ApprovingGateway struct{}

func (ApprovingGateway) AuthorizeDeposit(_ context.Context, _ Authorization) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Status: "approved"}, nil
}

func (ApprovingGateway) AuthorizePayout(_ context.Context, _ Authorization) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Status: "approved"}, nil
}
