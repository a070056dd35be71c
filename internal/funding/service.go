package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/demo-credit/wallet-service/internal/ledger"
	"github.com/demo-credit/wallet-service/internal/wallet"
)

// Service moves money between the outside world and an owner's wallet.
type Service struct {
	engine  *ledger.Engine
	wallets *wallet.Service
	gateway Gateway
}

// NewService builds a funding service. A nil gateway approves everything.
func NewService(engine *ledger.Engine, wallets *wallet.Service, gateway Gateway) (*Service, error) {
	if engine == nil || wallets == nil {
		return nil, fmt.Errorf("ledger engine and wallet service are required")
	}
	if gateway == nil {
		gateway = ApprovingGateway{}
	}
	return &Service{engine: engine, wallets: wallets, gateway: gateway}, nil
}

// Fund credits the owner's wallet once the gateway approves the deposit.
func (s *Service) Fund(ctx context.Context, ownerID string, req MovementRequest) (MovementResponse, error) {
	if err := req.check("funding.Fund"); err != nil {
		return MovementResponse{}, err
	}
	w, err := s.wallets.GetByOwner(ctx, ownerID)
	if err != nil {
		return MovementResponse{}, err
	}

	in := ledger.MovementInput{WalletID: w.ID, Amount: req.Amount, Reference: req.Reference, Description: req.Description}
	decision, err := s.gateway.AuthorizeDeposit(ctx, Authorization{WalletID: w.ID, Amount: req.Amount, Currency: w.Currency, Reference: req.Reference})
	if err != nil {
		return MovementResponse{}, fmt.Errorf("authorize deposit: %w", err)
	}

	rec, err := s.engine.Fund(ctx, in)
	if err != nil {
		return MovementResponse{}, err
	}
	return s.complete(ctx, w, rec, decision)
}

// Withdraw debits the owner's wallet once the gateway approves the payout.
// The balance check happens inside the ledger unit of work.
func (s *Service) Withdraw(ctx context.Context, ownerID string, req MovementRequest) (MovementResponse, error) {
	if err := req.check("funding.Withdraw"); err != nil {
		return MovementResponse{}, err
	}
	w, err := s.wallets.GetByOwner(ctx, ownerID)
	if err != nil {
		return MovementResponse{}, err
	}

	in := ledger.MovementInput{WalletID: w.ID, Amount: req.Amount, Reference: req.Reference, Description: req.Description}
	decision, err := s.gateway.AuthorizePayout(ctx, Authorization{WalletID: w.ID, Amount: req.Amount, Currency: w.Currency, Reference: req.Reference})
	if err != nil {
		return MovementResponse{}, fmt.Errorf("authorize payout: %w", err)
	}

	rec, err := s.engine.Withdraw(ctx, in)
	if err != nil {
		return MovementResponse{}, err
	}
	return s.complete(ctx, w, rec, decision)
}

func (s *Service) complete(ctx context.Context, w ledger.Wallet, rec ledger.Transaction, decision Decision) (MovementResponse, error) {
	s.wallets.Committed(ctx, w, rec)

	fresh, err := s.wallets.Get(ctx, w.ID)
	if err != nil {
		return MovementResponse{}, err
	}
	return MovementResponse{
		Transaction:      rec,
		Balance:          fresh.Balance,
		Currency:         fresh.Currency,
		GatewayReference: decision.Reference,
		CompletedAt:      time.Now().UTC(),
	}, nil
}
