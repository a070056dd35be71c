package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/demo-credit/wallet-service/internal/identity"
	"github.com/demo-credit/wallet-service/internal/ledger"
	"github.com/demo-credit/wallet-service/internal/wallet"
)

var (
	// ErrNotOwner indicates the caller does not own the source wallet.
	ErrNotOwner = errors.New("not owner of source wallet")
	// ErrRecipientRequired is returned when neither a wallet id nor an email names the recipient.
	ErrRecipientRequired = errors.New("to_wallet_id or recipient_email is required")
	// ErrUnknownRecipient is returned when no user holds the recipient email.
	ErrUnknownRecipient = errors.New("recipient not found")
)

// Recipients resolves a recipient owner by email.
type Recipients interface {
	FindByEmail(ctx context.Context, email string) (identity.User, error)
}

// Service moves money between two owners' wallets.
type Service struct {
	engine     *ledger.Engine
	wallets    *wallet.Service
	recipients Recipients
}

// NewService constructs a payment service.
func NewService(engine *ledger.Engine, wallets *wallet.Service, recipients Recipients) *Service {
	return &Service{engine: engine, wallets: wallets, recipients: recipients}
}

// TransferInput captures the data needed to move funds between wallets. The
// recipient is ToWalletID when set, otherwise the wallet of RecipientEmail.
type TransferInput struct {
	RequestorUserID string
	FromWalletID    string
	ToWalletID      string
	RecipientEmail  string
	Amount          decimal.Decimal
	Reference       string
	Description     string
}

// TransferResult describes the ledger outcome of a transfer.
type TransferResult struct {
	Transaction ledger.Transaction `json:"transaction"`
	FromBalance decimal.Decimal    `json:"from_balance"`
	Currency    string             `json:"currency"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Transfer debits the requestor's wallet and credits the recipient's in one
// ledger unit of work.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	from, err := s.wallets.GetByOwner(ctx, input.RequestorUserID)
	if err != nil {
		return TransferResult{}, err
	}
	if input.FromWalletID != "" && !strings.EqualFold(input.FromWalletID, from.ID) {
		return TransferResult{}, ErrNotOwner
	}

	toWalletID, err := s.resolveRecipient(ctx, input)
	if err != nil {
		return TransferResult{}, err
	}

	rec, err := s.engine.Transfer(ctx, ledger.TransferInput{
		FromWalletID: from.ID,
		ToWalletID:   toWalletID,
		Amount:       input.Amount,
		Reference:    input.Reference,
		Description:  input.Description,
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.wallets.Committed(ctx, from, rec)

	fresh, err := s.wallets.Get(ctx, from.ID)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		Transaction: rec,
		FromBalance: fresh.Balance,
		Currency:    fresh.Currency,
		CompletedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) resolveRecipient(ctx context.Context, input TransferInput) (string, error) {
	if input.ToWalletID != "" {
		return input.ToWalletID, nil
	}
	if strings.TrimSpace(input.RecipientEmail) == "" {
		return "", ErrRecipientRequired
	}
	if s.recipients == nil {
		return "", fmt.Errorf("recipient lookup by email is not configured")
	}

	user, err := s.recipients.FindByEmail(ctx, input.RecipientEmail)
	if errors.Is(err, identity.ErrUserNotFound) {
		return "", ErrUnknownRecipient
	}
	if err != nil {
		return "", err
	}
	w, err := s.wallets.GetByOwner(ctx, user.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		return "", ErrUnknownRecipient
	}
	if err != nil {
		return "", err
	}
	return w.ID, nil
}
