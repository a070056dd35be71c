package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/demo-credit/wallet-service/internal/ledger"
	"github.com/demo-credit/wallet-service/internal/notification"
)

const (
	defaultPageSize = 20
)

// Service exposes wallet reads and the post-commit bookkeeping shared by the
// funding and payments services.
type Service struct {
	engine   *ledger.Engine
	cache    Cache
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a wallet service instance. A nil cache or notifier
// disables that concern.
func NewService(engine *ledger.Engine, cache Cache, notifier notification.Notifier, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, cache: cache, notifier: notifier, logger: logger}
}

// Create provisions the single wallet an owner may hold.
func (s *Service) Create(ctx context.Context, ownerID, currency string) (ledger.Wallet, error) {
	return s.engine.CreateWallet(ctx, ownerID, currency)
}

// Get retrieves a wallet, preferring the cache. A miss is filled only if no
// commit invalidated the wallet since the cache was read.
func (s *Service) Get(ctx context.Context, id string) (ledger.Wallet, error) {
	lookup, cacheErr := s.cache.Get(ctx, id)
	if cacheErr != nil {
		s.logger.Warn("wallet cache read failed", "wallet_id", id, "error", cacheErr)
	} else if lookup.Hit {
		return lookup.Wallet, nil
	}

	w, err := s.engine.WalletByID(ctx, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if cacheErr == nil {
		s.remember(ctx, w, lookup.Gen)
	}
	return w, nil
}

// GetByOwner resolves the wallet held by ownerID.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	w, err := s.engine.WalletByOwner(ctx, ownerID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return s.Get(ctx, w.ID)
}

// Balance returns the owner's current balance.
func (s *Service) Balance(ctx context.Context, ownerID string) (Balance, error) {
	w, err := s.GetByOwner(ctx, ownerID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: w.Balance, Currency: w.Currency, AsOf: time.Now().UTC()}, nil
}

// Transactions pages through the owner's history, newest first.
func (s *Service) Transactions(ctx context.Context, ownerID string, limit, offset int) ([]ledger.Transaction, error) {
	w, err := s.engine.WalletByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.engine.Transactions(ctx, w.ID, limit, offset)
}

// Transaction returns the record with reference when the owner's wallet is
// on either side of it. Records of other wallets are reported as not found.
func (s *Service) Transaction(ctx context.Context, ownerID, reference string) (ledger.Transaction, error) {
	w, err := s.engine.WalletByOwner(ctx, ownerID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	rec, err := s.engine.TransactionByReference(ctx, reference)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if rec.WalletID != w.ID && rec.RelatedWalletID != w.ID {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return rec, nil
}

// Committed drops cached copies of the wallets a movement touched and
// publishes the movement event. Failures are logged only; the movement has
// already committed.
func (s *Service) Committed(ctx context.Context, owner ledger.Wallet, rec ledger.Transaction) {
	if err := s.cache.Invalidate(ctx, rec.WalletID, rec.RelatedWalletID); err != nil {
		s.logger.Warn("wallet cache invalidation failed", "wallet_id", rec.WalletID, "error", err)
	}

	event := notification.Event{
		Kind:            "transaction." + string(rec.Type),
		TransactionID:   rec.ID,
		WalletID:        rec.WalletID,
		RelatedWalletID: rec.RelatedWalletID,
		OwnerID:         owner.OwnerID,
		Amount:          rec.Amount.StringFixed(2),
		Currency:        owner.Currency,
		Reference:       rec.Reference,
		OccurredAt:      rec.CreatedAt,
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("wallet event publish failed", "kind", event.Kind, "reference", rec.Reference, "error", err)
	}
}

func (s *Service) remember(ctx context.Context, w ledger.Wallet, gen int64) {
	if err := s.cache.Set(ctx, w, gen); err != nil {
		s.logger.Warn("wallet cache write failed", "wallet_id", w.ID, "error", err)
	}
}
