package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxAmount is the first value that no longer fits NUMERIC(15,2).
var maxAmount = decimal.New(1, 13)

// Engine performs fund, withdraw and transfer as atomic units of work over a
// Store. Every error it returns is an *Error.
type Engine struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine builds an engine over the injected store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		validate: newValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ValidAmount(d)
	})
	return v
}

// ValidAmount reports whether d is a positive amount with at most two
// fractional digits that fits the storage precision.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(2)) && d.LessThan(maxAmount)
}

// CreateWallet provisions the wallet for ownerID. An existing wallet is
// reported as ErrConflict, both from the pre-check and from the storage
// uniqueness constraint when two creations race.
func (e *Engine) CreateWallet(ctx context.Context, ownerID, currency string) (Wallet, error) {
	const op = "ledger.CreateWallet"
	if strings.TrimSpace(ownerID) == "" {
		return Wallet{}, validationError(op, "owner id is required")
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, validationError(op, "owner id must be a uuid")
	}
	ownerID = owner.String()
	if currency == "" {
		currency = DefaultCurrency
	}
	currency = strings.ToUpper(currency)
	if len(currency) != 3 {
		return Wallet{}, validationError(op, "currency must be a three letter code")
	}

	if _, err := e.store.WalletByOwner(ctx, ownerID); err == nil {
		return Wallet{}, newError(KindConflict, op, ErrConflict.Message, nil)
	} else if !errors.Is(err, ErrNotFound) {
		return Wallet{}, Classify(op, err)
	}

	now := e.now()
	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateWallet(ctx, w); err != nil {
		return Wallet{}, Classify(op, err)
	}
	e.logger.Info("ledger.wallet created", slog.String("wallet_id", w.ID), slog.String("owner_id", ownerID))
	return w, nil
}

// WalletByID returns the wallet with the given id.
func (e *Engine) WalletByID(ctx context.Context, id string) (Wallet, error) {
	w, err := e.store.WalletByID(ctx, canonicalID(id))
	if err != nil {
		return Wallet{}, Classify("ledger.WalletByID", err)
	}
	return w, nil
}

// WalletByOwner returns the wallet held by ownerID.
func (e *Engine) WalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	w, err := e.store.WalletByOwner(ctx, canonicalID(ownerID))
	if err != nil {
		return Wallet{}, Classify("ledger.WalletByOwner", err)
	}
	return w, nil
}

// TransactionByReference re-reads a recorded movement so callers can decide
// whether a retry is needed.
func (e *Engine) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	const op = "ledger.TransactionByReference"
	if strings.TrimSpace(reference) == "" {
		return Transaction{}, validationError(op, "reference is required")
	}
	rec, err := e.store.TransactionByReference(ctx, reference)
	if err != nil {
		return Transaction{}, Classify(op, err)
	}
	return rec, nil
}

// Transactions lists the movements touching walletID, newest first.
func (e *Engine) Transactions(ctx context.Context, walletID string, limit, offset int) ([]Transaction, error) {
	const op = "ledger.Transactions"
	if walletID == "" {
		return nil, validationError(op, "wallet id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := e.store.ListTransactions(ctx, canonicalID(walletID), limit, offset)
	if err != nil {
		return nil, Classify(op, err)
	}
	return recs, nil
}

// Fund credits amount to the wallet and records a completed fund movement.
func (e *Engine) Fund(ctx context.Context, in MovementInput) (Transaction, error) {
	const op = "ledger.Fund"
	in.WalletID = canonicalID(in.WalletID)
	if err := e.check(op, in); err != nil {
		return Transaction{}, err
	}

	rec := e.newRecord(TypeFund, in.WalletID, "", in.Amount, in.Reference, in.Description)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.LockWallet(ctx, in.WalletID)
		if err != nil {
			return err
		}
		if err := ensureUnusedReference(ctx, tx, in.Reference); err != nil {
			return err
		}
		next, err := credited(w, in.Amount)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, w.ID, next); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, rec)
	})
	return e.finish(op, rec, err)
}

// Withdraw debits amount from the wallet. A balance lower than amount fails
// with ErrInsufficientFunds and leaves the wallet untouched.
func (e *Engine) Withdraw(ctx context.Context, in MovementInput) (Transaction, error) {
	const op = "ledger.Withdraw"
	in.WalletID = canonicalID(in.WalletID)
	if err := e.check(op, in); err != nil {
		return Transaction{}, err
	}

	rec := e.newRecord(TypeWithdraw, in.WalletID, "", in.Amount, in.Reference, in.Description)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.LockWallet(ctx, in.WalletID)
		if err != nil {
			return err
		}
		if err := ensureUnusedReference(ctx, tx, in.Reference); err != nil {
			return err
		}
		if w.Balance.LessThan(in.Amount) {
			return insufficient(w, in.Amount)
		}
		if err := tx.SetBalance(ctx, w.ID, w.Balance.Sub(in.Amount)); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, rec)
	})
	return e.finish(op, rec, err)
}

// Transfer moves amount from one wallet to another. Both rows are locked in
// ascending id order before either balance is read, so two opposite
// transfers between the same pair cannot wait on each other. One record is
// written, on the source wallet, naming the destination.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (Transaction, error) {
	const op = "ledger.Transfer"
	in.FromWalletID = canonicalID(in.FromWalletID)
	in.ToWalletID = canonicalID(in.ToWalletID)
	if err := e.check(op, in); err != nil {
		return Transaction{}, err
	}

	rec := e.newRecord(TypeTransfer, in.FromWalletID, in.ToWalletID, in.Amount, in.Reference, in.Description)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := lockInOrder(ctx, tx, in.FromWalletID, in.ToWalletID)
		if err != nil {
			return err
		}
		from, to := locked[in.FromWalletID], locked[in.ToWalletID]

		if err := ensureUnusedReference(ctx, tx, in.Reference); err != nil {
			return err
		}
		if from.Balance.LessThan(in.Amount) {
			return insufficient(from, in.Amount)
		}
		next, err := credited(to, in.Amount)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, from.ID, from.Balance.Sub(in.Amount)); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, to.ID, next); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, rec)
	})
	return e.finish(op, rec, err)
}

// lockInOrder locks every id in ascending order and returns the locked rows.
func lockInOrder(ctx context.Context, tx Tx, a, b string) (map[string]Wallet, error) {
	first, second := a, b
	if first > second {
		first, second = second, first
	}
	locked := make(map[string]Wallet, 2)
	for _, id := range []string{first, second} {
		w, err := tx.LockWallet(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock wallet %s: %w", id, err)
		}
		locked[id] = w
	}
	return locked, nil
}

func ensureUnusedReference(ctx context.Context, tx Tx, reference string) error {
	exists, err := tx.ReferenceExists(ctx, reference)
	if err != nil {
		return err
	}
	if exists {
		return newError(KindDuplicateReference, "", ErrDuplicateReference.Message, nil)
	}
	return nil
}

// credited returns w's balance after adding amount, refusing balances that
// no longer fit NUMERIC(15,2).
func credited(w Wallet, amount decimal.Decimal) (decimal.Decimal, error) {
	next := w.Balance.Add(amount)
	if !next.LessThan(maxAmount) {
		return decimal.Zero, newError(KindValidation, "",
			fmt.Sprintf("wallet %s balance would exceed %s", w.ID, maxAmount.Sub(decimal.New(1, -2)).StringFixed(2)), nil)
	}
	return next, nil
}

func insufficient(w Wallet, amount decimal.Decimal) error {
	return newError(KindInsufficientFunds, "",
		fmt.Sprintf("wallet %s holds %s, %s requested", w.ID, w.Balance.StringFixed(2), amount.StringFixed(2)), nil)
}

func (e *Engine) check(op string, in any) error {
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newError(KindValidation, op, err.Error(), err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return validationError(op, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a valid id"
	case "amount":
		return "Amount must be greater than zero with at most two decimal places"
	case "nefield":
		return "cannot transfer to the same wallet"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

func (e *Engine) newRecord(kind TransactionType, walletID, relatedID string, amount decimal.Decimal, reference, description string) Transaction {
	return Transaction{
		ID:              uuid.NewString(),
		WalletID:        walletID,
		RelatedWalletID: relatedID,
		Type:            kind,
		Amount:          amount,
		Status:          StatusCompleted,
		Description:     description,
		Reference:       reference,
		CreatedAt:       e.now(),
	}
}

func (e *Engine) finish(op string, rec Transaction, err error) (Transaction, error) {
	if err != nil {
		classified := Classify(op, err)
		e.logger.Warn(op+" aborted",
			slog.String("wallet_id", rec.WalletID),
			slog.String("reference", rec.Reference),
			slog.String("kind", string(KindOf(classified))),
			slog.Any("error", err),
		)
		return Transaction{}, classified
	}
	attrs := []any{
		slog.String("transaction_id", rec.ID),
		slog.String("wallet_id", rec.WalletID),
		slog.String("reference", rec.Reference),
		slog.String("amount", rec.Amount.StringFixed(2)),
	}
	if rec.RelatedWalletID != "" {
		attrs = append(attrs, slog.String("related_wallet_id", rec.RelatedWalletID))
	}
	e.logger.Info(op+" committed", attrs...)
	return rec, nil
}

// canonicalID lower-cases well formed uuids so lock ordering and equality
// checks do not depend on how the caller spelled the id.
func canonicalID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
