package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and their transaction log in PostgreSQL.
// Row locks are SELECT ... FOR UPDATE; lock waits are bounded by the
// session lock_timeout configured on the pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, owner_id, balance::text, currency, created_at, updated_at`

const transactionColumns = `id, wallet_id, related_wallet_id, type, amount::text, status, description, reference, created_at`

func (s *PostgresStore) WalletByID(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, notFound("wallet", id)
	}
	w, err := scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, notFound("wallet", id)
	}
	return w, err
}

func (s *PostgresStore) WalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, notFound("wallet for owner", ownerID)
	}
	w, err := scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, notFound("wallet for owner", ownerID)
	}
	return w, err
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return validationError("", "wallet id must be a uuid")
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return validationError("", "owner id must be a uuid")
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, balance, currency, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		walletID, ownerID, w.Balance.StringFixed(2), w.Currency, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return err
}

func (s *PostgresStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	rec, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM wallet_transactions WHERE reference = $1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, notFound("transaction", reference)
	}
	return rec, err
}

func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, notFound("wallet", walletID)
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions
        WHERE wallet_id = $1 OR related_wallet_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WithinTx opens a read-committed transaction, runs fn, and commits. The
// deferred rollback discards everything when fn or the commit fails.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, notFound("wallet", id)
	}
	w, err := scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, notFound("wallet", id)
	}
	return w, err
}

func (t *postgresTx) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = now() WHERE id = $2`,
		balance.StringFixed(2), walletID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return notFound("wallet", id)
	}
	return nil
}

func (t *postgresTx) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE reference = $1)`, reference).Scan(&exists)
	return exists, err
}

func (t *postgresTx) AppendTransaction(ctx context.Context, rec Transaction) error {
	recID, err := uuid.Parse(rec.ID)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(rec.WalletID)
	if err != nil {
		return err
	}
	var related *uuid.UUID
	if rec.RelatedWalletID != "" {
		id, err := uuid.Parse(rec.RelatedWalletID)
		if err != nil {
			return err
		}
		related = &id
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, related_wallet_id, type, amount, status, description, reference, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
		recID, walletID, related, string(rec.Type), rec.Amount.StringFixed(2), string(rec.Status),
		rec.Description, rec.Reference, rec.CreatedAt.UTC())
	return err
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		id, owner uuid.UUID
		balance   string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &owner, &balance, &w.Currency, &createdAt, &updatedAt); err != nil {
		return Wallet{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	w.ID = id.String()
	w.OwnerID = owner.String()
	w.Balance = amount
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		rec       Transaction
		id, wid   uuid.UUID
		related   *uuid.UUID
		kind      string
		amount    string
		status    string
		createdAt time.Time
	)
	if err := row.Scan(&id, &wid, &related, &kind, &amount, &status, &rec.Description, &rec.Reference, &createdAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.ID = id.String()
	rec.WalletID = wid.String()
	if related != nil {
		rec.RelatedWalletID = related.String()
	}
	rec.Type = TransactionType(kind)
	rec.Amount = parsed
	rec.Status = TransactionStatus(status)
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}
