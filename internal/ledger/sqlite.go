package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS wallets (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	balance TEXT NOT NULL DEFAULT '0.00',
	currency TEXT NOT NULL DEFAULT 'NGN',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CONSTRAINT wallets_owner_id_key UNIQUE (owner_id),
	CONSTRAINT chk_wallet_positive_balance CHECK (CAST(balance AS REAL) >= 0)
);

CREATE TABLE IF NOT EXISTS wallet_transactions (
	id TEXT PRIMARY KEY,
	wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
	related_wallet_id TEXT REFERENCES wallets(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	description TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL,
	created_at TEXT NOT NULL,
	CONSTRAINT wallet_transactions_reference_key UNIQUE (reference),
	CONSTRAINT chk_transaction_positive_amount CHECK (CAST(amount AS REAL) > 0)
);

CREATE INDEX IF NOT EXISTS idx_wallet_transactions_wallet_created
	ON wallet_transactions(wallet_id, created_at);
CREATE INDEX IF NOT EXISTS idx_wallet_transactions_related
	ON wallet_transactions(related_wallet_id);
`

// SQLiteStore keeps the ledger in a SQLite database, for local runs and
// tests. Every unit of work starts with BEGIN IMMEDIATE, which takes the
// database write lock up front; that lock covers every wallet row, so
// LockWallet is a plain read. Waits beyond busyTimeout surface as
// SQLITE_BUSY.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteStore(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultLockWait
	}
	params := fmt.Sprintf("_foreign_keys=on&_txlock=immediate&_busy_timeout=%d", busyTimeout.Milliseconds())

	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?" + params
	} else {
		dsn = fmt.Sprintf("file:%s?%s&_journal_mode=WAL", path, params)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the handle so the identity and token stores can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteWalletColumns = `id, owner_id, balance, currency, created_at, updated_at`

const sqliteTransactionColumns = `id, wallet_id, related_wallet_id, type, amount, status, description, reference, created_at`

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) WalletByID(ctx context.Context, id string) (Wallet, error) {
	return sqliteWalletWhere(ctx, s.db, "id", id)
}

func (s *SQLiteStore) WalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	w, err := sqliteWalletWhere(ctx, s.db, "owner_id", ownerID)
	if errors.Is(err, ErrNotFound) {
		return Wallet{}, notFound("wallet for owner", ownerID)
	}
	return w, err
}

func (s *SQLiteStore) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO wallets (`+sqliteWalletColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Balance.StringFixed(2), w.Currency,
		w.CreatedAt.UTC().Format(sqliteTimeLayout), w.UpdatedAt.UTC().Format(sqliteTimeLayout))
	return err
}

func (s *SQLiteStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	rec, err := scanSQLiteTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTransactionColumns+` FROM wallet_transactions WHERE reference = ?`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, notFound("transaction", reference)
	}
	return rec, err
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteTransactionColumns+` FROM wallet_transactions
		WHERE wallet_id = ? OR related_wallet_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, walletID, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		rec, err := scanSQLiteTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockWallet(ctx context.Context, id string) (Wallet, error) {
	return sqliteWalletWhere(ctx, t.tx, "id", id)
}

func (t *sqliteTx) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE wallets SET balance = ?, updated_at = ? WHERE id = ?`,
		balance.StringFixed(2), time.Now().UTC().Format(sqliteTimeLayout), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("wallet", id)
	}
	return nil
}

func (t *sqliteTx) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE reference = ?)`, reference).Scan(&exists)
	return exists, err
}

func (t *sqliteTx) AppendTransaction(ctx context.Context, rec Transaction) error {
	var related sql.NullString
	if rec.RelatedWalletID != "" {
		related = sql.NullString{String: rec.RelatedWalletID, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO wallet_transactions (`+sqliteTransactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WalletID, related, string(rec.Type), rec.Amount.StringFixed(2), string(rec.Status),
		rec.Description, rec.Reference, rec.CreatedAt.UTC().Format(sqliteTimeLayout))
	return err
}

func sqliteWalletWhere(ctx context.Context, q sqliteQuerier, column, value string) (Wallet, error) {
	var (
		w                    Wallet
		balance              string
		createdAt, updatedAt string
	)
	row := q.QueryRowContext(ctx, `SELECT `+sqliteWalletColumns+` FROM wallets WHERE `+column+` = ?`, value)
	if err := row.Scan(&w.ID, &w.OwnerID, &balance, &w.Currency, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, notFound("wallet", value)
		}
		return Wallet{}, err
	}
	var err error
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return Wallet{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	if w.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return Wallet{}, err
	}
	if w.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTransaction(row sqliteScanner) (Transaction, error) {
	var (
		rec       Transaction
		related   sql.NullString
		kind      string
		amount    string
		status    string
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.WalletID, &related, &kind, &amount, &status, &rec.Description, &rec.Reference, &createdAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	ts, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return Transaction{}, err
	}
	rec.RelatedWalletID = related.String
	rec.Type = TransactionType(kind)
	rec.Amount = parsed
	rec.Status = TransactionStatus(status)
	rec.CreatedAt = ts
	return rec, nil
}
