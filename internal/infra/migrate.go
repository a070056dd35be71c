package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema mirrors the tables the services read and write. Every statement is
// idempotent so Migrate can run on each boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY,
        first_name VARCHAR(100) NOT NULL,
        last_name VARCHAR(100) NOT NULL,
        email VARCHAR(225) NOT NULL UNIQUE,
        phone_number VARCHAR(50) NOT NULL UNIQUE,
        password_hash VARCHAR(225) NOT NULL,
        status VARCHAR(50) NOT NULL DEFAULT 'active',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
        id UUID PRIMARY KEY,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        expires_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_auth_tokens_user ON auth_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS wallets (
        id UUID PRIMARY KEY,
        owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        balance NUMERIC(15,2) NOT NULL DEFAULT 0,
        currency CHAR(3) NOT NULL DEFAULT 'NGN',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT wallets_owner_id_key UNIQUE (owner_id),
        CONSTRAINT chk_wallet_positive_balance CHECK (balance >= 0)
    )`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
        id UUID PRIMARY KEY,
        wallet_id UUID NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
        related_wallet_id UUID REFERENCES wallets(id) ON DELETE CASCADE,
        type VARCHAR(50) NOT NULL,
        amount NUMERIC(15,2) NOT NULL,
        status VARCHAR(50) NOT NULL DEFAULT 'pending',
        description VARCHAR(255) NOT NULL DEFAULT '',
        reference VARCHAR(100) NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT wallet_transactions_reference_key UNIQUE (reference),
        CONSTRAINT chk_transaction_positive_amount CHECK (amount > 0)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_wallet_created ON wallet_transactions(wallet_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_related ON wallet_transactions(related_wallet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_status ON wallet_transactions(status)`,
}

// Migrate creates the users, auth_tokens, wallets and wallet_transactions
// tables when they are missing.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
