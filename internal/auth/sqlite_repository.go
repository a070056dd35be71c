package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteTokensSchema = `
CREATE TABLE IF NOT EXISTS auth_tokens (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auth_tokens_user ON auth_tokens(user_id);`

// SQLiteTokenRepository stores tokens in the auth_tokens table of the SQLite
// ledger database.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewSQLiteTokenRepository creates the auth_tokens table if needed.
func NewSQLiteTokenRepository(ctx context.Context, db *sql.DB) (*SQLiteTokenRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteTokensSchema); err != nil {
		return nil, fmt.Errorf("migrate auth_tokens: %w", err)
	}
	return &SQLiteTokenRepository{db: db}, nil
}

func (r *SQLiteTokenRepository) Save(ctx context.Context, token Token) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO auth_tokens (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token.ID, token.UserID, token.ExpiresAt.UTC().Format(time.RFC3339Nano), token.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *SQLiteTokenRepository) Find(ctx context.Context, id string) (Token, bool, error) {
	var (
		t                    Token
		expiresAt, createdAt string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, expires_at, created_at FROM auth_tokens WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	if t.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return Token{}, false, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Token{}, false, err
	}
	return t, true, nil
}

func (r *SQLiteTokenRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = ?`, id)
	return err
}

func (r *SQLiteTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = ?`, userID)
	return err
}
