package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Token is a persisted access token. Only its id is stored; the signed
// string is never kept.
type Token struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenRepository persists live tokens so logout and re-login can revoke them.
type TokenRepository interface {
	Save(ctx context.Context, token Token) error
	Find(ctx context.Context, id string) (Token, bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// PostgresTokenRepository stores tokens in the auth_tokens table.
type PostgresTokenRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTokenRepository builds a token repository backed by PostgreSQL.
func NewPostgresTokenRepository(db *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

func (r *PostgresTokenRepository) Save(ctx context.Context, token Token) error {
	id, err := uuid.Parse(token.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(token.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO auth_tokens (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		id, userID, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	return err
}

func (r *PostgresTokenRepository) Find(ctx context.Context, id string) (Token, bool, error) {
	tokenID, err := uuid.Parse(id)
	if err != nil {
		return Token{}, false, nil
	}
	var (
		t      Token
		userID uuid.UUID
	)
	err = r.db.QueryRow(ctx, `SELECT user_id, expires_at, created_at FROM auth_tokens WHERE id = $1`, tokenID).
		Scan(&userID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}
	t.ID = tokenID.String()
	t.UserID = userID.String()
	return t, true, nil
}

func (r *PostgresTokenRepository) Delete(ctx context.Context, id string) error {
	tokenID, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	_, err = r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE id = $1`, tokenID)
	return err
}

func (r *PostgresTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, uid)
	return err
}

type memoryTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryTokenRepository builds an in-memory token store for tests and
// local runs.
func NewMemoryTokenRepository() TokenRepository {
	return &memoryTokenRepository{tokens: make(map[string]Token)}
}

func (r *memoryTokenRepository) Save(_ context.Context, token Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

func (r *memoryTokenRepository) Find(_ context.Context, id string) (Token, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	return t, ok, nil
}

func (r *memoryTokenRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *memoryTokenRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}
