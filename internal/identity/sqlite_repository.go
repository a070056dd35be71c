package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteUsersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	phone_number TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteRepository keeps users next to the ledger tables when the service
// runs on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates the users table if needed.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteUsersSchema); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Create inserts a new user. A duplicate email or phone number is reported as
// ErrEmailTaken.
func (r *SQLiteRepository) Create(ctx context.Context, user User) error {
	ts := user.CreatedAt.UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, first_name, last_name, email, phone_number, password_hash, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Phone, string(user.PasswordHash), user.Status, ts, ts)
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrEmailTaken
	}
	return err
}

func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `WHERE email = ?`, email)
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepository) findOne(ctx context.Context, where string, arg any) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, first_name, last_name, email, phone_number, password_hash, status, created_at
        FROM users `+where, arg)
	var (
		user      User
		hash      string
		createdAt string
	)
	if err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Phone, &hash, &user.Status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	user.PasswordHash = []byte(hash)
	user.CreatedAt = ts
	return user, nil
}
