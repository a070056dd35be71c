package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidToken covers malformed, expired, revoked and foreign tokens alike.
var ErrInvalidToken = errors.New("invalid or expired token")

// Issued is a freshly signed access token.
type Issued struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}

// Session is what a verified bearer token resolves to.
type Session struct {
	UserID  string
	TokenID string
}

// Service issues and verifies bearer tokens. A token is valid only while its
// auth_tokens row exists, so logout and a later login revoke it before expiry.
type Service struct {
	tokens TokenRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds the token service.
func NewService(tokens TokenRepository, secret string, ttl time.Duration) *Service {
	return &Service{
		tokens: tokens,
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue revokes every token the user holds and signs a new one.
func (s *Service) Issue(ctx context.Context, userID string) (Issued, error) {
	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return Issued{}, fmt.Errorf("revoke previous tokens: %w", err)
	}

	now := s.now()
	token := Token{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	signed, err := signHS256(userID, token.ID, now, token.ExpiresAt, s.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return Issued{}, fmt.Errorf("save token: %w", err)
	}

	return Issued{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   token.ExpiresAt,
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// Authenticate verifies raw and checks that it has not been revoked.
func (s *Service) Authenticate(ctx context.Context, raw string) (Session, error) {
	claims, err := parseHS256(raw, s.secret)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	stored, ok, err := s.tokens.Find(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if !ok || stored.UserID != claims.Subject || !stored.ExpiresAt.After(s.now()) {
		return Session{}, ErrInvalidToken
	}
	return Session{UserID: claims.Subject, TokenID: claims.ID}, nil
}

// Logout revokes a single token.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	return s.tokens.Delete(ctx, tokenID)
}
