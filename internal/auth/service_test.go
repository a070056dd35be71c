package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryTokenRepository(), "secret", time.Hour)
	ctx := context.Background()
	userID := uuid.NewString()

	issued, err := svc.Issue(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.Equal(t, int64(3600), issued.ExpiresIn)

	session, err := svc.Authenticate(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)
	assert.NotEmpty(t, session.TokenID)
}

func TestIssueRevokesPreviousTokens(t *testing.T) {
	svc := NewService(NewMemoryTokenRepository(), "secret", time.Hour)
	ctx := context.Background()
	userID := uuid.NewString()

	first, err := svc.Issue(ctx, userID)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, userID)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Authenticate(ctx, second.AccessToken)
	assert.NoError(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := NewService(NewMemoryTokenRepository(), "secret", time.Hour)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, uuid.NewString())
	require.NoError(t, err)
	session, err := svc.Authenticate(ctx, issued.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.TokenID))
	_, err = svc.Authenticate(ctx, issued.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRejectsForeignAndExpiredTokens(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository()
	svc := NewService(repo, "secret", time.Hour)

	other := NewService(repo, "another-secret", time.Hour)
	forged, err := other.Issue(ctx, uuid.NewString())
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, forged.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "signature from another key")

	past := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return past }
	stale, err := svc.Issue(ctx, uuid.NewString())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().UTC() }
	_, err = svc.Authenticate(ctx, stale.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID: uuid.NewString(), Subject: uuid.NewString(), Issuer: issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
