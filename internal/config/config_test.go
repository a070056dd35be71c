package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "NGN", cfg.DefaultCurrency)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, defaultLockTimeout, cfg.LockTimeout)
	assert.Equal(t, defaultLoginRateLimit, cfg.LoginRateLimit)
}

func TestLoadProductionRequiresBackingServices(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/wallet")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestDurationEnvPrefersSeconds(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOCK_TIMEOUT_SECONDS", "3")
	t.Setenv("LOCK_TIMEOUT", "1m")
	t.Setenv("TOKEN_TTL", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	t.Setenv("IDEMPOTENCY_TTL", "soon")
	_, err := Load()
	assert.Error(t, err)
	t.Setenv("IDEMPOTENCY_TTL", "")

	t.Setenv("DEFAULT_CURRENCY", "NAIRA")
	_, err = Load()
	assert.Error(t, err)
	t.Setenv("DEFAULT_CURRENCY", "")

	t.Setenv("LOGIN_RATE_LIMIT", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestAddress(t *testing.T) {
	assert.Equal(t, ":8080", Config{Port: "8080"}.Address())
	assert.Equal(t, ":9000", Config{Port: ":9000"}.Address())
}
