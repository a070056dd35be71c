package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demo-credit/wallet-service/internal/ledger"
)

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	w := ledger.Wallet{ID: "w-1", OwnerID: "o-1", Balance: decimal.RequireFromString("12.30"), Currency: "NGN", CreatedAt: time.Now().UTC()}
	miss, err := cache.Get(ctx, "w-1")
	require.NoError(t, err)
	require.False(t, miss.Hit)
	require.NoError(t, cache.Set(ctx, w, miss.Gen))

	got, err := cache.Get(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, got.Hit)
	assert.True(t, got.Wallet.Balance.Equal(w.Balance))
	assert.Equal(t, "o-1", got.Wallet.OwnerID)

	mr.FastForward(2 * time.Minute)
	got, err = cache.Get(ctx, "w-1")
	require.NoError(t, err)
	assert.False(t, got.Hit)

	require.NoError(t, cache.Invalidate(ctx, "", "missing"))
}

func TestRedisCacheRefusesFillFromBeforeInvalidate(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	w := ledger.Wallet{ID: "w-2", Balance: decimal.Zero, Currency: "NGN"}
	miss, err := cache.Get(ctx, w.ID)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, w.ID))
	require.NoError(t, cache.Set(ctx, w, miss.Gen))
	assert.False(t, mr.Exists("wallet:w-2"), "fill with an old generation is dropped")

	fresh, err := cache.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, miss.Gen+1, fresh.Gen)
	require.NoError(t, cache.Set(ctx, w, fresh.Gen))
	assert.True(t, mr.Exists("wallet:w-2"))
}
