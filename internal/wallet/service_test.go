package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demo-credit/wallet-service/internal/ledger"
	"github.com/demo-credit/wallet-service/internal/logging"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestServiceCreateAndBalance(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewMemoryStore(time.Second), logging.Discard())
	svc := NewService(engine, nil, nil, logging.Discard())
	ctx := context.Background()
	ownerID := uuid.NewString()

	w, err := svc.Create(ctx, ownerID, "")
	require.NoError(t, err)
	assert.Equal(t, "NGN", w.Currency)

	_, err = svc.Create(ctx, ownerID, "")
	require.ErrorIs(t, err, ledger.ErrConflict)

	_, err = engine.Fund(ctx, ledger.MovementInput{WalletID: w.ID, Amount: decimal.NewFromInt(2500), Reference: "seed"})
	require.NoError(t, err)

	bal, err := svc.Balance(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, bal.WalletID)
	assert.True(t, bal.Amount.Equal(decimal.NewFromInt(2500)))
}

func TestServiceCacheIsDroppedOnCommit(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewMemoryStore(time.Second), logging.Discard())
	cache, mr := newRedisCache(t)
	svc := NewService(engine, cache, nil, logging.Discard())
	ctx := context.Background()

	w, err := svc.Create(ctx, uuid.NewString(), "")
	require.NoError(t, err)

	_, err = svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("wallet:"+w.ID), "read fills the cache")

	rec, err := engine.Fund(ctx, ledger.MovementInput{WalletID: w.ID, Amount: decimal.NewFromInt(40), Reference: "f1"})
	require.NoError(t, err)
	svc.Committed(ctx, w, rec)
	assert.False(t, mr.Exists("wallet:"+w.ID), "commit drops the entry")

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(40)))
}

// pausingCache holds the first Set until release is closed.
type pausingCache struct {
	*RedisCache
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (c *pausingCache) Set(ctx context.Context, w ledger.Wallet, gen int64) error {
	c.once.Do(func() {
		close(c.paused)
		<-c.release
	})
	return c.RedisCache.Set(ctx, w, gen)
}

func TestServiceReadRacingCommitDoesNotCacheOldBalance(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewMemoryStore(time.Second), logging.Discard())
	redisCache, _ := newRedisCache(t)
	cache := &pausingCache{RedisCache: redisCache, paused: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(engine, cache, nil, logging.Discard())
	ctx := context.Background()

	w, err := svc.Create(ctx, uuid.NewString(), "")
	require.NoError(t, err)

	readDone := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, w.ID)
		readDone <- err
	}()
	<-cache.paused

	rec, err := engine.Fund(ctx, ledger.MovementInput{WalletID: w.ID, Amount: decimal.NewFromInt(500), Reference: "during-read"})
	require.NoError(t, err)
	svc.Committed(ctx, w, rec)

	close(cache.release)
	require.NoError(t, <-readDone)

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(500)), "cached balance %s", got.Balance)
}

func TestServiceSurvivesCacheOutage(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewMemoryStore(time.Second), logging.Discard())
	cache, mr := newRedisCache(t)
	svc := NewService(engine, cache, nil, logging.Discard())
	ctx := context.Background()

	ownerID := uuid.NewString()
	w, err := svc.Create(ctx, ownerID, "")
	require.NoError(t, err)

	mr.Close()

	got, err := svc.GetByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
}

func TestServiceTransactionIsScopedToOwner(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewMemoryStore(time.Second), logging.Discard())
	svc := NewService(engine, nil, nil, logging.Discard())
	ctx := context.Background()

	alice, bob, carol := uuid.NewString(), uuid.NewString(), uuid.NewString()
	wa, err := svc.Create(ctx, alice, "")
	require.NoError(t, err)
	wb, err := svc.Create(ctx, bob, "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, carol, "")
	require.NoError(t, err)

	_, err = engine.Fund(ctx, ledger.MovementInput{WalletID: wa.ID, Amount: decimal.NewFromInt(100), Reference: "seed"})
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, ledger.TransferInput{FromWalletID: wa.ID, ToWalletID: wb.ID, Amount: decimal.NewFromInt(30), Reference: "a-to-b"})
	require.NoError(t, err)

	_, err = svc.Transaction(ctx, alice, "a-to-b")
	assert.NoError(t, err)
	_, err = svc.Transaction(ctx, bob, "a-to-b")
	assert.NoError(t, err, "counterparty sees the transfer")
	_, err = svc.Transaction(ctx, carol, "a-to-b")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	history, err := svc.Transactions(ctx, bob, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.TypeTransfer, history[0].Type)
}
