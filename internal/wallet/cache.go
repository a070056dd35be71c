package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/demo-credit/wallet-service/internal/ledger"
)

// Lookup is the outcome of a cache read. On a miss Gen is the generation a
// fill must present to Set.
type Lookup struct {
	Wallet ledger.Wallet
	Hit    bool
	Gen    int64
}

// Cache holds read copies of wallets. Invalidate bumps a per-wallet
// generation and Set only stores when the generation is still the one the
// reader saw, so a copy read before a commit is never stored after it.
type Cache interface {
	Get(ctx context.Context, walletID string) (Lookup, error)
	Set(ctx context.Context, w ledger.Wallet, gen int64) error
	Invalidate(ctx context.Context, walletIDs ...string) error
}

// RedisCache stores wallets as JSON under wallet:<id> and their generation
// under wallet:<id>:gen.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a cache with the given entry lifetime.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(walletID string) string {
	return fmt.Sprintf("wallet:%s", walletID)
}

func genKey(walletID string) string {
	return fmt.Sprintf("wallet:%s:gen", walletID)
}

// setIfCurrent writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfCurrent = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func (c *RedisCache) Get(ctx context.Context, walletID string) (Lookup, error) {
	vals, err := c.client.MGet(ctx, cacheKey(walletID), genKey(walletID)).Result()
	if err != nil {
		return Lookup{}, err
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Lookup{}, fmt.Errorf("parse cache generation %q: %w", raw, err)
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return Lookup{Gen: gen}, nil
	}
	var w ledger.Wallet
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Lookup{Gen: gen}, err
	}
	return Lookup{Wallet: w, Hit: true, Gen: gen}, nil
}

func (c *RedisCache) Set(ctx context.Context, w ledger.Wallet, gen int64) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return setIfCurrent.Run(ctx, c.client,
		[]string{cacheKey(w.ID), genKey(w.ID)},
		strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds(),
	).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, walletIDs ...string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range walletIDs {
			if id == "" {
				continue
			}
			pipe.Incr(ctx, genKey(id))
			pipe.Del(ctx, cacheKey(id))
		}
		return nil
	})
	return err
}

// NoCache always misses.
type NoCache struct{}

func (NoCache) Get(context.Context, string) (Lookup, error) { return Lookup{}, nil }

func (NoCache) Set(context.Context, ledger.Wallet, int64) error { return nil }

func (NoCache) Invalidate(context.Context, ...string) error { return nil }
