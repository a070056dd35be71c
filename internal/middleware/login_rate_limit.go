package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loginRateLimitPrefix = "rl:login:"
	loginRateWindow      = time.Minute
	defaultLoginLimit    = 5
)

// LoginRateLimit caps login attempts per email, or per client IP when the
// body carries none, at maxPerMin per fixed one minute window. Without Redis,
// or when Redis fails, requests pass.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultLoginLimit
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}

		var req struct {
			Email string `json:"email"`
		}
		_ = c.BodyParser(&req)
		subject := strings.ToLower(strings.TrimSpace(req.Email))
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		key := loginRateLimitPrefix + subject

		ctx := c.UserContext()
		var (
			incr *redis.IntCmd
			ttl  *redis.DurationCmd
		)
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			ttl = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			return c.Next()
		}
		// a key without expiry starts a new window
		if ttl.Val() < 0 {
			cache.Expire(ctx, key, loginRateWindow)
		}

		if incr.Val() > int64(maxPerMin) {
			retry := ttl.Val()
			if retry <= 0 {
				retry = loginRateWindow
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
