package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
	idempotencyOpTimeout = 2 * time.Second
)

var errInProgress = errors.New("request with this key is still processing")

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// replayStore keeps one reservation or finished response per cache key.
type replayStore struct {
	cache *redis.Client
	ttl   time.Duration
}

func (s replayStore) load(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := s.cache.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw == inProgressMarker {
		return nil, errInProgress
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s replayStore) reserve(ctx context.Context, key string) error {
	ok, err := s.cache.SetNX(ctx, key, inProgressMarker, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errInProgress
	}
	return nil
}

func (s replayStore) save(ctx context.Context, key string, resp storedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s replayStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
	defer cancel()
	s.cache.Del(ctx, key)
}

// Idempotency replays the stored response of an unsafe request that repeats
// an Idempotency-Key the same user already sent to the same route. Requests
// without the header pass through and rely on the ledger reference alone. A
// failed request releases its key so the client can retry it.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayStore{cache: cache, ttl: ttl}

	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" || cache == nil {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key must be at most 255 characters")
		}

		uid, _ := c.Locals("user_id").(string)
		cacheKey := idempotencyPrefix + uid + ":" + method + ":" + c.Path() + ":" + key
		log := logger.With(slog.String("idempotency_key", key), slog.String("user_id", uid))

		ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyOpTimeout)
		defer cancel()

		stored, err := store.load(ctx, cacheKey)
		switch {
		case errors.Is(err, errInProgress):
			return fiber.NewError(fiber.StatusConflict, errInProgress.Error())
		case err != nil:
			log.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		case stored != nil:
			c.Set(replayedHeader, "true")
			if stored.ContentType != "" {
				c.Set(fiber.HeaderContentType, stored.ContentType)
			}
			return c.Status(stored.Status).SendString(stored.Body)
		}

		if err := store.reserve(ctx, cacheKey); err != nil {
			if errors.Is(err, errInProgress) {
				return fiber.NewError(fiber.StatusConflict, errInProgress.Error())
			}
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}

		if err := c.Next(); err != nil {
			store.release(cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusBadRequest {
			store.release(cacheKey)
			return nil
		}

		resp := storedResponse{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		}
		saveCtx, saveCancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
		defer saveCancel()
		if err := store.save(saveCtx, cacheKey, resp); err != nil {
			// the movement has committed; a retry is caught by its ledger reference
			log.Warn("idempotent response not stored", slog.Any("error", err))
			store.release(cacheKey)
		}
		return nil
	}
}
