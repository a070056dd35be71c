package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgApplicationName = "wallet-service"
	pgPingTimeout     = 5 * time.Second
	pgMaxConnIdleTime = 5 * time.Minute
)

// NewPostgresPool opens the pgx pool the ledger, identity and token stores
// share. A positive lockTimeout becomes the session lock_timeout: a row lock
// wait longer than that fails with SQLSTATE 55P03, which the ledger reports
// as a lock timeout.
func NewPostgresPool(ctx context.Context, url string, lockTimeout time.Duration) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, errors.New("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = pgApplicationName
	}
	if lockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(lockTimeout.Milliseconds(), 10)
	}
	cfg.MaxConnIdleTime = pgMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s/%s: %w", cfg.ConnConfig.Host, cfg.ConnConfig.Database, err)
	}
	return pool, nil
}
