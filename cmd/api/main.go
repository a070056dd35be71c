package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/demo-credit/wallet-service/internal/config"
	"github.com/demo-credit/wallet-service/internal/infra"
	"github.com/demo-credit/wallet-service/internal/ledger"
	"github.com/demo-credit/wallet-service/internal/logging"
	"github.com/demo-credit/wallet-service/internal/routes"
	"github.com/demo-credit/wallet-service/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.AppName, cfg.AppEnv)
	if err := run(cfg, logger); err != nil {
		logger.Error("wallet service stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := routes.Deps{Cfg: cfg, Logger: logger}
	closers, err := connectBackends(ctx, cfg, logger, &deps)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	if err != nil {
		return err
	}

	srv, err := server.New(deps)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// connectBackends fills deps with whatever backing services cfg names and
// returns their close funcs in opening order. The ledger runs on Postgres
// when DATABASE_URL is set, else on SQLite when SQLITE_PATH is set, else in
// memory.
func connectBackends(ctx context.Context, cfg config.Config, logger *slog.Logger, deps *routes.Deps) ([]func(), error) {
	var closers []func()
	closeLogged := func(name string, fn func() error) func() {
		return func() {
			if err := fn(); err != nil {
				logger.Warn("close backend", "backend", name, "error", err)
			}
		}
	}

	switch {
	case cfg.DatabaseURL != "":
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.LockTimeout)
		if err != nil {
			return closers, err
		}
		closers = append(closers, db.Close)
		if err := infra.Migrate(ctx, db); err != nil {
			return closers, fmt.Errorf("migrate postgres: %w", err)
		}
		deps.DB = db
		logger.Info("ledger backend selected", "backend", "postgres")
	case cfg.SQLitePath != "":
		store, err := ledger.NewSQLiteStore(cfg.SQLitePath, cfg.LockTimeout)
		if err != nil {
			return closers, err
		}
		closers = append(closers, closeLogged("sqlite", store.Close))
		deps.Store = store
		logger.Info("ledger backend selected", "backend", "sqlite", "path", cfg.SQLitePath)
	default:
		logger.Warn("ledger backend selected", "backend", "memory")
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return closers, err
		}
		closers = append(closers, closeLogged("redis", cache.Close))
		deps.Cache = cache
	}

	if cfg.RabbitMQURL != "" {
		broker, err := infra.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return closers, err
		}
		closers = append(closers, closeLogged("rabbitmq", broker.Close))
		deps.Broker = broker
	}
	return closers, nil
}
