package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/demo-credit/wallet-service/internal/auth"
	"github.com/demo-credit/wallet-service/internal/config"
	"github.com/demo-credit/wallet-service/internal/funding"
	"github.com/demo-credit/wallet-service/internal/identity"
	"github.com/demo-credit/wallet-service/internal/infra"
	"github.com/demo-credit/wallet-service/internal/ledger"
	"github.com/demo-credit/wallet-service/internal/middleware"
	"github.com/demo-credit/wallet-service/internal/notification"
	"github.com/demo-credit/wallet-service/internal/payments"
	"github.com/demo-credit/wallet-service/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. Store picks
// the ledger backend; when nil it is Postgres if DB is set and the in-memory
// store otherwise. Users and tokens live in the same database as the ledger.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Store  ledger.Store
	Cache  *redis.Client
	Broker *infra.RabbitMQ
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Storage
	store := d.Store
	if store == nil {
		if d.DB != nil {
			store = ledger.NewPostgresStore(d.DB)
		} else {
			store = ledger.NewMemoryStore(d.Cfg.LockTimeout)
		}
	}
	var (
		identityRepo identity.Repository
		tokenRepo    auth.TokenRepository
	)
	lite, onSQLite := store.(*ledger.SQLiteStore)
	switch {
	case d.DB != nil:
		identityRepo = identity.NewPostgresRepository(d.DB)
		tokenRepo = auth.NewPostgresTokenRepository(d.DB)
	case onSQLite:
		ctx := context.Background()
		users, err := identity.NewSQLiteRepository(ctx, lite.DB())
		if err != nil {
			return err
		}
		tokens, err := auth.NewSQLiteTokenRepository(ctx, lite.DB())
		if err != nil {
			return err
		}
		identityRepo, tokenRepo = users, tokens
	default:
		identityRepo = identity.NewMemoryRepository()
		tokenRepo = auth.NewMemoryTokenRepository()
	}

	var cache wallet.Cache = wallet.NoCache{}
	if d.Cache != nil {
		cache = wallet.NewRedisCache(d.Cache, d.Cfg.BalanceCacheTTL)
	}
	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if d.Broker != nil {
		notifier = notification.NewAMQPNotifier(d.Broker.Channel, infra.WalletEventsExchange)
	}

	// Services and handlers
	engine := ledger.NewEngine(store, d.Logger)
	walletSvc := wallet.NewService(engine, cache, notifier, d.Logger)
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(tokenRepo, d.Cfg.JWTSecret, d.Cfg.TokenTTL)
	fundingSvc, err := funding.NewService(engine, walletSvc, nil)
	if err != nil {
		return err
	}
	paymentSvc := payments.NewService(engine, walletSvc, identitySvc)

	authHandler := auth.NewHandler(identitySvc, authSvc, walletSvc, d.Cfg.DefaultCurrency, d.Logger)
	identityHandler := identity.NewHandler(identitySvc)
	walletHandler := wallet.NewHandler(walletSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	paymentHandler := payments.NewHandler(paymentSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	bearer := middleware.BearerAuth(authSvc)
	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	// Public routes
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit), bearer)

	// Protected routes
	protected := api.Group("", bearer)
	RegisterIdentityRoutes(protected, identityHandler)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterFundingRoutes(protected, fundingHandler, idempotent)
	RegisterPaymentRoutes(protected, paymentHandler, idempotent)

	return nil
}
