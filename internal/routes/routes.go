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

	"github.com/git-voucher/escrow/internal/auth"
	"github.com/git-voucher/escrow/internal/config"
	"github.com/git-voucher/escrow/internal/escrow"
	"github.com/git-voucher/escrow/internal/funding"
	"github.com/git-voucher/escrow/internal/identity"
	"github.com/git-voucher/escrow/internal/ledger"
	"github.com/git-voucher/escrow/internal/metrics"
	"github.com/git-voucher/escrow/internal/middleware"
	"github.com/git-voucher/escrow/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Events receives voucher lifecycle notifications in addition to the log.
	Events notification.Notifier
}

// Setup configures middlewares and all application routes and returns the
// escrow service so background workers can share it.
func Setup(app *fiber.App, d Deps) (*escrow.Service, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(d.Metrics.Middleware())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", d.Metrics.Handler())

	// Services and handlers
	var (
		ledgerBackend ledger.Ledger
		escrowRepo    escrow.Repository
		identityRepo  identity.Repository
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		escrowRepo = escrow.NewPostgresRepository(d.DB, d.Cfg.TxRetryMaxElapsed)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		mem := ledger.NewInMemory()
		ledgerBackend = mem
		escrowRepo = escrow.NewMemoryRepository(mem)
		identityRepo = identity.NewMemoryRepository()
	}

	notifier := notification.Fanout{notification.NewLoggerNotifier(d.Logger), d.Metrics}
	if d.Events != nil {
		notifier = append(notifier, d.Events)
	}
	identitySvc := identity.NewService(identityRepo, ledgerBackend)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	escrowSvc := escrow.NewService(escrowRepo, ledgerBackend, notifier, d.Logger)
	fundingSvc, err := funding.NewService(context.Background(), ledgerBackend, identitySvc, nil)
	if err != nil {
		return nil, err
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDFrom(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(authSvc)

	// Public routes
	RegisterIdentityRoutes(api, identity.NewHandler(identitySvc), jwtmw, d.Logger)
	loginLimiter := middleware.RateLimit(d.Cache, "login", d.Cfg.LoginRateLimit, middleware.LoginKey)
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), loginLimiter, jwtmw)

	// Escrow: reads are public, everything else requires a token.
	claimLimiter := middleware.RateLimit(d.Cache, "claim", d.Cfg.ClaimRateLimit, middleware.CallerKey)
	RegisterEscrowRoutes(api, escrow.NewHandler(escrowSvc), jwtmw, claimLimiter)

	// Protected routes
	protected := api.Group("", jwtmw)
	RegisterFundingRoutes(protected, funding.NewHandler(fundingSvc))

	return escrowSvc, nil
}
