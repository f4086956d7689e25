package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/git-voucher/escrow/internal/config"
	"github.com/git-voucher/escrow/internal/metrics"
	"github.com/git-voucher/escrow/internal/notification"
	"github.com/git-voucher/escrow/internal/routes"
	"github.com/git-voucher/escrow/internal/sweeper"
)

// Server wraps the Fiber application, shared dependencies and background workers.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	db      *pgxpool.Pool
	cache   *redis.Client
	sweeper *sweeper.Sweeper
	events  *notification.KafkaNotifier

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Metrics: metrics.New()}
	var events *notification.KafkaNotifier
	if len(cfg.KafkaBrokers) > 0 {
		events = notification.NewKafkaNotifier(notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger))
		deps.Events = events
		logger.Info("publishing voucher events", slog.String("topic", cfg.KafkaTopic))
	}

	escrowSvc, err := routes.Setup(app, deps)
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		return nil, err
	}

	sw := sweeper.New(escrowSvc, cfg.SweepInterval, logger)
	sw.OnSweep(deps.Metrics.ObserveSweep)

	return &Server{
		app:     app,
		cfg:     cfg,
		db:      db,
		cache:   cache,
		sweeper: sw,
		events:  events,
	}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// StartBackground launches the expiry sweeper. Shutdown stops it.
func (s *Server) StartBackground(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweeper.Run(ctx)
	}()
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops background workers and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	err := s.app.ShutdownWithContext(ctx)
	if s.events != nil {
		if cerr := s.events.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
