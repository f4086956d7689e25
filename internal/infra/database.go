package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool configures a PostgreSQL connection pool and waits up to
// maxWait for the server to answer a ping.
func NewPostgresPool(ctx context.Context, url string, maxWait time.Duration, logger *slog.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := waitFor(ctx, maxWait, logger, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// waitFor retries ping with exponential backoff until it succeeds, ctx ends
// or maxWait elapses.
func waitFor(ctx context.Context, maxWait time.Duration, logger *slog.Logger, name string, ping func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxWait

	return backoff.RetryNotify(func() error {
		return ping(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		if logger != nil {
			logger.Warn("dependency not ready", slog.String("dependency", name), slog.Duration("retry_in", next), slog.Any("error", err))
		}
	})
}
