package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL",
		"JWT_SECRET", "REFRESH_SECRET", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL",
		"SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", "IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL",
		"EXPIRY_SWEEP_INTERVAL", "TX_RETRY_MAX_ELAPSED", "LOGIN_RATE_LIMIT_PER_MINUTE", "CLAIM_RATE_LIMIT_PER_MINUTE",
		"KAFKA_BROKERS", "KAFKA_TOPIC",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsDev())
	require.Equal(t, ":8080", cfg.Address())
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, devJWTSecret, cfg.JWTSecret)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, defaultClaimRateLimit, cfg.ClaimRateLimit)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, "escrow.vouchers", cfg.KafkaTopic)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "30s")
	t.Setenv("CLAIM_RATE_LIMIT_PER_MINUTE", "2")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC", "vouchers")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Address())
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	require.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
	require.Equal(t, 2, cfg.ClaimRateLimit)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "vouchers", cfg.KafkaTopic)
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/escrow")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_, err = Load()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a")
	t.Setenv("REFRESH_SECRET", "b")
	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.IsDev())
}

func TestLoadRejectsBadDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "ACCESS_TOKEN_TTL")
}
