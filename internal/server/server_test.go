package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/git-voucher/escrow/internal/config"
	"github.com/git-voucher/escrow/internal/logging"
)

func TestServerLifecycleInMemory(t *testing.T) {
	cfg := config.Config{
		AppName:         "test",
		AppEnv:          "test",
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		SweepInterval:   10 * time.Millisecond,
	}
	srv, err := New(cfg, nil, nil, logging.Discard())
	require.NoError(t, err)
	require.Nil(t, srv.events)

	srv.StartBackground(context.Background())

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestServerRejectsMissingBackendsOutsideDev(t *testing.T) {
	_, err := New(config.Config{AppEnv: "production"}, nil, nil, logging.Discard())
	require.Error(t, err)
}
