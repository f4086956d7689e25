package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/git-voucher/escrow/internal/identity"
)

// RegisterIdentityRoutes wires registration and the profile endpoint.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, jwtmw fiber.Handler, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		if err := h.Register(c); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("identity.register completed", slog.Int("status", c.Response().StatusCode()))
		}
		return nil
	})
	r.Get("/me", jwtmw, h.Me)
}
