package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/git-voucher/escrow/internal/funding"
)

// RegisterFundingRoutes wires card top-up and payout endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/funding/top-up", h.TopUp)
	r.Post("/funding/payout", h.Payout)
}
