package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/git-voucher/escrow/internal/escrow"
)

// RegisterEscrowRoutes wires organization and voucher endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler, jwtmw, claimLimiter fiber.Handler) {
	orgs := r.Group("/organizations")
	orgs.Get("/:externalId", h.GetOrganization)
	orgs.Get("/:externalId/vouchers", h.ListVouchers)
	orgs.Post("", jwtmw, h.InitializeOrganization)
	orgs.Post("/:externalId/deposits", jwtmw, h.Deposit)
	orgs.Post("/:externalId/withdrawals", jwtmw, h.Withdraw)
	orgs.Post("/:externalId/maintainers", jwtmw, h.AddMaintainer)
	orgs.Delete("/:externalId/maintainers/:identity", jwtmw, h.RemoveMaintainer)
	orgs.Post("/:externalId/vouchers", jwtmw, h.CreateVoucher)
	orgs.Post("/:externalId/vouchers/:voucherId/cancel", jwtmw, h.CancelVoucher)
	orgs.Post("/:externalId/vouchers/:voucherId/expire", jwtmw, h.ExpireVoucher)

	vouchers := r.Group("/vouchers")
	vouchers.Get("/:voucherId", h.GetVoucher)
	vouchers.Post("/:voucherId/claim", jwtmw, claimLimiter, h.ClaimVoucher)
}
