package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/git-voucher/escrow/internal/identity"
	"github.com/git-voucher/escrow/internal/ledger"
)

// Handler exposes HTTP endpoints for card funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// TopUp credits the caller's account from a card.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.TopUp(c.UserContext(), TopUpInput{
		UserID:     uid,
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	if err != nil {
		return fundingError(c, result, err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

// Payout pushes funds from the caller's account to a card.
func (h *Handler) Payout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req PayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Payout(c.UserContext(), PayoutInput{
		UserID:     uid,
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
	})
	if err != nil {
		return fundingError(c, result, err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func fundingError(c *fiber.Ctx, result FundingResult, err error) error {
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return c.Status(http.StatusOK).JSON(toResponse(result))
	case errors.Is(err, ErrDeclined):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, identity.ErrUserNotFound):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrBalanceOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}

func toResponse(result FundingResult) FundingResponse {
	return FundingResponse{
		TransactionID:     result.TransactionID,
		Status:            result.Status,
		Balance:           result.Balance,
		AcquirerReference: result.AcquirerReference,
		CompletedAt:       result.CompletedAt,
	}
}
