package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/git-voucher/escrow/internal/ledger"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Handle string `json:"handle"`
	Secret string `json:"secret"`
}

type profileResponse struct {
	UserID       string     `json:"user_id"`
	Handle       string     `json:"handle"`
	Address      string     `json:"address"`
	Balance      uint64     `json:"balance"`
	TokenVersion int        `json:"token_version"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Handle: req.Handle, Secret: req.Secret})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(h.profile(user, 0))
}

// Me returns the authenticated user's profile and balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "user not found")
	}
	balance, err := h.service.Balance(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(h.profile(user, balance))
}

func (h *Handler) profile(user User, balance uint64) profileResponse {
	return profileResponse{
		UserID:       user.ID,
		Handle:       user.Handle,
		Address:      ledger.IdentityAddress(user.ID).String(),
		Balance:      balance,
		TokenVersion: user.TokenVersion,
		CreatedAt:    user.CreatedAt,
		LastLogin:    user.LastLogin,
	}
}
