package escrow

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes organization and voucher HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initializeRequest struct {
	ExternalID uint64 `json:"external_id"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type maintainerRequest struct {
	Identity string `json:"identity"`
}

type createVoucherRequest struct {
	VoucherID           string `json:"voucher_id"`
	RecipientExternalID uint64 `json:"recipient_external_id"`
	Amount              uint64 `json:"amount"`
	Metadata            string `json:"metadata"`
}

type organizationResponse struct {
	Address         string   `json:"address"`
	ExternalID      uint64   `json:"external_id"`
	Admin           string   `json:"admin"`
	Balance         uint64   `json:"balance"`
	Held            uint64   `json:"held"`
	Maintainers     []string `json:"maintainers"`
	VouchersCreated uint64   `json:"vouchers_created"`
	Nonce           uint8    `json:"nonce"`
}

type voucherResponse struct {
	Address             string `json:"address"`
	VoucherID           string `json:"voucher_id"`
	Organization        string `json:"organization"`
	RecipientExternalID uint64 `json:"recipient_external_id"`
	Amount              uint64 `json:"amount"`
	Held                uint64 `json:"held"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
	State               string `json:"state"`
	Metadata            string `json:"metadata"`
	Nonce               uint8  `json:"nonce"`
}

// InitializeOrganization registers the caller as admin of a new organization.
func (h *Handler) InitializeOrganization(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req initializeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	org, err := h.service.InitializeOrganization(c.UserContext(), caller, req.ExternalID)
	if err != nil {
		return httpError(err)
	}
	return h.writeOrganization(c, http.StatusCreated, org)
}

// GetOrganization returns an organization and the funds its account holds.
func (h *Handler) GetOrganization(c *fiber.Ctx) error {
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	org, err := h.service.GetOrganization(c.UserContext(), externalID)
	if err != nil {
		return httpError(err)
	}
	return h.writeOrganization(c, http.StatusOK, org)
}

// Deposit moves funds from the caller into the organization pool.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.amountOperation(c, h.service.Deposit)
}

// Withdraw pays funds out of the pool to the admin.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.amountOperation(c, h.service.Withdraw)
}

// AddMaintainer grants voucher rights to an identity.
func (h *Handler) AddMaintainer(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	var req maintainerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Identity == "" {
		return fiber.NewError(http.StatusBadRequest, "identity is required")
	}
	org, err := h.service.AddMaintainer(c.UserContext(), caller, externalID, Identity(req.Identity))
	if err != nil {
		return httpError(err)
	}
	return h.writeOrganization(c, http.StatusOK, org)
}

// RemoveMaintainer revokes voucher rights.
func (h *Handler) RemoveMaintainer(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	org, err := h.service.RemoveMaintainer(c.UserContext(), caller, externalID, Identity(c.Params("identity")))
	if err != nil {
		return httpError(err)
	}
	return h.writeOrganization(c, http.StatusOK, org)
}

// CreateVoucher earmarks pool funds for a recipient.
func (h *Handler) CreateVoucher(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	var req createVoucherRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.CreateVoucher(c.UserContext(), CreateVoucherInput{
		Maintainer:          caller,
		OrganizationID:      externalID,
		VoucherID:           req.VoucherID,
		RecipientExternalID: req.RecipientExternalID,
		Amount:              req.Amount,
		Metadata:            req.Metadata,
	})
	if err != nil {
		return httpError(err)
	}
	return h.writeVoucher(c, http.StatusCreated, v)
}

// ListVouchers returns an organization's vouchers, optionally filtered by ?state=.
func (h *Handler) ListVouchers(c *fiber.Ctx) error {
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	var state State
	if raw := c.Query("state"); raw != "" {
		state, err = ParseState(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	limit := c.QueryInt("limit", 100)
	vouchers, err := h.service.ListVouchers(c.UserContext(), externalID, state, limit)
	if err != nil {
		return httpError(err)
	}
	out := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		held, err := h.service.Held(c.UserContext(), v.Address)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, toVoucherResponse(v, held))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"vouchers": out})
}

// GetVoucher returns a voucher by its external id.
func (h *Handler) GetVoucher(c *fiber.Ctx) error {
	voucherID, err := voucherIDParam(c)
	if err != nil {
		return err
	}
	v, err := h.service.GetVoucher(c.UserContext(), voucherID)
	if err != nil {
		return httpError(err)
	}
	return h.writeVoucher(c, http.StatusOK, v)
}

// ClaimVoucher pays a pending voucher out to the caller.
func (h *Handler) ClaimVoucher(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	voucherID, err := voucherIDParam(c)
	if err != nil {
		return err
	}
	v, err := h.service.ClaimVoucher(c.UserContext(), caller, voucherID)
	if err != nil {
		return httpError(err)
	}
	return h.writeVoucher(c, http.StatusOK, v)
}

// CancelVoucher returns a pending voucher's funds to its organization.
func (h *Handler) CancelVoucher(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	voucherID, err := voucherIDParam(c)
	if err != nil {
		return err
	}
	v, err := h.service.CancelVoucher(c.UserContext(), caller, externalID, voucherID)
	if err != nil {
		return httpError(err)
	}
	return h.writeVoucher(c, http.StatusOK, v)
}

// ExpireVoucher refunds a voucher whose claim window has closed.
func (h *Handler) ExpireVoucher(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	voucherID, err := voucherIDParam(c)
	if err != nil {
		return err
	}
	v, err := h.service.ExpireVoucher(c.UserContext(), caller, externalID, voucherID)
	if err != nil {
		return httpError(err)
	}
	return h.writeVoucher(c, http.StatusOK, v)
}

func (h *Handler) amountOperation(c *fiber.Ctx, op func(ctx context.Context, caller Identity, externalID, amount uint64) (Organization, error)) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	externalID, err := externalIDParam(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	org, err := op(c.UserContext(), caller, externalID, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return h.writeOrganization(c, http.StatusOK, org)
}

func (h *Handler) writeOrganization(c *fiber.Ctx, status int, org Organization) error {
	held, err := h.service.Held(c.UserContext(), org.Address)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	maintainers := make([]string, 0, len(org.Maintainers))
	for _, m := range org.Maintainers {
		maintainers = append(maintainers, string(m))
	}
	return c.Status(status).JSON(organizationResponse{
		Address:         org.Address.String(),
		ExternalID:      org.ExternalID,
		Admin:           string(org.Admin),
		Balance:         org.Balance,
		Held:            held,
		Maintainers:     maintainers,
		VouchersCreated: org.VouchersCreated,
		Nonce:           org.Nonce,
	})
}

func (h *Handler) writeVoucher(c *fiber.Ctx, status int, v Voucher) error {
	held, err := h.service.Held(c.UserContext(), v.Address)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(status).JSON(toVoucherResponse(v, held))
}

func toVoucherResponse(v Voucher, held uint64) voucherResponse {
	return voucherResponse{
		Address:             v.Address.String(),
		VoucherID:           v.VoucherID,
		Organization:        v.Organization.String(),
		RecipientExternalID: v.RecipientExternalID,
		Amount:              v.Amount,
		Held:                held,
		CreatedAt:           v.CreatedAt,
		ExpiresAt:           v.ExpiresAt,
		State:               string(v.State),
		Metadata:            v.Metadata,
		Nonce:               v.Nonce,
	}
}

func callerIdentity(c *fiber.Ctx) (Identity, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return Identity(uid), nil
}

func externalIDParam(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("externalId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid organization id")
	}
	return id, nil
}

// voucherIDParam decodes the voucher id path segment. Ids may contain any
// byte, so clients send them path-escaped.
func voucherIDParam(c *fiber.Ctx) (string, error) {
	id, err := url.PathUnescape(c.Params("voucherId"))
	if err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid voucher id")
	}
	return id, nil
}

// httpError maps an escrow failure onto a status code.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAddressInUse):
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	class, ok := ClassOf(err)
	if !ok {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	switch class {
	case ClassValidation:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case ClassAuthorization:
		return fiber.NewError(http.StatusForbidden, err.Error())
	case ClassState:
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	}
}
