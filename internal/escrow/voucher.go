package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/git-voucher/escrow/internal/notification"
)

// CreateVoucherInput captures what a maintainer supplies to earmark funds.
type CreateVoucherInput struct {
	Maintainer          Identity
	OrganizationID      uint64
	VoucherID           string
	RecipientExternalID uint64
	Amount              uint64
	Metadata            string
}

// CreateVoucher moves Amount from the organization pool into a new pending
// voucher. A voucher id can only ever be used once.
func (s *Service) CreateVoucher(ctx context.Context, input CreateVoucherInput) (Voucher, error) {
	if input.Amount == 0 {
		return Voucher{}, ErrZeroAmount
	}
	if len(input.VoucherID) > MaxVoucherIDLen {
		return Voucher{}, ErrVoucherIDTooLong
	}
	if len(input.Metadata) > MaxMetadataLen {
		return Voucher{}, ErrMetadataTooLong
	}

	orgAddr, _, err := OrganizationAddress(input.OrganizationID)
	if err != nil {
		return Voucher{}, err
	}
	voucherAddr, nonce, err := VoucherAddress(input.VoucherID)
	if err != nil {
		return Voucher{}, err
	}
	now := s.now().Unix()

	voucher := Voucher{
		Address:             voucherAddr,
		VoucherID:           input.VoucherID,
		Organization:        orgAddr,
		RecipientExternalID: input.RecipientExternalID,
		Amount:              input.Amount,
		CreatedAt:           now,
		ExpiresAt:           now + VoucherLifetime,
		State:               StatePending,
		Metadata:            input.Metadata,
		Nonce:               nonce,
	}

	err = s.repo.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		org, err := tx.Organization(ctx, orgAddr)
		if err != nil {
			return err
		}
		if org.Balance < input.Amount {
			return ErrInsufficientBalance
		}
		if !org.IsMaintainer(input.Maintainer) {
			return ErrNotAuthorized
		}
		balance, err := checkedSub(org.Balance, input.Amount)
		if err != nil {
			return err
		}
		if err := tx.InsertVoucher(ctx, voucher); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, org.Address, voucher.Address, "voucher_create", input.Amount); err != nil {
			return fundsError(err)
		}
		org.Balance = balance
		org.VouchersCreated++
		return tx.UpdateOrganization(ctx, org)
	})
	if err != nil {
		return Voucher{}, fmt.Errorf("create voucher %q: %w", input.VoucherID, err)
	}

	s.info("escrow.voucher_created",
		slog.String("voucher_id", voucher.VoucherID),
		slog.Uint64("organization", input.OrganizationID),
		slog.Uint64("recipient_external_id", voucher.RecipientExternalID),
		slog.Uint64("amount", voucher.Amount),
		slog.Int64("expires_at", voucher.ExpiresAt),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindVoucherCreated,
		Destination: recipientDestination(voucher),
		Body:        fmt.Sprintf("Voucher %s holds %d units for you until %d", voucher.VoucherID, voucher.Amount, voucher.ExpiresAt),
	})
	return voucher, nil
}

// ClaimVoucher pays a pending, unexpired voucher out to recipient. The
// recipient is not matched against RecipientExternalID here; that binding
// belongs to whoever authenticates the caller.
func (s *Service) ClaimVoucher(ctx context.Context, recipient Identity, voucherID string) (Voucher, error) {
	addr, _, err := VoucherAddress(voucherID)
	if err != nil {
		return Voucher{}, err
	}
	now := s.now().Unix()

	var out Voucher
	err = s.repo.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		v, err := tx.Voucher(ctx, addr)
		if err != nil {
			return err
		}
		if v.State != StatePending {
			return ErrInvalidVoucherState
		}
		if now > v.ExpiresAt {
			return ErrVoucherExpired
		}
		if err := tx.Transfer(ctx, v.Address, recipient.Address(), "voucher_claim", v.Amount); err != nil {
			return fundsError(err)
		}
		v.State = StateClaimed
		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Voucher{}, fmt.Errorf("claim voucher %q: %w", voucherID, err)
	}

	s.info("escrow.voucher_claimed",
		slog.String("voucher_id", voucherID),
		slog.String("recipient", string(recipient)),
		slog.Uint64("amount", out.Amount),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindVoucherClaimed,
		Destination: recipientDestination(out),
		Body:        fmt.Sprintf("Voucher %s paid %d units to %s", out.VoucherID, out.Amount, recipient),
	})
	return out, nil
}

// CancelVoucher returns a pending voucher's funds to the organization. Only
// maintainers of the issuing organization may cancel.
func (s *Service) CancelVoucher(ctx context.Context, maintainer Identity, externalID uint64, voucherID string) (Voucher, error) {
	v, err := s.refund(ctx, externalID, voucherID, StateCancelled, func(org Organization, v Voucher, _ int64) error {
		if !org.IsMaintainer(maintainer) {
			return ErrNotAuthorized
		}
		return nil
	})
	if err != nil {
		return Voucher{}, fmt.Errorf("cancel voucher %q: %w", voucherID, err)
	}

	s.info("escrow.voucher_cancelled",
		slog.String("voucher_id", voucherID),
		slog.String("maintainer", string(maintainer)),
		slog.Uint64("amount", v.Amount),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindVoucherCancelled,
		Destination: recipientDestination(v),
		Body:        fmt.Sprintf("Voucher %s was cancelled", v.VoucherID),
	})
	return v, nil
}

// ExpireVoucher returns the funds of a voucher whose claim window has closed.
// Anyone may call it.
func (s *Service) ExpireVoucher(ctx context.Context, caller Identity, externalID uint64, voucherID string) (Voucher, error) {
	v, err := s.refund(ctx, externalID, voucherID, StateExpired, func(_ Organization, v Voucher, now int64) error {
		if now <= v.ExpiresAt {
			return ErrVoucherNotExpired
		}
		return nil
	})
	if err != nil {
		return Voucher{}, fmt.Errorf("expire voucher %q: %w", voucherID, err)
	}

	s.info("escrow.voucher_expired",
		slog.String("voucher_id", voucherID),
		slog.String("caller", string(caller)),
		slog.Uint64("amount", v.Amount),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindVoucherExpired,
		Destination: recipientDestination(v),
		Body:        fmt.Sprintf("Voucher %s expired unclaimed", v.VoucherID),
	})
	return v, nil
}

// refund moves a pending voucher's funds back to its organization and marks
// it final. guard runs after the state and ownership checks.
func (s *Service) refund(ctx context.Context, externalID uint64, voucherID string, final State, guard func(org Organization, v Voucher, now int64) error) (Voucher, error) {
	orgAddr, _, err := OrganizationAddress(externalID)
	if err != nil {
		return Voucher{}, err
	}
	voucherAddr, _, err := VoucherAddress(voucherID)
	if err != nil {
		return Voucher{}, err
	}
	now := s.now().Unix()

	var out Voucher
	err = s.repo.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		org, err := tx.Organization(ctx, orgAddr)
		if err != nil {
			return err
		}
		v, err := tx.Voucher(ctx, voucherAddr)
		if err != nil {
			return err
		}
		if v.State != StatePending {
			return ErrInvalidVoucherState
		}
		if v.Organization != org.Address {
			return ErrOrganizationMismatch
		}
		if err := guard(org, v, now); err != nil {
			return err
		}
		balance, err := checkedAdd(org.Balance, v.Amount)
		if err != nil {
			return err
		}
		if err := tx.Transfer(ctx, v.Address, org.Address, "voucher_"+string(final), v.Amount); err != nil {
			return fundsError(err)
		}
		v.State = final
		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		org.Balance = balance
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func recipientDestination(v Voucher) string {
	return "github:" + strconv.FormatUint(v.RecipientExternalID, 10)
}
