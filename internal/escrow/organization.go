package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// InitializeOrganization creates the organization record for externalID with
// caller as its admin.
func (s *Service) InitializeOrganization(ctx context.Context, caller Identity, externalID uint64) (Organization, error) {
	addr, nonce, err := OrganizationAddress(externalID)
	if err != nil {
		return Organization{}, err
	}

	org := Organization{
		Address:     addr,
		ExternalID:  externalID,
		Admin:       caller,
		Maintainers: []Identity{},
		Nonce:       nonce,
	}
	err = s.repo.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertOrganization(ctx, org)
	})
	if err != nil {
		return Organization{}, fmt.Errorf("initialize organization %d: %w", externalID, err)
	}

	s.info("escrow.organization_initialized",
		slog.Uint64("external_id", externalID),
		slog.String("address", addr.String()),
		slog.String("admin", string(caller)),
	)
	return org, nil
}

// Deposit moves amount from the caller's account into the organization pool.
// Anyone may deposit.
func (s *Service) Deposit(ctx context.Context, caller Identity, externalID, amount uint64) (Organization, error) {
	if amount == 0 {
		return Organization{}, ErrZeroAmount
	}
	org, err := s.mutateOrganization(ctx, externalID, func(ctx context.Context, tx Tx, org *Organization) error {
		balance, err := checkedAdd(org.Balance, amount)
		if err != nil {
			return err
		}
		if err := tx.Transfer(ctx, caller.Address(), org.Address, "deposit", amount); err != nil {
			return fundsError(err)
		}
		org.Balance = balance
		return nil
	})
	if err != nil {
		return Organization{}, fmt.Errorf("deposit: %w", err)
	}

	s.info("escrow.deposit",
		slog.Uint64("external_id", externalID),
		slog.String("depositor", string(caller)),
		slog.Uint64("amount", amount),
		slog.Uint64("balance", org.Balance),
	)
	return org, nil
}

// Withdraw pays amount from the pool to the admin.
func (s *Service) Withdraw(ctx context.Context, caller Identity, externalID, amount uint64) (Organization, error) {
	org, err := s.mutateOrganization(ctx, externalID, func(ctx context.Context, tx Tx, org *Organization) error {
		if caller != org.Admin {
			return ErrNotAuthorized
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		if org.Balance < amount {
			return ErrInsufficientBalance
		}
		balance, err := checkedSub(org.Balance, amount)
		if err != nil {
			return err
		}
		if err := tx.Transfer(ctx, org.Address, org.Admin.Address(), "withdraw", amount); err != nil {
			return fundsError(err)
		}
		org.Balance = balance
		return nil
	})
	if err != nil {
		return Organization{}, fmt.Errorf("withdraw: %w", err)
	}

	s.info("escrow.withdraw",
		slog.Uint64("external_id", externalID),
		slog.Uint64("amount", amount),
		slog.Uint64("balance", org.Balance),
	)
	return org, nil
}

// AddMaintainer grants identity the right to issue and cancel vouchers.
func (s *Service) AddMaintainer(ctx context.Context, caller Identity, externalID uint64, identity Identity) (Organization, error) {
	org, err := s.mutateOrganization(ctx, externalID, func(_ context.Context, _ Tx, org *Organization) error {
		if caller != org.Admin {
			return ErrNotAuthorized
		}
		if org.IsMaintainer(identity) {
			return ErrMaintainerAlreadyExists
		}
		if len(org.Maintainers) >= MaxMaintainers {
			return ErrMaintainerListFull
		}
		org.Maintainers = append(org.Maintainers, identity)
		return nil
	})
	if err != nil {
		return Organization{}, fmt.Errorf("add maintainer: %w", err)
	}

	s.info("escrow.maintainer_added", slog.Uint64("external_id", externalID), slog.String("maintainer", string(identity)))
	return org, nil
}

// RemoveMaintainer revokes identity. Removing a non-member succeeds and
// changes nothing.
func (s *Service) RemoveMaintainer(ctx context.Context, caller Identity, externalID uint64, identity Identity) (Organization, error) {
	org, err := s.mutateOrganization(ctx, externalID, func(_ context.Context, _ Tx, org *Organization) error {
		if caller != org.Admin {
			return ErrNotAuthorized
		}
		org.Maintainers = slices.DeleteFunc(org.Maintainers, func(m Identity) bool { return m == identity })
		return nil
	})
	if err != nil {
		return Organization{}, fmt.Errorf("remove maintainer: %w", err)
	}

	s.info("escrow.maintainer_removed", slog.Uint64("external_id", externalID), slog.String("maintainer", string(identity)))
	return org, nil
}

// mutateOrganization loads and locks the organization, applies fn and
// writes the result back, all in one transaction.
func (s *Service) mutateOrganization(ctx context.Context, externalID uint64, fn func(ctx context.Context, tx Tx, org *Organization) error) (Organization, error) {
	addr, _, err := OrganizationAddress(externalID)
	if err != nil {
		return Organization{}, err
	}

	var out Organization
	err = s.repo.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		org, err := tx.Organization(ctx, addr)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &org); err != nil {
			return err
		}
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			return err
		}
		out = org
		return nil
	})
	return out, err
}
