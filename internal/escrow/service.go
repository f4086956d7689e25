package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/git-voucher/escrow/internal/ledger"
	"github.com/git-voucher/escrow/internal/notification"
)

// Service exposes the organization ledger and voucher state machine. Each
// mutating operation runs inside exactly one Repository.Atomically call.
type Service struct {
	repo     Repository
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds an escrow service. notifier and logger may be nil.
func NewService(repo Repository, books ledger.Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   books,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock returns a copy of the service that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// GetOrganization returns the organization registered under externalID.
func (s *Service) GetOrganization(ctx context.Context, externalID uint64) (Organization, error) {
	addr, _, err := OrganizationAddress(externalID)
	if err != nil {
		return Organization{}, err
	}
	return s.repo.GetOrganization(ctx, addr)
}

// OrganizationAt returns the organization stored at addr.
func (s *Service) OrganizationAt(ctx context.Context, addr ledger.Address) (Organization, error) {
	return s.repo.GetOrganization(ctx, addr)
}

// GetVoucher returns the voucher registered under voucherID.
func (s *Service) GetVoucher(ctx context.Context, voucherID string) (Voucher, error) {
	addr, _, err := VoucherAddress(voucherID)
	if err != nil {
		return Voucher{}, err
	}
	return s.repo.GetVoucher(ctx, addr)
}

// ListVouchers returns the vouchers issued by an organization, optionally
// restricted to one state.
func (s *Service) ListVouchers(ctx context.Context, externalID uint64, state State, limit int) ([]Voucher, error) {
	addr, _, err := OrganizationAddress(externalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetOrganization(ctx, addr); err != nil {
		return nil, err
	}
	return s.repo.ListVouchers(ctx, VoucherFilter{Organization: addr, State: state, Limit: limit})
}

// DueForExpiry lists pending vouchers whose claim window has closed,
// starting strictly after the given cursor. A zero cursor starts at the
// beginning.
func (s *Service) DueForExpiry(ctx context.Context, after ExpiryCursor, limit int) ([]Voucher, error) {
	return s.repo.ListVouchers(ctx, VoucherFilter{
		State:         StatePending,
		ExpiredBefore: s.now().Unix(),
		After:         after,
		Limit:         limit,
	})
}

// Held returns the currency physically held at addr.
func (s *Service) Held(ctx context.Context, addr ledger.Address) (uint64, error) {
	return s.ledger.Balance(ctx, addr)
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func (s *Service) info(msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Info(msg, attrs...)
	}
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

// fundsError maps a failed ledger posting onto the escrow taxonomy.
func fundsError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case errors.Is(err, ledger.ErrBalanceOverflow):
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	default:
		return err
	}
}
