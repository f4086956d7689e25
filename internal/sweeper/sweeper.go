package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/git-voucher/escrow/internal/escrow"
	"github.com/git-voucher/escrow/internal/ledger"
)

// Caller is the identity recorded on expirations the sweeper performs.
const Caller escrow.Identity = "system:sweeper"

const defaultBatch = 100

// Escrow is the subset of the escrow service the sweeper drives.
type Escrow interface {
	DueForExpiry(ctx context.Context, after escrow.ExpiryCursor, limit int) ([]escrow.Voucher, error)
	OrganizationAt(ctx context.Context, addr ledger.Address) (escrow.Organization, error)
	ExpireVoucher(ctx context.Context, caller escrow.Identity, externalID uint64, voucherID string) (escrow.Voucher, error)
}

// Sweeper periodically expires pending vouchers whose claim window closed.
type Sweeper struct {
	escrow   Escrow
	interval time.Duration
	batch    int
	logger   *slog.Logger
	observe  func(expired int)
}

// New builds a sweeper that runs every interval.
func New(svc Escrow, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{escrow: svc, interval: interval, batch: defaultBatch, logger: logger}
}

// OnSweep registers fn to receive the count of every completed sweep.
func (s *Sweeper) OnSweep(fn func(expired int)) {
	s.observe = fn
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("expiry sweep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce pages through every due voucher and returns how many it
// refunded. Vouchers that fail are skipped for the rest of the pass, so one
// bad page never hides the vouchers behind it. A voucher resolved
// concurrently by someone else is skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var (
		cursor  escrow.ExpiryCursor
		due     int
		expired int
	)
	for {
		page, err := s.escrow.DueForExpiry(ctx, cursor, s.batch)
		if err != nil {
			return expired, err
		}
		due += len(page)
		for _, v := range page {
			if err := ctx.Err(); err != nil {
				return expired, err
			}
			if s.expire(ctx, v) {
				expired++
			}
		}
		if len(page) < s.batch {
			break
		}
		cursor = escrow.CursorOf(page[len(page)-1])
	}

	if s.observe != nil {
		s.observe(expired)
	}
	if expired > 0 || due > expired {
		s.logger.Info("expiry sweep completed", slog.Int("expired", expired), slog.Int("due", due))
	}
	return expired, nil
}

func (s *Sweeper) expire(ctx context.Context, v escrow.Voucher) bool {
	org, err := s.escrow.OrganizationAt(ctx, v.Organization)
	if err != nil {
		s.logger.Warn("expiry sweep: organization lookup failed", slog.String("voucher_id", v.VoucherID), slog.Any("error", err))
		return false
	}
	if _, err := s.escrow.ExpireVoucher(ctx, Caller, org.ExternalID, v.VoucherID); err != nil {
		if !errors.Is(err, escrow.ErrInvalidVoucherState) {
			s.logger.Warn("expiry sweep: expire failed", slog.String("voucher_id", v.VoucherID), slog.Any("error", err))
		}
		return false
	}
	return true
}
