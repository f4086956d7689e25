package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/git-voucher/escrow/internal/identity"
	"github.com/git-voucher/escrow/internal/ledger"
)

// Users resolves the owner of a funding request.
type Users interface {
	Get(ctx context.Context, id string) (identity.User, error)
}

// Service moves currency between cards and identity accounts through the
// acquirer account.
type Service struct {
	ledger   ledger.Ledger
	users    Users
	acquirer Acquirer
}

// NewService prepares a funding service ensuring the acquirer account exists.
func NewService(ctx context.Context, ledgerBackend ledger.Ledger, users Users, acquirer Acquirer) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user lookup is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	if err := ledgerBackend.EnsureAccount(ctx, ledger.AcquirerAccount); err != nil {
		return nil, err
	}
	return &Service{ledger: ledgerBackend, users: users, acquirer: acquirer}, nil
}

// TopUpInput captures the required data for a card top-up.
type TopUpInput struct {
	UserID     string
	Amount     uint64
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// PayoutInput captures the required data for a card payout.
type PayoutInput struct {
	UserID     string
	Amount     uint64
	ClientTxID string
	CardNumber string
}

// FundingResult represents the domain outcome of a card operation.
type FundingResult struct {
	TransactionID     string
	Status            string
	Balance           uint64
	AcquirerReference string
	CompletedAt       time.Time
}

// TopUp authorizes a card charge and credits the user's account.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (FundingResult, error) {
	if err := validateCardNumber(input.CardNumber); err != nil {
		return FundingResult{}, err
	}
	if input.Amount == 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	user, err := s.users.Get(ctx, input.UserID)
	if err != nil {
		return FundingResult{}, err
	}

	decision, err := s.acquirer.AuthorizeCardIn(ctx, CardInAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Amount:     input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	res, err := s.ledger.CardIn(ctx, ledger.IdentityAddress(user.ID), input.ClientTxID, input.Amount)
	return result(res, decision, err)
}

// Payout authorizes a push-to-card transfer and debits the user's account.
func (s *Service) Payout(ctx context.Context, input PayoutInput) (FundingResult, error) {
	if err := validateCardNumber(input.CardNumber); err != nil {
		return FundingResult{}, err
	}
	if input.Amount == 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	user, err := s.users.Get(ctx, input.UserID)
	if err != nil {
		return FundingResult{}, err
	}

	decision, err := s.acquirer.AuthorizeCardOut(ctx, CardOutAuthorization{
		CardNumber: input.CardNumber,
		Amount:     input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	res, err := s.ledger.CardOut(ctx, ledger.IdentityAddress(user.ID), input.ClientTxID, input.Amount)
	return result(res, decision, err)
}

// result keeps the ledger outcome of a duplicate so callers can replay it.
func result(res ledger.FundingResult, decision AuthorizationDecision, err error) (FundingResult, error) {
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		return FundingResult{}, err
	}
	return FundingResult{
		TransactionID:     res.TransactionID,
		Status:            res.Status,
		Balance:           res.Balance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}, err
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("card number must be between 12 and 19 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("card number must be numeric")
		}
	}
	return nil
}
