package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrBalanceOverflow is returned when a credit would wrap the destination balance.
	ErrBalanceOverflow = errors.New("balance overflow")
)

const (
	// FundingStatusPendingSettlement indicates a card transaction awaiting settlement confirmation.
	FundingStatusPendingSettlement = "pending_settlement"
	// FundingStatusCompleted represents a settled transaction.
	FundingStatusCompleted = "completed"
	// AcquirerAccount is where currency enters and leaves the system through the card gateway.
	// It is the only account allowed to hold a negative position.
	AcquirerAccount Address = "system:acquirer"
)

// Address locates an account holding native currency units.
type Address string

func (a Address) String() string { return string(a) }

// IdentityAddress returns the account owned by an authenticated identity.
func IdentityAddress(identity string) Address {
	return Address("id:" + identity)
}

// FundingResult captures the outcome of a card funding transaction.
type FundingResult struct {
	TransactionID string
	Balance       uint64
	Status        string
}

// Poster moves currency between accounts. Implementations are bound to a
// single unit of work and never commit on their own.
type Poster interface {
	Transfer(ctx context.Context, from, to Address, kind string, amount uint64) error
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	EnsureAccount(ctx context.Context, addr Address) error
	Balance(ctx context.Context, addr Address) (uint64, error)
	CardIn(ctx context.Context, addr Address, clientTxID string, amount uint64) (FundingResult, error)
	CardOut(ctx context.Context, addr Address, clientTxID string, amount uint64) (FundingResult, error)
}
