package ledger

import (
	"context"
	"math/bits"
	"sync"
)

// Book is a staged view over the in-memory balances. Writes land in a
// private overlay and only reach the shared balances when the enclosing
// Update returns nil.
type Book struct {
	base   map[Address]uint64
	staged map[Address]uint64
}

// Balance returns the staged balance for addr and whether the account exists.
func (b *Book) Balance(addr Address) (uint64, bool) {
	if v, ok := b.staged[addr]; ok {
		return v, true
	}
	v, ok := b.base[addr]
	return v, ok
}

// Transfer moves amount from one account to another inside the overlay.
func (b *Book) Transfer(_ context.Context, from, to Address, _ string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBalance, ok := b.Balance(from)
	if !ok || fromBalance < amount {
		return ErrInsufficientFunds
	}
	toBalance, _ := b.Balance(to)
	if from == to {
		return nil
	}
	credited, carry := bits.Add64(toBalance, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	b.staged[from] = fromBalance - amount
	b.staged[to] = credited
	return nil
}

// InMemory is the concurrency-safe in-memory ledger. Besides the Ledger
// contract it exposes Update so callers can stage postings alongside their
// own record changes.
type InMemory struct {
	mu          sync.Mutex
	balances    map[Address]uint64
	outstanding uint64
	fundingTx   map[string]FundingResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development.
func NewInMemory() *InMemory {
	return &InMemory{
		balances:  make(map[Address]uint64),
		fundingTx: make(map[string]FundingResult),
	}
}

// Update runs fn against a staged Book while holding the ledger lock. The
// staged postings are applied only when fn returns nil.
func (l *InMemory) Update(fn func(b *Book) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	book := &Book{base: l.balances, staged: make(map[Address]uint64)}
	if err := fn(book); err != nil {
		return err
	}
	for addr, balance := range book.staged {
		l.balances[addr] = balance
	}
	return nil
}

func (l *InMemory) EnsureAccount(_ context.Context, addr Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[addr]; !exists {
		l.balances[addr] = 0
	}
	return nil
}

func (l *InMemory) Balance(_ context.Context, addr Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr], nil
}

func (l *InMemory) CardIn(_ context.Context, addr Address, clientTxID string, amount uint64) (FundingResult, error) {
	if amount == 0 {
		return FundingResult{}, ErrInsufficientFunds
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := "card_in:" + clientTxID
	if res, exists := l.fundingTx[key]; exists {
		return res, ErrDuplicateTransaction
	}

	balance, ok := l.balances[addr]
	if !ok {
		return FundingResult{}, ErrInsufficientFunds
	}
	credited, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return FundingResult{}, ErrBalanceOverflow
	}
	outstanding, carry := bits.Add64(l.outstanding, amount, 0)
	if carry != 0 {
		return FundingResult{}, ErrBalanceOverflow
	}

	l.balances[addr] = credited
	l.outstanding = outstanding

	res := FundingResult{
		TransactionID: key,
		Balance:       credited,
		Status:        FundingStatusPendingSettlement,
	}
	l.fundingTx[key] = res
	return res, nil
}

func (l *InMemory) CardOut(_ context.Context, addr Address, clientTxID string, amount uint64) (FundingResult, error) {
	if amount == 0 {
		return FundingResult{}, ErrInsufficientFunds
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := "card_out:" + clientTxID
	if res, exists := l.fundingTx[key]; exists {
		return res, ErrDuplicateTransaction
	}

	balance, ok := l.balances[addr]
	if !ok || balance < amount {
		return FundingResult{}, ErrInsufficientFunds
	}

	l.balances[addr] = balance - amount
	l.outstanding -= amount

	res := FundingResult{
		TransactionID: key,
		Balance:       balance - amount,
		Status:        FundingStatusPendingSettlement,
	}
	l.fundingTx[key] = res
	return res, nil
}

// Outstanding reports the units that entered through the card gateway and
// have not left it again. It always equals the sum of all balances.
func (l *InMemory) Outstanding() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstanding
}
