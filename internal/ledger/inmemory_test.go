package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "id:a"); err != nil {
		t.Fatalf("ensure account a: %v", err)
	}
	if err := l.EnsureAccount(ctx, "id:b"); err != nil {
		t.Fatalf("ensure account b: %v", err)
	}

	// seed account a with funds via manual mutation (test helper)
	SeedBalance(l, "id:a", 10_000)

	err := l.Update(func(b *Book) error {
		return b.Transfer(ctx, "id:a", "id:b", "p2p", 1_500)
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if got := l.balances["id:a"]; got != 8_500 {
		t.Fatalf("expected from balance 8500, got %d", got)
	}
	if got := l.balances["id:b"]; got != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", got)
	}
	if total := l.balances["id:a"] + l.balances["id:b"]; total != l.Outstanding() {
		t.Fatalf("ledger not balanced, total=%d outstanding=%d", total, l.Outstanding())
	}
}

func TestInMemoryLedger_FailedUpdateLeavesBalancesUntouched(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "id:a", 1_000)

	boom := errors.New("boom")
	err := l.Update(func(b *Book) error {
		if err := b.Transfer(ctx, "id:a", "id:b", "p2p", 600); err != nil {
			return err
		}
		if got, _ := b.Balance("id:b"); got != 600 {
			t.Fatalf("staged balance not visible, got %d", got)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if l.balances["id:a"] != 1_000 {
		t.Fatalf("expected rollback, a=%d", l.balances["id:a"])
	}
	if _, exists := l.balances["id:b"]; exists {
		t.Fatalf("expected account b to stay absent")
	}
}

func TestInMemoryLedger_TransferChecks(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "id:a", 500)
	SeedBalance(l, "id:full", math.MaxUint64)

	err := l.Update(func(b *Book) error { return b.Transfer(ctx, "id:a", "id:b", "p2p", 501) })
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	err = l.Update(func(b *Book) error { return b.Transfer(ctx, "id:missing", "id:b", "p2p", 1) })
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds for unknown account, got %v", err)
	}
	err = l.Update(func(b *Book) error { return b.Transfer(ctx, "id:a", "id:full", "p2p", 1) })
	if !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "id:a", 100_000)

	const workers = 10
	const amount = uint64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := fmt.Sprintf("tx-%d", i)
			if err := l.Update(func(b *Book) error { return b.Transfer(ctx, "id:a", "id:b", kind, amount) }); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := l.balances["id:a"] + l.balances["id:b"]
	if total != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", total)
	}
	if l.balances["id:b"] != workers*amount {
		t.Fatalf("expected b=%d, got %d", workers*amount, l.balances["id:b"])
	}
}

func TestInMemoryLedger_CardIn(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "id:a")

	res, err := l.CardIn(ctx, "id:a", "client-card-in", 2_000)
	if err != nil {
		t.Fatalf("card in failed: %v", err)
	}
	if res.Status != FundingStatusPendingSettlement {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if res.Balance != 2_000 {
		t.Fatalf("expected account balance 2000, got %d", res.Balance)
	}
	if l.Outstanding() != 2_000 {
		t.Fatalf("expected outstanding 2000, got %d", l.Outstanding())
	}

	if _, err := l.CardIn(ctx, "id:a", "client-card-in", 2_000); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate card in error, got %v", err)
	}
}

func TestInMemoryLedger_CardOut(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "id:a")
	SeedBalance(l, "id:a", 5_000)

	res, err := l.CardOut(ctx, "id:a", "client-card-out", 1_500)
	if err != nil {
		t.Fatalf("card out failed: %v", err)
	}
	if res.Balance != 3_500 {
		t.Fatalf("expected account balance 3500, got %d", res.Balance)
	}

	if _, err := l.CardOut(ctx, "id:a", "client-card-out", 1_500); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate card out error, got %v", err)
	}

	if _, err := l.CardOut(ctx, "id:a", "client-card-out-2", 10_000); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if l.Outstanding() != 3_500 {
		t.Fatalf("expected outstanding 3500, got %d", l.Outstanding())
	}
}
