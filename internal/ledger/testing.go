package ledger

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
// The gateway position is adjusted so Outstanding keeps matching the sum of balances.
func SeedBalance(l Ledger, addr Address, amount uint64) {
	if mem, ok := l.(*InMemory); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.outstanding = mem.outstanding - mem.balances[addr] + amount
		mem.balances[addr] = amount
	}
}
