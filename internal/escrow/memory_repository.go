package escrow

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/git-voucher/escrow/internal/ledger"
)

type memoryRepository struct {
	mu            sync.Mutex
	ledger        *ledger.InMemory
	organizations map[ledger.Address]Organization
	vouchers      map[ledger.Address]Voucher
}

// NewMemoryRepository constructs an in-memory repository whose postings go to l.
func NewMemoryRepository(l *ledger.InMemory) Repository {
	return &memoryRepository{
		ledger:        l,
		organizations: make(map[ledger.Address]Organization),
		vouchers:      make(map[ledger.Address]Voucher),
	}
}

// Atomically serializes every operation behind one lock and stages writes
// until fn succeeds.
func (r *memoryRepository) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ledger.Update(func(book *ledger.Book) error {
		tx := &memoryTx{
			repo:          r,
			book:          book,
			organizations: make(map[ledger.Address]Organization),
			vouchers:      make(map[ledger.Address]Voucher),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		for addr, org := range tx.organizations {
			r.organizations[addr] = org
		}
		for addr, v := range tx.vouchers {
			r.vouchers[addr] = v
		}
		return nil
	})
}

func (r *memoryRepository) GetOrganization(_ context.Context, addr ledger.Address) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.organizations[addr]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return cloneOrganization(org), nil
}

func (r *memoryRepository) GetVoucher(_ context.Context, addr ledger.Address) (Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[addr]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return v, nil
}

func (r *memoryRepository) ListVouchers(_ context.Context, filter VoucherFilter) ([]Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Voucher
	for _, v := range r.vouchers {
		if filter.Organization != "" && v.Organization != filter.Organization {
			continue
		}
		if filter.State != "" && v.State != filter.State {
			continue
		}
		if filter.ExpiredBefore != 0 && v.ExpiresAt >= filter.ExpiredBefore {
			continue
		}
		if !filter.After.IsZero() && !cursorBefore(filter.After, CursorOf(v)) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return cursorBefore(CursorOf(out[i]), CursorOf(out[j]))
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// memoryTx reads through to the repository and keeps its own copy of every
// record it writes.
type memoryTx struct {
	repo          *memoryRepository
	book          *ledger.Book
	organizations map[ledger.Address]Organization
	vouchers      map[ledger.Address]Voucher
}

func (t *memoryTx) Organization(_ context.Context, addr ledger.Address) (Organization, error) {
	if org, ok := t.organizations[addr]; ok {
		return cloneOrganization(org), nil
	}
	org, ok := t.repo.organizations[addr]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return cloneOrganization(org), nil
}

func (t *memoryTx) InsertOrganization(_ context.Context, org Organization) error {
	if t.orgExists(org.Address) {
		return ErrAddressInUse
	}
	t.organizations[org.Address] = cloneOrganization(org)
	return nil
}

func (t *memoryTx) UpdateOrganization(_ context.Context, org Organization) error {
	if !t.orgExists(org.Address) {
		return ErrNotFound
	}
	t.organizations[org.Address] = cloneOrganization(org)
	return nil
}

func (t *memoryTx) orgExists(addr ledger.Address) bool {
	if _, ok := t.organizations[addr]; ok {
		return true
	}
	_, ok := t.repo.organizations[addr]
	return ok
}

func (t *memoryTx) Voucher(_ context.Context, addr ledger.Address) (Voucher, error) {
	if v, ok := t.vouchers[addr]; ok {
		return v, nil
	}
	v, ok := t.repo.vouchers[addr]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return v, nil
}

func (t *memoryTx) InsertVoucher(_ context.Context, v Voucher) error {
	if t.voucherExists(v.Address) {
		return ErrAddressInUse
	}
	t.vouchers[v.Address] = v
	return nil
}

func (t *memoryTx) UpdateVoucher(_ context.Context, v Voucher) error {
	if !t.voucherExists(v.Address) {
		return ErrNotFound
	}
	t.vouchers[v.Address] = v
	return nil
}

func (t *memoryTx) voucherExists(addr ledger.Address) bool {
	if _, ok := t.vouchers[addr]; ok {
		return true
	}
	_, ok := t.repo.vouchers[addr]
	return ok
}

func (t *memoryTx) Transfer(ctx context.Context, from, to ledger.Address, kind string, amount uint64) error {
	return t.book.Transfer(ctx, from, to, kind, amount)
}

func cursorBefore(a, b ExpiryCursor) bool {
	if a.ExpiresAt != b.ExpiresAt {
		return a.ExpiresAt < b.ExpiresAt
	}
	return a.VoucherID < b.VoucherID
}

func cloneOrganization(org Organization) Organization {
	org.Maintainers = slices.Clone(org.Maintainers)
	return org
}
