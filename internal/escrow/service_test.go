package escrow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-voucher/escrow/internal/ledger"
	"github.com/git-voucher/escrow/internal/logging"
	"github.com/git-voucher/escrow/internal/notification"
)

const (
	admin      Identity = "admin"
	maintainer Identity = "maintainer"
	recipient  Identity = "recipient"
	stranger   Identity = "stranger"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	ledger   *ledger.InMemory
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.NewInMemory()
	f := &fixture{
		ledger:   l,
		notifier: &recordingNotifier{},
		now:      time.Unix(1_700_000_000, 0),
	}
	f.svc = NewService(NewMemoryRepository(l), l, f.notifier, logging.Discard()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) held(t *testing.T, addr ledger.Address) uint64 {
	t.Helper()
	v, err := f.ledger.Balance(context.Background(), addr)
	require.NoError(t, err)
	return v
}

// fundedOrg sets up organization 42 with a deposit of 1000 and one maintainer.
func (f *fixture) fundedOrg(t *testing.T) Organization {
	t.Helper()
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, admin.Address(), 5_000)

	_, err := f.svc.InitializeOrganization(ctx, admin, 42)
	require.NoError(t, err)
	_, err = f.svc.Deposit(ctx, admin, 42, 1_000)
	require.NoError(t, err)
	org, err := f.svc.AddMaintainer(ctx, admin, 42, maintainer)
	require.NoError(t, err)
	return org
}

func (f *fixture) createV1(t *testing.T) Voucher {
	t.Helper()
	v, err := f.svc.CreateVoucher(context.Background(), CreateVoucherInput{
		Maintainer:          maintainer,
		OrganizationID:      42,
		VoucherID:           "v1",
		RecipientExternalID: 7,
		Amount:              300,
		Metadata:            "thanks",
	})
	require.NoError(t, err)
	return v
}

func TestInitializeOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.InitializeOrganization(ctx, admin, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), org.ExternalID)
	assert.Equal(t, admin, org.Admin)
	assert.Zero(t, org.Balance)
	assert.Empty(t, org.Maintainers)
	assert.Zero(t, org.VouchersCreated)

	addr, nonce, err := OrganizationAddress(42)
	require.NoError(t, err)
	assert.Equal(t, addr, org.Address)
	assert.Equal(t, nonce, org.Nonce)

	_, err = f.svc.InitializeOrganization(ctx, stranger, 42)
	require.ErrorIs(t, err, ErrAddressInUse)

	stored, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, admin, stored.Admin, "second initialize must not replace the admin")
}

func TestScenarioCreateAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.fundedOrg(t)
	require.Equal(t, uint64(1_000), org.Balance)

	v := f.createV1(t)
	assert.Equal(t, StatePending, v.State)
	assert.Equal(t, v.CreatedAt+2_592_000, v.ExpiresAt)
	assert.Equal(t, f.now.Unix(), v.CreatedAt)
	assert.Equal(t, org.Address, v.Organization)

	org, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), org.Balance)
	assert.Equal(t, uint64(1), org.VouchersCreated)
	assert.Equal(t, uint64(700), f.held(t, org.Address))
	assert.Equal(t, uint64(300), f.held(t, v.Address))

	claimed, err := f.svc.ClaimVoucher(ctx, recipient, "v1")
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, claimed.State)
	assert.Equal(t, uint64(300), claimed.Amount)
	assert.Equal(t, uint64(300), f.held(t, recipient.Address()))
	assert.Zero(t, f.held(t, v.Address))

	org, err = f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), org.Balance, "claim must not touch the organization balance")

	assert.Equal(t, []string{notification.KindVoucherCreated, notification.KindVoucherClaimed}, f.notifier.kinds())
}

func TestScenarioCreateAndCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.fundedOrg(t)
	v := f.createV1(t)

	cancelled, err := f.svc.CancelVoucher(ctx, maintainer, 42, "v1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, cancelled.State)

	after, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, org.Balance, after.Balance)
	assert.Equal(t, uint64(1_000), f.held(t, org.Address))
	assert.Zero(t, f.held(t, v.Address))
}

func TestScenarioRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)
	f.createV1(t)

	_, err := f.svc.Deposit(ctx, admin, 42, 0)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.svc.Withdraw(ctx, stranger, 42, 10)
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.svc.CreateVoucher(ctx, CreateVoucherInput{
		Maintainer: maintainer, OrganizationID: 42, VoucherID: "big", RecipientExternalID: 7, Amount: 1_000_000,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	org, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), org.Balance)
	_, err = f.svc.GetVoucher(ctx, "big")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpiryBoundaries(t *testing.T) {
	t.Run("claim at expires_at succeeds", func(t *testing.T) {
		f := newFixture(t)
		f.fundedOrg(t)
		v := f.createV1(t)
		f.now = time.Unix(v.ExpiresAt, 0)
		_, err := f.svc.ClaimVoucher(context.Background(), recipient, "v1")
		require.NoError(t, err)
	})
	t.Run("claim after expires_at fails", func(t *testing.T) {
		f := newFixture(t)
		f.fundedOrg(t)
		v := f.createV1(t)
		f.now = time.Unix(v.ExpiresAt+1, 0)
		_, err := f.svc.ClaimVoucher(context.Background(), recipient, "v1")
		require.ErrorIs(t, err, ErrVoucherExpired)
		assert.Equal(t, uint64(300), f.held(t, v.Address))
	})
	t.Run("expire at expires_at fails", func(t *testing.T) {
		f := newFixture(t)
		f.fundedOrg(t)
		v := f.createV1(t)
		f.now = time.Unix(v.ExpiresAt, 0)
		_, err := f.svc.ExpireVoucher(context.Background(), stranger, 42, "v1")
		require.ErrorIs(t, err, ErrVoucherNotExpired)
	})
	t.Run("expire after expires_at succeeds for anyone", func(t *testing.T) {
		f := newFixture(t)
		f.fundedOrg(t)
		v := f.createV1(t)
		f.now = time.Unix(v.ExpiresAt+1, 0)
		expired, err := f.svc.ExpireVoucher(context.Background(), stranger, 42, "v1")
		require.NoError(t, err)
		assert.Equal(t, StateExpired, expired.State)

		org, err := f.svc.GetOrganization(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000), org.Balance)
		assert.Zero(t, f.held(t, v.Address))
	})
}

func TestVoucherResolvesOnlyOnce(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.fundedOrg(t)
	v := f.createV1(t)

	_, err := f.svc.ClaimVoucher(ctx, recipient, "v1")
	require.NoError(t, err)
	_, err = f.svc.ClaimVoucher(ctx, recipient, "v1")
	require.ErrorIs(t, err, ErrInvalidVoucherState)
	_, err = f.svc.CancelVoucher(ctx, maintainer, 42, "v1")
	require.ErrorIs(t, err, ErrInvalidVoucherState)
	f.now = time.Unix(v.ExpiresAt+1, 0)
	_, err = f.svc.ExpireVoucher(ctx, stranger, 42, "v1")
	require.ErrorIs(t, err, ErrInvalidVoucherState)

	assert.Equal(t, uint64(300), f.held(t, recipient.Address()))

	f = newFixture(t)
	f.fundedOrg(t)
	f.createV1(t)
	_, err = f.svc.CancelVoucher(ctx, maintainer, 42, "v1")
	require.NoError(t, err)
	_, err = f.svc.CancelVoucher(ctx, maintainer, 42, "v1")
	require.ErrorIs(t, err, ErrInvalidVoucherState)
	_, err = f.svc.ClaimVoucher(ctx, recipient, "v1")
	require.ErrorIs(t, err, ErrInvalidVoucherState)

	org, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), org.Balance)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	f.fundedOrg(t)
	v := f.createV1(t)

	const claimers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ClaimVoucher(context.Background(), Identity(fmt.Sprintf("claimer-%d", i)), "v1")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInvalidVoucherState) {
				t.Errorf("claimer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Zero(t, f.held(t, v.Address))
	assert.Equal(t, f.ledger.Outstanding(), sumBalances(t, f), "currency must be conserved")
}

func TestConcurrentResolutionsHaveOneWinner(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		org := f.fundedOrg(t)
		v := f.createV1(t)
		f.now = time.Unix(v.ExpiresAt+1, 0)

		resolvers := map[State]func() (Voucher, error){
			StateClaimed: func() (Voucher, error) {
				return f.svc.ClaimVoucher(context.Background(), recipient, "v1")
			},
			StateCancelled: func() (Voucher, error) {
				return f.svc.CancelVoucher(context.Background(), maintainer, 42, "v1")
			},
			StateExpired: func() (Voucher, error) {
				return f.svc.ExpireVoucher(context.Background(), stranger, 42, "v1")
			},
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []State
		)
		for want, resolve := range resolvers {
			wg.Add(1)
			go func(want State, resolve func() (Voucher, error)) {
				defer wg.Done()
				got, err := resolve()
				if err != nil {
					if !errors.Is(err, ErrInvalidVoucherState) && !errors.Is(err, ErrVoucherExpired) {
						t.Errorf("%s: unexpected error %v", want, err)
					}
					return
				}
				assert.Equal(t, want, got.State)
				mu.Lock()
				winners = append(winners, want)
				mu.Unlock()
			}(want, resolve)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		assert.NotEqual(t, StateClaimed, winners[0], "claims after expires_at must fail")

		stored, err := f.svc.GetVoucher(context.Background(), "v1")
		require.NoError(t, err)
		assert.Equal(t, winners[0], stored.State)

		after, err := f.svc.GetOrganization(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, org.Balance, after.Balance)
		assert.Equal(t, org.Balance, f.held(t, org.Address))
		assert.Zero(t, f.held(t, v.Address))
		assert.Zero(t, f.held(t, recipient.Address()))
		assert.Equal(t, f.ledger.Outstanding(), sumBalances(t, f), "currency must be conserved")
	}
}

func TestCreateVoucherValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)

	base := CreateVoucherInput{Maintainer: maintainer, OrganizationID: 42, VoucherID: "ok", RecipientExternalID: 7, Amount: 10}

	in := base
	in.Amount = 0
	_, err := f.svc.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, ErrZeroAmount)

	in = base
	in.VoucherID = strings.Repeat("x", MaxVoucherIDLen+1)
	_, err = f.svc.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, ErrVoucherIDTooLong)

	in = base
	in.Metadata = strings.Repeat("m", MaxMetadataLen+1)
	_, err = f.svc.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, ErrMetadataTooLong)

	in = base
	in.Maintainer = stranger
	_, err = f.svc.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, ErrNotAuthorized)

	in = base
	in.VoucherID = strings.Repeat("x", MaxVoucherIDLen)
	in.Metadata = strings.Repeat("m", MaxMetadataLen)
	_, err = f.svc.CreateVoucher(ctx, in)
	require.NoError(t, err, "limits are inclusive")

	org, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(990), org.Balance)
	assert.Equal(t, uint64(1), org.VouchersCreated)
}

func TestVoucherIDIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)
	f.createV1(t)

	_, err := f.svc.CancelVoucher(ctx, maintainer, 42, "v1")
	require.NoError(t, err)

	_, err = f.svc.CreateVoucher(ctx, CreateVoucherInput{
		Maintainer: maintainer, OrganizationID: 42, VoucherID: "v1", RecipientExternalID: 9, Amount: 50,
	})
	require.ErrorIs(t, err, ErrAddressInUse)

	org, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), org.Balance)
	assert.Equal(t, uint64(1), org.VouchersCreated)

	v, err := f.svc.GetVoucher(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, v.State)
	assert.Equal(t, uint64(7), v.RecipientExternalID)
}

func TestMaintainerManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)

	_, err := f.svc.AddMaintainer(ctx, stranger, 42, stranger)
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.svc.AddMaintainer(ctx, admin, 42, maintainer)
	require.ErrorIs(t, err, ErrMaintainerAlreadyExists)

	_, err = f.svc.RemoveMaintainer(ctx, maintainer, 42, maintainer)
	require.ErrorIs(t, err, ErrNotAuthorized)

	org, err := f.svc.RemoveMaintainer(ctx, admin, 42, stranger)
	require.NoError(t, err, "removing a non-member is a no-op")
	assert.Equal(t, []Identity{maintainer}, org.Maintainers)

	for i := 1; i < MaxMaintainers; i++ {
		_, err := f.svc.AddMaintainer(ctx, admin, 42, Identity(fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}
	_, err = f.svc.AddMaintainer(ctx, admin, 42, "one-too-many")
	require.ErrorIs(t, err, ErrMaintainerListFull)

	org, err = f.svc.RemoveMaintainer(ctx, admin, 42, maintainer)
	require.NoError(t, err)
	assert.Len(t, org.Maintainers, MaxMaintainers-1)
	assert.Equal(t, Identity("m-1"), org.Maintainers[0], "order is preserved")

	_, err = f.svc.CreateVoucher(ctx, CreateVoucherInput{
		Maintainer: maintainer, OrganizationID: 42, VoucherID: "late", RecipientExternalID: 7, Amount: 1,
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.fundedOrg(t)

	_, err := f.svc.Withdraw(ctx, admin, 42, 0)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.svc.Withdraw(ctx, admin, 42, 1_001)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.svc.Withdraw(ctx, maintainer, 42, 100)
	require.ErrorIs(t, err, ErrNotAuthorized)

	before := f.held(t, admin.Address())
	org, err = f.svc.Withdraw(ctx, admin, 42, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), org.Balance)
	assert.Equal(t, before+400, f.held(t, admin.Address()))
	assert.Equal(t, uint64(600), f.held(t, org.Address))
}

func TestDepositChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)

	_, err := f.svc.Deposit(ctx, stranger, 42, 10)
	require.ErrorIs(t, err, ErrInsufficientBalance, "depositor without funds")

	_, err = f.svc.Deposit(ctx, admin, 99, 10)
	require.ErrorIs(t, err, ErrNotFound)

	ledger.SeedBalance(f.ledger, stranger.Address(), math.MaxUint64)
	_, err = f.svc.Deposit(ctx, stranger, 42, math.MaxUint64)
	require.ErrorIs(t, err, ErrOverflow)

	org, err := f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), org.Balance)
	assert.Equal(t, uint64(math.MaxUint64), f.held(t, stranger.Address()))
}

func TestRefundRejectsForeignOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)
	v := f.createV1(t)

	_, err := f.svc.InitializeOrganization(ctx, stranger, 43)
	require.NoError(t, err)
	_, err = f.svc.AddMaintainer(ctx, stranger, 43, stranger)
	require.NoError(t, err)

	_, err = f.svc.CancelVoucher(ctx, stranger, 43, "v1")
	require.ErrorIs(t, err, ErrOrganizationMismatch)

	f.now = time.Unix(v.ExpiresAt+1, 0)
	_, err = f.svc.ExpireVoucher(ctx, stranger, 43, "v1")
	require.ErrorIs(t, err, ErrOrganizationMismatch)

	other, err := f.svc.GetOrganization(ctx, 43)
	require.NoError(t, err)
	assert.Zero(t, other.Balance)
	assert.Equal(t, uint64(300), f.held(t, v.Address))
}

func TestBalanceInvariantAcrossLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.fundedOrg(t)

	var deposited, withdrawn, escrowed, paidOut uint64 = 1_000, 0, 0, 0
	create := func(id string, amount uint64) {
		_, err := f.svc.CreateVoucher(ctx, CreateVoucherInput{
			Maintainer: maintainer, OrganizationID: 42, VoucherID: id, RecipientExternalID: 1, Amount: amount,
		})
		require.NoError(t, err)
		escrowed += amount
	}

	create("a", 100)
	create("b", 200)
	create("c", 50)
	_, err := f.svc.Deposit(ctx, admin, 42, 500)
	require.NoError(t, err)
	deposited += 500

	_, err = f.svc.ClaimVoucher(ctx, recipient, "a")
	require.NoError(t, err)
	paidOut += 100

	_, err = f.svc.CancelVoucher(ctx, maintainer, 42, "b")
	require.NoError(t, err)
	escrowed -= 200

	_, err = f.svc.Withdraw(ctx, admin, 42, 250)
	require.NoError(t, err)
	withdrawn += 250

	f.now = f.now.Add(time.Duration(VoucherLifetime+1) * time.Second)
	_, err = f.svc.ExpireVoucher(ctx, stranger, 42, "c")
	require.NoError(t, err)
	escrowed -= 50

	org, err = f.svc.GetOrganization(ctx, 42)
	require.NoError(t, err)
	pendingOrClaimed := escrowed
	assert.Equal(t, deposited-withdrawn-pendingOrClaimed, org.Balance)
	assert.Equal(t, org.Balance, f.held(t, org.Address))
	assert.Equal(t, paidOut, f.held(t, recipient.Address()))
	assert.Equal(t, f.ledger.Outstanding(), sumBalances(t, f))
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundedOrg(t)
	f.createV1(t)

	f.now = f.now.Add(time.Minute)
	_, err := f.svc.CreateVoucher(ctx, CreateVoucherInput{
		Maintainer: maintainer, OrganizationID: 42, VoucherID: "v2", RecipientExternalID: 8, Amount: 10,
	})
	require.NoError(t, err)
	_, err = f.svc.ClaimVoucher(ctx, recipient, "v2")
	require.NoError(t, err)

	all, err := f.svc.ListVouchers(ctx, 42, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "v1", all[0].VoucherID)

	pending, err := f.svc.ListVouchers(ctx, 42, StatePending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "v1", pending[0].VoucherID)

	_, err = f.svc.ListVouchers(ctx, 77, "", 0)
	require.ErrorIs(t, err, ErrNotFound)

	due, err := f.svc.DueForExpiry(ctx, ExpiryCursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.now = time.Unix(pending[0].ExpiresAt+1, 0)
	due, err = f.svc.DueForExpiry(ctx, ExpiryCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "v1", due[0].VoucherID)

	due, err = f.svc.DueForExpiry(ctx, CursorOf(due[0]), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "the cursor excludes the voucher it points at")
}

func TestErrorClasses(t *testing.T) {
	cases := map[error]Class{
		ErrZeroAmount:              ClassValidation,
		ErrVoucherIDTooLong:        ClassValidation,
		ErrMetadataTooLong:         ClassValidation,
		ErrNotAuthorized:           ClassAuthorization,
		ErrMaintainerAlreadyExists: ClassAuthorization,
		ErrOrganizationMismatch:    ClassAuthorization,
		ErrInvalidVoucherState:     ClassState,
		ErrVoucherExpired:          ClassState,
		ErrVoucherNotExpired:       ClassState,
		ErrMaintainerListFull:      ClassState,
		ErrInsufficientBalance:     ClassAccounting,
		ErrOverflow:                ClassAccounting,
		ErrUnderflow:               ClassAccounting,
	}
	for err, want := range cases {
		wrapped := fmt.Errorf("op: %w", err)
		got, ok := ClassOf(wrapped)
		require.True(t, ok, err.Error())
		assert.Equal(t, want, got, err.Error())
		assert.ErrorIs(t, wrapped, err)
	}

	_, ok := ClassOf(ErrAddressInUse)
	assert.False(t, ok)
	assert.NotErrorIs(t, ErrZeroAmount, ErrOverflow)
}

func sumBalances(t *testing.T, f *fixture) uint64 {
	t.Helper()
	var total uint64
	err := f.ledger.Update(func(b *ledger.Book) error {
		for _, addr := range trackedAddresses(t) {
			v, _ := b.Balance(addr)
			total += v
		}
		return errors.New("read only")
	})
	require.Error(t, err)
	return total
}

func trackedAddresses(t *testing.T) []ledger.Address {
	t.Helper()
	addrs := []ledger.Address{admin.Address(), maintainer.Address(), recipient.Address(), stranger.Address()}
	for i := 0; i < 20; i++ {
		addrs = append(addrs, Identity(fmt.Sprintf("claimer-%d", i)).Address())
	}
	org, _, err := OrganizationAddress(42)
	require.NoError(t, err)
	addrs = append(addrs, org)
	for _, id := range []string{"v1", "v2", "a", "b", "c"} {
		v, _, err := VoucherAddress(id)
		require.NoError(t, err)
		addrs = append(addrs, v)
	}
	return addrs
}
