package escrow

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/git-voucher/escrow/internal/ledger"
)

const (
	// MaxMaintainers bounds the maintainer list of an organization.
	MaxMaintainers = 10
	// MaxVoucherIDLen is the byte limit on voucher identifiers.
	MaxVoucherIDLen = 64
	// MaxMetadataLen is the byte limit on voucher metadata.
	MaxMetadataLen = 512
	// VoucherLifetime is the fixed number of seconds a voucher stays claimable.
	VoucherLifetime int64 = 30 * 24 * 60 * 60

	organizationNamespace = "organization"
	voucherNamespace      = "voucher"
)

// Identity is an authenticated caller. Proof of control happens before the
// escrow layer sees it.
type Identity string

// Address is the ledger account that pays out to or receives from the identity.
func (i Identity) Address() ledger.Address {
	return ledger.IdentityAddress(string(i))
}

// State is the lifecycle position of a voucher.
type State string

const (
	StatePending   State = "pending"
	StateClaimed   State = "claimed"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClaimed || s == StateCancelled || s == StateExpired
}

// ParseState validates a state name.
func ParseState(v string) (State, error) {
	switch s := State(v); s {
	case StatePending, StateClaimed, StateCancelled, StateExpired:
		return s, nil
	default:
		return "", fmt.Errorf("unknown voucher state %q", v)
	}
}

// Organization pools funds for the vouchers its maintainers issue.
type Organization struct {
	Address         ledger.Address
	ExternalID      uint64
	Admin           Identity
	Balance         uint64
	Maintainers     []Identity
	VouchersCreated uint64
	Nonce           uint8
}

// IsMaintainer reports whether id may issue and cancel vouchers.
func (o Organization) IsMaintainer(id Identity) bool {
	return slices.Contains(o.Maintainers, id)
}

// Voucher escrows Amount for the holder of RecipientExternalID.
type Voucher struct {
	Address             ledger.Address
	VoucherID           string
	Organization        ledger.Address
	RecipientExternalID uint64
	Amount              uint64
	CreatedAt           int64
	ExpiresAt           int64
	State               State
	Metadata            string
	Nonce               uint8
}

// OrganizationAddress derives the record address for an organization id.
func OrganizationAddress(externalID uint64) (ledger.Address, uint8, error) {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, externalID)
	return ledger.DeriveAddress(organizationNamespace, key)
}

// VoucherAddress derives the record address for a voucher id.
func VoucherAddress(voucherID string) (ledger.Address, uint8, error) {
	return ledger.DeriveAddress(voucherNamespace, []byte(voucherID))
}
