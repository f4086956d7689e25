package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrDeclined is returned when the acquirer refuses an authorization.
var ErrDeclined = errors.New("authorization declined")

// Acquirer moves native currency across the system boundary: card-in
// credits an identity account, card-out pays it back out.
type Acquirer interface {
	AuthorizeCardIn(ctx context.Context, input CardInAuthorization) (AuthorizationDecision, error)
	AuthorizeCardOut(ctx context.Context, input CardOutAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision is the acquirer's answer, referenced on the funding result.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// CardInAuthorization asks to charge a card before crediting an account.
type CardInAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     uint64
}

// CardOutAuthorization asks to push funds to a card.
type CardOutAuthorization struct {
	CardNumber string
	Amount     uint64
}

// StaticAcquirer approves everything up to MaxAmount per authorization.
// A zero MaxAmount approves any amount.
type StaticAcquirer struct {
	MaxAmount uint64
}

// AuthorizeCardIn approves a top-up with a synthetic reference.
func (a StaticAcquirer) AuthorizeCardIn(_ context.Context, in CardInAuthorization) (AuthorizationDecision, error) {
	return a.decide(in.Amount)
}

// AuthorizeCardOut approves a payout with a synthetic reference.
func (a StaticAcquirer) AuthorizeCardOut(_ context.Context, in CardOutAuthorization) (AuthorizationDecision, error) {
	return a.decide(in.Amount)
}

func (a StaticAcquirer) decide(amount uint64) (AuthorizationDecision, error) {
	if a.MaxAmount > 0 && amount > a.MaxAmount {
		return AuthorizationDecision{Status: "declined"}, fmt.Errorf("%w: %d exceeds limit %d", ErrDeclined, amount, a.MaxAmount)
	}
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}
