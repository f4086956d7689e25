package ledger

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestNumericRoundTripsFullRange(t *testing.T) {
	for _, v := range []uint64{0, 1, 1_000, math.MaxUint64} {
		got, err := Uint64(Numeric(v))
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("expected %d, got %d", v, got)
		}
	}
}

func TestUint64HandlesScaledNumerics(t *testing.T) {
	got, err := Uint64(pgtype.Numeric{Int: big.NewInt(7), Exp: 3, Valid: true})
	if err != nil || got != 7_000 {
		t.Fatalf("expected 7000, got %d (%v)", got, err)
	}
	got, err = Uint64(pgtype.Numeric{Int: big.NewInt(25_000), Exp: -2, Valid: true})
	if err != nil || got != 250 {
		t.Fatalf("expected 250, got %d (%v)", got, err)
	}
	if _, err := Uint64(pgtype.Numeric{Int: big.NewInt(25_001), Exp: -2, Valid: true}); err == nil {
		t.Fatalf("expected fractional numeric to fail")
	}
	if _, err := Uint64(negNumeric(5)); err == nil {
		t.Fatalf("expected negative numeric to fail")
	}
}
