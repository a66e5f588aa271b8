package fixed_test

import (
	"math/big"
	"testing"

	"VaultLedger/internal/fixed"
)

// ============================================================================
// Test: scale constants
// ============================================================================

func TestScales(t *testing.T) {
	if fixed.UnitScale.String() != "1000000000000000000" {
		t.Errorf("unit scale: got %s", fixed.UnitScale.String())
	}
	if fixed.RateScale.String() != "1000000000000000000000000000" {
		t.Errorf("rate scale: got %s", fixed.RateScale.String())
	}
	// accum = unit * rate
	want := new(big.Int).Mul(fixed.UnitScale, fixed.RateScale)
	if fixed.AccumScale.Cmp(want) != 0 {
		t.Errorf("accum scale: got %s, want %s", fixed.AccumScale, want)
	}
}

// ============================================================================
// Test: MulRate / DivRate truncation
// ============================================================================

func TestMulRate_Identity(t *testing.T) {
	v := fixed.MustParse("123456789000000000000000000")
	got := fixed.MulRate(v, fixed.RateScale)
	if got.Cmp(v) != 0 {
		t.Errorf("x * 1.0 should be x: got %s", got)
	}
}

func TestMulRate_Truncates(t *testing.T) {
	// 1 * (1e27 - 1) / 1e27 truncates to 0
	got := fixed.MulRate(big.NewInt(1), fixed.Sub(fixed.RateScale, big.NewInt(1)))
	if got.Sign() != 0 {
		t.Errorf("expected truncation to 0, got %s", got)
	}
}

func TestDivRate_Truncates(t *testing.T) {
	// 10/3 in rate scale: 10e27*1e27/3e27 = 3.333...e27 truncated
	a := new(big.Int).Mul(big.NewInt(10), fixed.RateScale)
	b := new(big.Int).Mul(big.NewInt(3), fixed.RateScale)
	got := fixed.DivRate(a, b)
	want := fixed.MustParse("3333333333333333333333333333")
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestMulRate_DoesNotMutateInputs(t *testing.T) {
	a := fixed.Clone(fixed.RateScale)
	b := fixed.Clone(fixed.RateScale)
	fixed.MulRate(a, b)
	if a.Cmp(fixed.RateScale) != 0 || b.Cmp(fixed.RateScale) != 0 {
		t.Error("MulRate mutated its inputs")
	}
}

// ============================================================================
// Test: RPow
// ============================================================================

func TestRPow_ZeroExponentIsIdentity(t *testing.T) {
	x := fixed.MustParse("1000000000315522921573372069") // ~1% APR per second
	got := fixed.RPow(x, 0)
	if got.Cmp(fixed.RateScale) != 0 {
		t.Errorf("x^0 should be 1.0, got %s", got)
	}
}

func TestRPow_OneExponent(t *testing.T) {
	x := fixed.MustParse("1000000000315522921573372069")
	got := fixed.RPow(x, 1)
	if got.Cmp(x) != 0 {
		t.Errorf("x^1 should be x, got %s", got)
	}
}

func TestRPow_Square(t *testing.T) {
	two := new(big.Int).Mul(big.NewInt(2), fixed.RateScale)
	got := fixed.RPow(two, 2)
	want := new(big.Int).Mul(big.NewInt(4), fixed.RateScale)
	if got.Cmp(want) != 0 {
		t.Errorf("2^2 should be 4, got %s", got)
	}
}

// ============================================================================
// Test: MulBps
// ============================================================================

func TestMulBps(t *testing.T) {
	v := new(big.Int).Mul(big.NewInt(200), fixed.UnitScale)
	got := fixed.MulBps(v, 2_500) // 25%
	want := new(big.Int).Mul(big.NewInt(50), fixed.UnitScale)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestMulBps_Truncates(t *testing.T) {
	got := fixed.MulBps(big.NewInt(3), 5_000) // 1.5 -> 1
	if got.Int64() != 1 {
		t.Errorf("got %d, want 1", got.Int64())
	}
}

func TestUnitToRate(t *testing.T) {
	got := fixed.UnitToRate(fixed.UnitScale)
	if got.Cmp(fixed.RateScale) != 0 {
		t.Errorf("1.0 unit should lift to 1.0 rate, got %s", got)
	}
}
