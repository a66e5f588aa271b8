package fixed

import "math/big"

// The protocol tracks quantities in three scaled-integer precisions:
//
//	unit scale  1e18 — raw collateral amounts and normalized debt shares
//	rate scale  1e27 — multiplicative rates and safety-margin prices
//	accum scale 1e45 — quantity x rate totals (stablecoin, ceilings, floors)
//
// All division truncates toward zero. The liquidation strategy and the
// ledger share these helpers so their rounding is bit-for-bit identical;
// the conservation invariant depends on that.
var (
	UnitScale  = pow10(18)
	RateScale  = pow10(27)
	AccumScale = pow10(45)

	// RateToUnitGap converts a unit-scale value to rate scale (1e9).
	RateToUnitGap = pow10(9)
)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// Zero returns a fresh zero value. Callers must never share big.Int
// instances across ledger fields.
func Zero() *big.Int {
	return new(big.Int)
}

// Clone copies v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Neg returns -v without mutating v.
func Neg(v *big.Int) *big.Int {
	return new(big.Int).Neg(v)
}

// Add returns a+b without mutating either operand.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a-b without mutating either operand.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Mul returns the full-precision product a*b. A unit-scale quantity times a
// rate-scale multiplier yields an accum-scale value directly.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// MulRate multiplies two rate-scale values: a*b/1e27, truncating.
func MulRate(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, RateScale)
}

// DivRate divides preserving rate scale: a*1e27/b, truncating.
func DivRate(a, b *big.Int) *big.Int {
	n := new(big.Int).Mul(a, RateScale)
	return n.Quo(n, b)
}

// Quo returns a/b truncating toward zero.
func Quo(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(a, b)
}

// MulBps applies a basis-point factor: a*bps/10000, truncating.
func MulBps(a *big.Int, bps uint64) *big.Int {
	p := new(big.Int).Mul(a, new(big.Int).SetUint64(bps))
	return p.Quo(p, big.NewInt(10_000))
}

// UnitToRate lifts a unit-scale value to rate scale.
func UnitToRate(v *big.Int) *big.Int {
	return new(big.Int).Mul(v, RateToUnitGap)
}

// RPow computes x^n in rate scale by exponentiation-by-squaring, truncating
// at every step. Used for per-second stability-fee compounding; x == 1e27
// is the identity.
func RPow(x *big.Int, n uint64) *big.Int {
	result := Clone(RateScale)
	base := Clone(x)
	for n > 0 {
		if n&1 == 1 {
			result = MulRate(result, base)
		}
		base = MulRate(base, base)
		n >>= 1
	}
	return result
}

// Min returns the smaller of a and b (shared reference, not a copy).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MustParse converts a decimal string into a big.Int, panicking on bad
// input. Reserved for package-level constants and tests.
func MustParse(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixed: invalid integer constant: " + s)
	}
	return v
}
