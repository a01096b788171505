// Package numeric provides the checked fixed-point arithmetic used by the
// settlement core. All intermediates are 256-bit; any operation whose result
// does not fit the target width reports overflow instead of saturating.
package numeric

import (
	"github.com/holiman/uint256"

	"ammCore/internal/amm"
)

// U256 lifts a uint64 into a 256-bit integer.
func U256(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, amm.ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, amm.ErrArithmeticOverflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	product := new(uint256.Int).Mul(U256(a), U256(b))
	if !product.IsUint64() {
		return 0, amm.ErrArithmeticOverflow
	}
	return product.Uint64(), nil
}

// MulDivFloor computes floor(a*b/d) with a 256-bit intermediate. It fails on a
// zero divisor or a result wider than 64 bits.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, amm.ErrArithmeticOverflow
	}
	product := new(uint256.Int).Mul(U256(a), U256(b))
	quotient := product.Div(product, U256(d))
	if !quotient.IsUint64() {
		return 0, amm.ErrArithmeticOverflow
	}
	return quotient.Uint64(), nil
}

// MulDivCeil computes ceil(a*b/d) with a 256-bit intermediate.
func MulDivCeil(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, amm.ErrArithmeticOverflow
	}
	product := new(uint256.Int).Mul(U256(a), U256(b))
	product.Add(product, U256(d-1))
	quotient := product.Div(product, U256(d))
	if !quotient.IsUint64() {
		return 0, amm.ErrArithmeticOverflow
	}
	return quotient.Uint64(), nil
}

// MulDivWide computes floor(a*b/d) keeping the full width of the quotient.
func MulDivWide(a, b, d uint64) (*uint256.Int, error) {
	if d == 0 {
		return nil, amm.ErrArithmeticOverflow
	}
	product := new(uint256.Int).Mul(U256(a), U256(b))
	return product.Div(product, U256(d)), nil
}

// MulDiv256Floor computes floor(wide*mul/div) narrowed back to 64 bits.
func MulDiv256Floor(wide *uint256.Int, mul, div uint64) (uint64, error) {
	if div == 0 {
		return 0, amm.ErrArithmeticOverflow
	}
	product := new(uint256.Int).Mul(wide, U256(mul))
	product.Div(product, U256(div))
	return ToUint64(product)
}

// FloorDiv256 divides wide values, flooring. The divisor must be non-zero.
func FloorDiv256(num, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, amm.ErrArithmeticOverflow
	}
	return new(uint256.Int).Div(num, den), nil
}

// CeilDiv256 divides wide values, rounding up.
func CeilDiv256(num, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, amm.ErrArithmeticOverflow
	}
	sum := new(uint256.Int).Add(num, den)
	sum.Sub(sum, U256(1))
	return sum.Div(sum, den), nil
}

// ToUint64 narrows a wide value, reporting overflow.
func ToUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, amm.ErrArithmeticOverflow
	}
	return v.Uint64(), nil
}

// SqrtProduct returns floor(sqrt(a*b)). The product of two uint64 values always
// fits 128 bits, so the square root always fits 64.
func SqrtProduct(a, b uint64) uint64 {
	product := new(uint256.Int).Mul(U256(a), U256(b))
	return product.Sqrt(product).Uint64()
}
