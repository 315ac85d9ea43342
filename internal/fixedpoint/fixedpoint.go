// Package fixedpoint implements the 18-decimal fixed-point arithmetic used for
// every collateral, debt and USD amount in the engine.
//
// Amounts are unsigned 256-bit integers (holiman/uint256) scaled by 1e18.
// Products that feed a division use MulDivOverflow, which keeps a 512-bit
// intermediate, so x*y/d never loses precision to an intermediate overflow.
// Nothing in this package touches float64.
//
// shopspring/decimal is only used at the edges: parsing human input such as
// "10.5" and rendering amounts back for JSON and logs.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every amount.
const Decimals = 18

const precision uint64 = 1_000_000_000_000_000_000

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixedpoint: overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("fixedpoint: underflow")

	// ErrDivisionByZero is returned by MulDiv when the divisor is zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")

	// ErrInvalidAmount is returned when a textual amount cannot be parsed
	// or is negative.
	ErrInvalidAmount = errors.New("fixedpoint: invalid amount")

	// ErrTooManyDecimals is returned when a textual amount carries more than
	// Decimals fractional digits.
	ErrTooManyDecimals = errors.New("fixedpoint: too many fractional digits")

	// ErrFeedDecimals is returned for price feeds with more than Decimals
	// fractional digits.
	ErrFeedDecimals = errors.New("fixedpoint: feed decimals exceed precision")
)

// Precision returns 1e18, the canonical scale (also "1.0").
func Precision() *uint256.Int { return uint256.NewInt(precision) }

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// Max returns the largest representable amount (2^256 - 1).
func Max() *uint256.Int { return new(uint256.Int).SetAllOne() }

// IsMax reports whether x is the largest representable amount.
func IsMax(x *uint256.Int) bool { return x != nil && x.Eq(Max()) }

// Units returns n whole units scaled to Decimals.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), Precision())
}

// Clone returns a copy of x, treating nil as zero.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return Zero()
	}
	return x.Clone()
}

// Add returns x + y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(Clone(x), Clone(y))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x - y, failing instead of wrapping when y > x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(Clone(x), Clone(y))
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Mul returns x * y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(Clone(x), Clone(y))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDiv returns floor(x * y / d) computed over a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(Clone(x), Clone(y), d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Percent returns floor(x * pct / base), e.g. Percent(x, 10, 100) is 10% of x.
func Percent(x *uint256.Int, pct, base uint64) (*uint256.Int, error) {
	return MulDiv(x, uint256.NewInt(pct), uint256.NewInt(base))
}

// FeedScale returns the factor that lifts a price quoted with the given
// number of decimals to Decimals, i.e. 10^(18 - decimals). An 8-decimal feed
// yields 1e10.
func FeedScale(decimals uint8) (*uint256.Int, error) {
	if decimals > Decimals {
		return nil, fmt.Errorf("%w: %d", ErrFeedDecimals, decimals)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(Decimals-decimals))), nil
}

// FromDecimal converts a human decimal ("10.5") into a scaled amount.
func FromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative value %s", ErrInvalidAmount, d)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrTooManyDecimals, d)
	}
	z, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Parse converts a decimal string into a scaled amount.
func Parse(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests; it panics on error.
func MustParse(s string) *uint256.Int {
	z, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return z
}

// ToDecimal renders a scaled amount as a decimal with Decimals places.
func ToDecimal(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -Decimals)
}

// Format renders a scaled amount as a trimmed decimal string ("10.5").
func Format(x *uint256.Int) string {
	return ToDecimal(x).String()
}
