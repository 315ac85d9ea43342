// Package risk implements the solvency rule of the engine: the health factor
// of a position and the check that keeps it at or above the minimum.
//
// The health factor is the threshold-adjusted collateral value divided by the
// outstanding debt, both 18-decimal USD amounts:
//
//	hf = collateralUSD * ThresholdPct / LiquidationPrecision * 1e18 / debt
//
// With ThresholdPct=50 a position must be 200% over-collateralized to reach
// hf = 1e18. A position without debt has the maximal health factor.
package risk

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
)

var (
	// ErrBelowMinimum is returned by Check when a position's health factor is
	// under the policy minimum.
	ErrBelowMinimum = errors.New("risk: health factor below minimum")

	// ErrInvalidPolicy is returned by NewPolicy for out-of-range parameters.
	ErrInvalidPolicy = errors.New("risk: invalid policy")
)

// Policy holds the parameters of the solvency rule.
type Policy struct {
	// ThresholdPct is the share of collateral value that may back debt,
	// expressed over LiquidationPrecision.
	ThresholdPct uint64

	// LiquidationPrecision is the denominator of ThresholdPct (100).
	LiquidationPrecision uint64

	// MinHealthFactor is the lowest safe health factor (1e18).
	MinHealthFactor *uint256.Int
}

// NewPolicy validates and returns a policy. thresholdPct must lie in
// (0, liquidationPrecision].
func NewPolicy(thresholdPct, liquidationPrecision uint64, minHealthFactor *uint256.Int) (*Policy, error) {
	if liquidationPrecision == 0 {
		return nil, fmt.Errorf("%w: zero liquidation precision", ErrInvalidPolicy)
	}
	if thresholdPct == 0 || thresholdPct > liquidationPrecision {
		return nil, fmt.Errorf("%w: threshold %d outside (0, %d]", ErrInvalidPolicy, thresholdPct, liquidationPrecision)
	}
	if minHealthFactor == nil || minHealthFactor.IsZero() {
		return nil, fmt.Errorf("%w: zero minimum health factor", ErrInvalidPolicy)
	}
	return &Policy{
		ThresholdPct:         thresholdPct,
		LiquidationPrecision: liquidationPrecision,
		MinHealthFactor:      minHealthFactor.Clone(),
	}, nil
}

// HealthFactor computes the health factor of a position. It never divides by
// zero: debt == 0 yields fixedpoint.Max().
func (p *Policy) HealthFactor(debt, collateralUSD *uint256.Int) (*uint256.Int, error) {
	if debt == nil || debt.IsZero() {
		return fixedpoint.Max(), nil
	}
	adjusted, err := fixedpoint.Percent(collateralUSD, p.ThresholdPct, p.LiquidationPrecision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(adjusted, fixedpoint.Precision(), debt)
}

// Safe reports whether hf meets the policy minimum.
func (p *Policy) Safe(hf *uint256.Int) bool {
	return !hf.Lt(p.MinHealthFactor)
}

// Check computes the health factor and returns it together with
// ErrBelowMinimum when the position is unsafe.
func (p *Policy) Check(debt, collateralUSD *uint256.Int) (*uint256.Int, error) {
	hf, err := p.HealthFactor(debt, collateralUSD)
	if err != nil {
		return nil, err
	}
	if !p.Safe(hf) {
		return hf, ErrBelowMinimum
	}
	return hf, nil
}

// MaxDebt returns the largest debt collateralUSD can back at the minimum
// health factor.
func (p *Policy) MaxDebt(collateralUSD *uint256.Int) (*uint256.Int, error) {
	adjusted, err := fixedpoint.Percent(collateralUSD, p.ThresholdPct, p.LiquidationPrecision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(adjusted, fixedpoint.Precision(), p.MinHealthFactor)
}
