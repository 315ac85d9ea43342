package engine

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/oracle"
	"github.com/atmx/dsc-engine/internal/risk"
)

// Params are the fixed risk parameters of an engine.
type Params struct {
	// LiquidationThreshold is the share of collateral value, over
	// LiquidationPrecision, that may back debt. 50 means 200% collateralized.
	LiquidationThreshold uint64 `json:"liquidation_threshold"`

	// LiquidationBonus is the extra collateral, over LiquidationPrecision,
	// paid to a liquidator on top of the debt it covers.
	LiquidationBonus uint64 `json:"liquidation_bonus"`

	LiquidationPrecision uint64        `json:"liquidation_precision"`
	MinHealthFactor      *uint256.Int  `json:"-"`
	OracleTimeout        time.Duration `json:"-"`
}

// DefaultParams returns threshold 50, bonus 10, precision 100, minimum health
// factor 1.0 and a 3h oracle timeout.
func DefaultParams() Params {
	return Params{
		LiquidationThreshold: 50,
		LiquidationBonus:     10,
		LiquidationPrecision: 100,
		MinHealthFactor:      fixedpoint.Precision(),
		OracleTimeout:        oracle.DefaultMaxAge,
	}
}

// Precision is the fixed-point scale shared by every amount (1e18).
func (p Params) Precision() *uint256.Int { return fixedpoint.Precision() }

// Validate checks the parameters and returns the solvency policy they define.
func (p Params) Validate() (*risk.Policy, error) {
	if p.LiquidationBonus > p.LiquidationPrecision {
		return nil, fmt.Errorf("%w: bonus %d exceeds precision %d", ErrInvalidParams, p.LiquidationBonus, p.LiquidationPrecision)
	}
	if p.OracleTimeout < 0 {
		return nil, fmt.Errorf("%w: negative oracle timeout", ErrInvalidParams)
	}
	policy, err := risk.NewPolicy(p.LiquidationThreshold, p.LiquidationPrecision, p.MinHealthFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return policy, nil
}
