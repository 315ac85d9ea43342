package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/model"
)

// Liquidate covers debtToCover of debtor's debt with the liquidator's debt
// tokens. In return the liquidator receives the equivalent amount of asset id
// plus the liquidation bonus, seized from debtor's collateral.
//
// The debtor must be below the minimum health factor, the liquidation must
// strictly improve it, and the liquidator must remain safe afterwards. If the
// debtor's balance of id cannot cover the seizure the whole liquidation fails
// with ErrInsufficientCollateral; there is no partial fallback.
func (e *Engine) Liquidate(ctx context.Context, liquidator common.Address, id asset.ID, debtor common.Address, debtToCover *uint256.Int) error {
	rec := &opRecord{kind: model.KindLiquidate, account: debtor, liquidator: liquidator, asset: id, debt: debtToCover}
	return e.execute(ctx, rec, func() error {
		if err := requireAmount(debtToCover); err != nil {
			return err
		}
		a, err := e.lookup(id)
		if err != nil {
			return err
		}
		if err := e.requireAccount(liquidator); err != nil {
			return err
		}
		if err := e.requireAccount(debtor); err != nil {
			return err
		}

		startHF, err := e.healthFactor(ctx, debtor)
		if err != nil {
			return err
		}
		if e.policy.Safe(startHF) {
			return fmt.Errorf("%w: %s at %s", ErrHealthFactorOK, debtor.Hex(), fixedpoint.Format(startHF))
		}

		seized, err := e.seizure(ctx, id, a, debtToCover)
		if err != nil {
			return err
		}
		rec.collateral = seized

		if err := e.redeemCollateral(rec, id, seized, debtor, liquidator); err != nil {
			return err
		}
		if err := e.burnDebt(rec, debtToCover, debtor, liquidator); err != nil {
			return err
		}

		endHF, err := e.healthFactor(ctx, debtor)
		if err != nil {
			return err
		}
		if !endHF.Gt(startHF) {
			return fmt.Errorf("%w: %s went from %s to %s", ErrHealthFactorNotImproved,
				debtor.Hex(), fixedpoint.Format(startHF), fixedpoint.Format(endHF))
		}
		return e.assertSolvent(ctx, liquidator)
	})
}

// seizure returns the collateral paid for covering usd of debt: its token
// equivalent plus the liquidation bonus.
func (e *Engine) seizure(ctx context.Context, id asset.ID, a Asset, usd *uint256.Int) (*uint256.Int, error) {
	base, err := e.tokenAmountFromUSD(ctx, id, a, usd)
	if err != nil {
		return nil, err
	}
	bonus, err := fixedpoint.Percent(base, e.params.LiquidationBonus, e.params.LiquidationPrecision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(base, bonus)
}
