package engine

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/model"
	"github.com/atmx/dsc-engine/internal/risk"
)

// DepositCollateral locks amount of asset id for caller. The caller must have
// approved the engine to pull the tokens.
func (e *Engine) DepositCollateral(ctx context.Context, caller common.Address, id asset.ID, amount *uint256.Int) error {
	rec := &opRecord{kind: model.KindDeposit, account: caller, asset: id, collateral: amount}
	return e.execute(ctx, rec, func() error {
		if err := e.requireAccount(caller); err != nil {
			return err
		}
		return e.depositCollateral(rec, caller, id, amount)
	})
}

// MintDebt mints amount of debt token to caller against its collateral.
func (e *Engine) MintDebt(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	rec := &opRecord{kind: model.KindMint, account: caller, debt: amount}
	return e.execute(ctx, rec, func() error {
		if err := e.requireAccount(caller); err != nil {
			return err
		}
		if err := e.mintDebt(rec, caller, amount); err != nil {
			return err
		}
		return e.assertSolvent(ctx, caller)
	})
}

// DepositAndMint deposits collateral and mints debt in one operation.
func (e *Engine) DepositAndMint(ctx context.Context, caller common.Address, id asset.ID, amount, debtAmount *uint256.Int) error {
	rec := &opRecord{kind: model.KindDepositAndMint, account: caller, asset: id, collateral: amount, debt: debtAmount}
	return e.execute(ctx, rec, func() error {
		if err := e.requireAccount(caller); err != nil {
			return err
		}
		if err := e.depositCollateral(rec, caller, id, amount); err != nil {
			return err
		}
		if err := e.mintDebt(rec, caller, debtAmount); err != nil {
			return err
		}
		return e.assertSolvent(ctx, caller)
	})
}

// RedeemCollateral returns amount of asset id to caller, provided the
// remaining position stays safe.
func (e *Engine) RedeemCollateral(ctx context.Context, caller common.Address, id asset.ID, amount *uint256.Int) error {
	rec := &opRecord{kind: model.KindRedeem, account: caller, asset: id, collateral: amount}
	return e.execute(ctx, rec, func() error {
		if err := e.requireAccount(caller); err != nil {
			return err
		}
		if err := e.redeemCollateral(rec, id, amount, caller, caller); err != nil {
			return err
		}
		return e.assertSolvent(ctx, caller)
	})
}

// BurnDebt repays amount of caller's debt with caller's own tokens. An
// account already below the minimum may still repay: the burn only fails when
// it would lower the health factor.
func (e *Engine) BurnDebt(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	rec := &opRecord{kind: model.KindBurn, account: caller, debt: amount}
	return e.execute(ctx, rec, func() error {
		if err := e.requireAccount(caller); err != nil {
			return err
		}
		startHF, err := e.healthFactor(ctx, caller)
		if err != nil {
			return err
		}
		if err := e.burnDebt(rec, amount, caller, caller); err != nil {
			return err
		}
		endHF, err := e.healthFactor(ctx, caller)
		if err != nil {
			return err
		}
		if endHF.Lt(startHF) {
			return &BreaksHealthFactorError{Account: caller, Factor: endHF}
		}
		return nil
	})
}

// RedeemForBurn repays debtAmount and then redeems collateralAmount of asset
// id in one operation. The solvency check after the redemption decides.
func (e *Engine) RedeemForBurn(ctx context.Context, caller common.Address, id asset.ID, collateralAmount, debtAmount *uint256.Int) error {
	rec := &opRecord{kind: model.KindRedeemForBurn, account: caller, asset: id, collateral: collateralAmount, debt: debtAmount}
	return e.execute(ctx, rec, func() error {
		if err := e.requireAccount(caller); err != nil {
			return err
		}
		if err := e.burnDebt(rec, debtAmount, caller, caller); err != nil {
			return err
		}
		if err := e.redeemCollateral(rec, id, collateralAmount, caller, caller); err != nil {
			return err
		}
		return e.assertSolvent(ctx, caller)
	})
}

// assertSolvent fails with *BreaksHealthFactorError when account is below
// the minimum health factor.
func (e *Engine) assertSolvent(ctx context.Context, account common.Address) error {
	collateralUSD, err := e.collateralValueUSD(ctx, account)
	if err != nil {
		return err
	}
	hf, err := e.policy.Check(e.st.debtOf(account), collateralUSD)
	if errors.Is(err, risk.ErrBelowMinimum) {
		return &BreaksHealthFactorError{Account: account, Factor: hf}
	}
	return err
}

func (e *Engine) healthFactor(ctx context.Context, account common.Address) (*uint256.Int, error) {
	collateralUSD, err := e.collateralValueUSD(ctx, account)
	if err != nil {
		return nil, err
	}
	return e.policy.HealthFactor(e.st.debtOf(account), collateralUSD)
}
