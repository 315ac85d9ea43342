package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/model"
	"github.com/atmx/dsc-engine/internal/oracle"
)

// AccountInformation returns account's debt and the USD value of its
// collateral.
func (e *Engine) AccountInformation(ctx context.Context, account common.Address) (debt, collateralUSD *uint256.Int, err error) {
	collateralUSD, err = e.collateralValueUSD(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return e.st.debtOf(account), collateralUSD, nil
}

// AccountCollateralValue returns the USD value of account's collateral.
func (e *Engine) AccountCollateralValue(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return e.collateralValueUSD(ctx, account)
}

// HealthFactor returns account's current health factor; fixedpoint.Max()
// when it has no debt.
func (e *Engine) HealthFactor(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return e.healthFactor(ctx, account)
}

// CalculateHealthFactor evaluates the health factor of a hypothetical
// position.
func (e *Engine) CalculateHealthFactor(debt, collateralUSD *uint256.Int) (*uint256.Int, error) {
	return e.policy.HealthFactor(debt, collateralUSD)
}

// TokenAmountFromUSD converts a USD amount into units of asset id at the
// current price.
func (e *Engine) TokenAmountFromUSD(ctx context.Context, id asset.ID, usd *uint256.Int) (*uint256.Int, error) {
	a, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.tokenAmountFromUSD(ctx, id, a, usd)
}

// USDValue returns the USD value of amount of asset id at the current price.
func (e *Engine) USDValue(ctx context.Context, id asset.ID, amount *uint256.Int) (*uint256.Int, error) {
	a, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.usdValue(ctx, id, a, amount)
}

// Price returns the guarded price of asset id.
func (e *Engine) Price(ctx context.Context, id asset.ID) (oracle.Price, error) {
	a, err := e.lookup(id)
	if err != nil {
		return oracle.Price{}, err
	}
	return e.guard.Latest(ctx, a.Feed)
}

// CollateralBalance returns account's deposited balance of asset id.
func (e *Engine) CollateralBalance(account common.Address, id asset.ID) *uint256.Int {
	return e.st.collateralOf(account, id)
}

// DebtOf returns account's outstanding debt.
func (e *Engine) DebtOf(account common.Address) *uint256.Int {
	return e.st.debtOf(account)
}

// TotalDebt returns the debt outstanding across all accounts.
func (e *Engine) TotalDebt() *uint256.Int { return e.st.totalDebt.Clone() }

// TotalCollateral returns the amount of asset id deposited across all
// accounts.
func (e *Engine) TotalCollateral(id asset.ID) *uint256.Int {
	return fixedpoint.Clone(e.st.totalCollateral[id])
}

// CollateralAssets returns the registered assets in registration order.
func (e *Engine) CollateralAssets() []asset.ID { return e.assets.IDs() }

// PriceSource returns the raw price source of asset id.
func (e *Engine) PriceSource(id asset.ID) (oracle.Source, error) {
	a, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return a.Feed, nil
}

// DebtToken returns the debt token ledger.
func (e *Engine) DebtToken() DebtToken { return e.dsc }

// Params returns the engine's risk parameters.
func (e *Engine) Params() Params {
	p := e.params
	p.MinHealthFactor = e.params.MinHealthFactor.Clone()
	return p
}

// Account assembles a full view of account: books, valuation and health.
func (e *Engine) Account(ctx context.Context, account common.Address) (model.AccountInfo, error) {
	info := model.AccountInfo{
		Account: account.Hex(),
		Debt:    fixedpoint.ToDecimal(e.st.debtOf(account)),
	}
	total := fixedpoint.Zero()
	err := e.assets.Each(func(id asset.ID, a Asset) error {
		amount := e.st.collateralOf(account, id)
		usd, err := e.usdValue(ctx, id, a, amount)
		if err != nil {
			return err
		}
		if total, err = fixedpoint.Add(total, usd); err != nil {
			return err
		}
		if !amount.IsZero() {
			info.Collateral = append(info.Collateral, model.CollateralPosition{
				Asset:    string(id),
				Amount:   fixedpoint.ToDecimal(amount),
				USDValue: fixedpoint.ToDecimal(usd),
			})
		}
		return nil
	})
	if err != nil {
		return model.AccountInfo{}, fmt.Errorf("engine: account %s: %w", account.Hex(), err)
	}
	info.CollateralUSD = fixedpoint.ToDecimal(total)

	debt := e.st.debtOf(account)
	hf, err := e.policy.HealthFactor(debt, total)
	if err != nil {
		return model.AccountInfo{}, err
	}
	maxDebt, err := e.policy.MaxDebt(total)
	if err != nil {
		return model.AccountInfo{}, err
	}
	mintable := fixedpoint.Zero()
	if maxDebt.Gt(debt) {
		mintable = new(uint256.Int).Sub(maxDebt, debt)
	}
	info.MaxMintable = fixedpoint.ToDecimal(mintable)
	if !fixedpoint.IsMax(hf) {
		d := fixedpoint.ToDecimal(hf)
		info.HealthFactor = &d
	}
	info.Liquidatable = !e.policy.Safe(hf)
	return info, nil
}

// Assets describes every registered asset with its current price. A feed
// that fails the guard is reported with a zero price rather than failing the
// listing.
func (e *Engine) Assets(ctx context.Context) []model.AssetInfo {
	out := make([]model.AssetInfo, 0, e.assets.Len())
	_ = e.assets.Each(func(id asset.ID, a Asset) error {
		info := model.AssetInfo{
			ID:           string(id),
			FeedDecimals: a.Feed.Decimals(),
			PriceUSD:     decimal.Zero,
			Deposited:    fixedpoint.ToDecimal(e.TotalCollateral(id)),
		}
		if a.Address != (common.Address{}) {
			info.Token = a.Address.Hex()
		}
		if p, err := e.guard.Latest(ctx, a.Feed); err == nil {
			info.PriceUSD = decimal.NewFromBigInt(p.Value.ToBig(), -int32(p.Decimals))
			info.UpdatedAt = p.UpdatedAt
		}
		out = append(out, info)
		return nil
	})
	return out
}
