package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/metrics"
	"github.com/atmx/dsc-engine/internal/model"
	"github.com/atmx/dsc-engine/internal/oracle"
)

// depositCollateral credits account with amount of id and pulls the tokens
// into the engine. The book is updated before the token call.
func (e *Engine) depositCollateral(rec *opRecord, account common.Address, id asset.ID, amount *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	bal, err := fixedpoint.Add(e.st.collateralOf(account, id), amount)
	if err != nil {
		return fmt.Errorf("engine: deposit %s: %w", id, err)
	}
	if err := e.st.setCollateral(account, id, bal); err != nil {
		return fmt.Errorf("engine: deposit %s: %w", id, err)
	}
	rec.touch(account, model.BookCollateral, id)

	if err := a.Token.TransferFrom(e.self, account, e.self, amount); err != nil {
		return fmt.Errorf("%w: pull %s from %s: %w", ErrTransferFailed, id, account.Hex(), err)
	}
	return nil
}

// redeemCollateral debits from's balance of id and sends the tokens to to.
// It performs no solvency check of its own.
func (e *Engine) redeemCollateral(rec *opRecord, id asset.ID, amount *uint256.Int, from, to common.Address) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	current := e.st.collateralOf(from, id)
	bal, err := fixedpoint.Sub(current, amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s %s, asked for %s",
			ErrInsufficientCollateral, from.Hex(), fixedpoint.Format(current), id, fixedpoint.Format(amount))
	}
	if err := e.st.setCollateral(from, id, bal); err != nil {
		return fmt.Errorf("engine: redeem %s: %w", id, err)
	}
	rec.touch(from, model.BookCollateral, id)

	if err := a.Token.Transfer(e.self, to, amount); err != nil {
		return fmt.Errorf("%w: send %s to %s: %w", ErrTransferFailed, id, to.Hex(), err)
	}
	return nil
}

// collateralValueUSD sums the USD value of every registered asset held by
// account. Every feed is read, including those of empty balances, so a stale
// feed blocks valuation of every account.
func (e *Engine) collateralValueUSD(ctx context.Context, account common.Address) (*uint256.Int, error) {
	total := fixedpoint.Zero()
	err := e.assets.Each(func(id asset.ID, a Asset) error {
		usd, err := e.usdValue(ctx, id, a, e.st.collateralOf(account, id))
		if err != nil {
			return err
		}
		total, err = fixedpoint.Add(total, usd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// usdValue converts amount of an asset to USD:
// price * feedScale * amount / 1e18.
func (e *Engine) usdValue(ctx context.Context, id asset.ID, a Asset, amount *uint256.Int) (*uint256.Int, error) {
	price, err := e.price(ctx, id, a)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(price, amount, fixedpoint.Precision())
}

// tokenAmountFromUSD converts a USD amount to units of an asset:
// usd * 1e18 / (price * feedScale).
func (e *Engine) tokenAmountFromUSD(ctx context.Context, id asset.ID, a Asset, usd *uint256.Int) (*uint256.Int, error) {
	price, err := e.price(ctx, id, a)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(usd, fixedpoint.Precision(), price)
}

// price returns the guarded price of one whole unit, scaled to 18 decimals.
func (e *Engine) price(ctx context.Context, id asset.ID, a Asset) (*uint256.Int, error) {
	p, err := e.guard.Latest(ctx, a.Feed)
	if err != nil {
		if errors.Is(err, oracle.ErrStalePrice) || errors.Is(err, oracle.ErrInvalidPrice) {
			metrics.StalePriceRejections.WithLabelValues(string(id)).Inc()
		}
		return nil, fmt.Errorf("engine: price of %s: %w", id, err)
	}
	return p.Normalized()
}
