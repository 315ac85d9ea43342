package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/model"
)

// mintDebt records amount of new debt for account and mints the tokens to it.
func (e *Engine) mintDebt(rec *opRecord, account common.Address, amount *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	debt, err := fixedpoint.Add(e.st.debtOf(account), amount)
	if err != nil {
		return fmt.Errorf("engine: mint: %w", err)
	}
	if err := e.st.setDebt(account, debt); err != nil {
		return fmt.Errorf("engine: mint: %w", err)
	}
	rec.touch(account, model.BookDebt, "")

	if err := e.dsc.Mint(e.self, account, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	return nil
}

// burnDebt clears amount of onBehalfOf's debt, paid with tokens pulled from
// payer and destroyed by the engine.
func (e *Engine) burnDebt(rec *opRecord, amount *uint256.Int, onBehalfOf, payer common.Address) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	current := e.st.debtOf(onBehalfOf)
	debt, err := fixedpoint.Sub(current, amount)
	if err != nil {
		return fmt.Errorf("%w: %s owes %s, asked to burn %s",
			ErrInsufficientDebt, onBehalfOf.Hex(), fixedpoint.Format(current), fixedpoint.Format(amount))
	}
	if err := e.st.setDebt(onBehalfOf, debt); err != nil {
		return fmt.Errorf("engine: burn: %w", err)
	}
	rec.touch(onBehalfOf, model.BookDebt, "")

	if err := e.dsc.TransferFrom(e.self, payer, e.self, amount); err != nil {
		return fmt.Errorf("%w: pull debt token from %s: %w", ErrTransferFailed, payer.Hex(), err)
	}
	if err := e.dsc.Burn(e.self, amount); err != nil {
		return fmt.Errorf("engine: burn debt token: %w", err)
	}
	return nil
}
