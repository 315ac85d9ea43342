package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/oracle"
)

var (
	ErrInvalidAmount           = errors.New("engine: amount must be more than zero")
	ErrUnsupportedAsset        = errors.New("engine: asset not allowed as collateral")
	ErrTransferFailed          = errors.New("engine: transfer failed")
	ErrMintFailed              = errors.New("engine: mint failed")
	ErrBreaksHealthFactor      = errors.New("engine: breaks health factor")
	ErrHealthFactorOK          = errors.New("engine: health factor ok")
	ErrHealthFactorNotImproved = errors.New("engine: health factor not improved")
	ErrInsufficientCollateral  = errors.New("engine: insufficient collateral")
	ErrInsufficientDebt        = errors.New("engine: insufficient debt")
	ErrReentrantCall           = errors.New("engine: reentrant call")
	ErrZeroAddress             = errors.New("engine: zero address")
	ErrEngineAccount           = errors.New("engine: engine account cannot act on a position")
	ErrInvalidParams           = errors.New("engine: invalid parameters")
	ErrNilCollaborator         = errors.New("engine: nil collaborator")

	// Price errors surface unchanged from the oracle guard.
	ErrStalePrice   = oracle.ErrStalePrice
	ErrInvalidPrice = oracle.ErrInvalidPrice
)

// BreaksHealthFactorError reports the health factor an operation would have
// left the account with. It matches ErrBreaksHealthFactor under errors.Is.
type BreaksHealthFactorError struct {
	Account common.Address
	Factor  *uint256.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("%s: account %s health factor %s", ErrBreaksHealthFactor, e.Account.Hex(), fixedpoint.Format(e.Factor))
}

func (e *BreaksHealthFactorError) Is(target error) bool {
	return target == ErrBreaksHealthFactor
}
