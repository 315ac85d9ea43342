package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/model"
)

// --- Request/Response types ---

// CollateralRequest is the JSON body for deposit and redeem.
type CollateralRequest struct {
	Account string          `json:"account"` // 0x-prefixed hex address
	Asset   string          `json:"asset"`   // collateral symbol, e.g. WETH
	Amount  decimal.Decimal `json:"amount"`
}

// DebtRequest is the JSON body for mint and burn.
type DebtRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// PositionRequest is the JSON body for the combined deposit-and-mint and
// redeem-for-burn operations.
type PositionRequest struct {
	Account          string          `json:"account"`
	Asset            string          `json:"asset"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	DebtAmount       decimal.Decimal `json:"debt_amount"`
}

// LiquidationRequest is the JSON body for POST /liquidations.
type LiquidationRequest struct {
	Liquidator  string          `json:"liquidator"`
	Debtor      string          `json:"debtor"`
	Asset       string          `json:"asset"` // collateral to seize
	DebtToCover decimal.Decimal `json:"debt_to_cover"`
}

// OperationResponse is returned by every mutating endpoint. Account views are
// omitted when they cannot be valued right after the operation.
type OperationResponse struct {
	Kind       model.OperationKind `json:"kind"`
	Account    *model.AccountInfo  `json:"account,omitempty"`
	Liquidator *model.AccountInfo  `json:"liquidator,omitempty"`
}

// --- HTTP Handlers ---

// DepositCollateral handles POST /api/v1/positions/deposit
func (s *Service) DepositCollateral(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	id, err := parseAsset(req.Asset)
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.execute(w, r, model.KindDeposit, account, func(ctx context.Context) error {
		return s.engine.DepositCollateral(ctx, account, id, amount)
	})
}

// MintDebt handles POST /api/v1/positions/mint
func (s *Service) MintDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.execute(w, r, model.KindMint, account, func(ctx context.Context) error {
		return s.engine.MintDebt(ctx, account, amount)
	})
}

// DepositAndMint handles POST /api/v1/positions/deposit-and-mint
func (s *Service) DepositAndMint(w http.ResponseWriter, r *http.Request) {
	account, p, ok := s.decodePosition(w, r)
	if !ok {
		return
	}
	s.execute(w, r, model.KindDepositAndMint, account, func(ctx context.Context) error {
		return s.engine.DepositAndMint(ctx, account, p.asset, p.collateral, p.debt)
	})
}

// RedeemCollateral handles POST /api/v1/positions/redeem
func (s *Service) RedeemCollateral(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	id, err := parseAsset(req.Asset)
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.execute(w, r, model.KindRedeem, account, func(ctx context.Context) error {
		return s.engine.RedeemCollateral(ctx, account, id, amount)
	})
}

// BurnDebt handles POST /api/v1/positions/burn
func (s *Service) BurnDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.execute(w, r, model.KindBurn, account, func(ctx context.Context) error {
		return s.engine.BurnDebt(ctx, account, amount)
	})
}

// RedeemForBurn handles POST /api/v1/positions/redeem-for-burn
func (s *Service) RedeemForBurn(w http.ResponseWriter, r *http.Request) {
	account, p, ok := s.decodePosition(w, r)
	if !ok {
		return
	}
	s.execute(w, r, model.KindRedeemForBurn, account, func(ctx context.Context) error {
		return s.engine.RedeemForBurn(ctx, account, p.asset, p.collateral, p.debt)
	})
}

// Liquidate handles POST /api/v1/liquidations
// The liquidator covers debt_to_cover of the debtor's debt and receives the
// equivalent collateral plus the liquidation bonus.
func (s *Service) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidationRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	liquidator, err := parseAddress("liquidator", req.Liquidator)
	if err != nil {
		writeFailure(w, err)
		return
	}
	debtor, err := parseAddress("debtor", req.Debtor)
	if err != nil {
		writeFailure(w, err)
		return
	}
	id, err := parseAsset(req.Asset)
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseAmount("debt_to_cover", req.DebtToCover)
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.executeFor(w, r, model.KindLiquidate, debtor, &liquidator, func(ctx context.Context) error {
		return s.engine.Liquidate(ctx, liquidator, id, debtor, amount)
	})
}

// execute runs fn under the write lock and answers with the account's
// post-operation view.
func (s *Service) execute(w http.ResponseWriter, r *http.Request, kind model.OperationKind, account common.Address, fn func(ctx context.Context) error) {
	s.executeFor(w, r, kind, account, nil, fn)
}

// executeFor is execute with an optional liquidator whose view is returned
// alongside the account's.
func (s *Service) executeFor(w http.ResponseWriter, r *http.Request, kind model.OperationKind, account common.Address, liquidator *common.Address, fn func(ctx context.Context) error) {
	ctx := r.Context()

	// Serialize engine operations.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(ctx); err != nil {
		writeFailure(w, err)
		return
	}
	resp := OperationResponse{
		Kind:    kind,
		Account: s.accountView(ctx, account),
	}
	if liquidator != nil {
		resp.Liquidator = s.accountView(ctx, *liquidator)
	}
	writeJSON(w, http.StatusOK, resp)
}

// accountView is best effort: a feed going stale right after a committed
// operation must not turn its response into an error. Caller holds mu.
func (s *Service) accountView(ctx context.Context, account common.Address) *model.AccountInfo {
	info, err := s.engine.Account(ctx, account)
	if err != nil {
		slog.Warn("account view unavailable", "account", account.Hex(), "err", err)
		return nil
	}
	return &info
}

type positionArgs struct {
	asset      asset.ID
	collateral *uint256.Int
	debt       *uint256.Int
}

func (s *Service) decodePosition(w http.ResponseWriter, r *http.Request) (common.Address, positionArgs, bool) {
	var req PositionRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return common.Address{}, positionArgs{}, false
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeFailure(w, err)
		return common.Address{}, positionArgs{}, false
	}
	var p positionArgs
	if p.asset, err = parseAsset(req.Asset); err != nil {
		writeFailure(w, err)
		return common.Address{}, positionArgs{}, false
	}
	if p.collateral, err = parseAmount("collateral_amount", req.CollateralAmount); err != nil {
		writeFailure(w, err)
		return common.Address{}, positionArgs{}, false
	}
	if p.debt, err = parseAmount("debt_amount", req.DebtAmount); err != nil {
		writeFailure(w, err)
		return common.Address{}, positionArgs{}, false
	}
	return account, p, true
}
