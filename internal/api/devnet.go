package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/oracle"
	"github.com/atmx/dsc-engine/internal/token"
)

// DebtSymbol selects the debt token in approve requests.
const DebtSymbol = "DSC"

// Devnet holds the local collaborators behind the devnet endpoints: mintable
// collateral tokens, the debt token and publishable price feeds.
type Devnet struct {
	// Minter owns every collateral ledger.
	Minter     common.Address
	Collateral map[asset.ID]*token.Ledger
	Debt       *token.Ledger
	Feeds      map[asset.ID]oracle.Publisher
}

// FaucetRequest is the JSON body for POST /devnet/faucet.
type FaucetRequest struct {
	Account string          `json:"account"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

// ApproveRequest is the JSON body for POST /devnet/approve. Token is a
// collateral symbol or DSC; a missing amount approves without limit.
type ApproveRequest struct {
	Account string           `json:"account"`
	Token   string           `json:"token"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
}

// SetPriceRequest is the JSON body for POST /devnet/prices.
type SetPriceRequest struct {
	Asset string          `json:"asset"`
	Price decimal.Decimal `json:"price"` // USD per whole token
}

// BalanceResponse reports a ledger balance after a devnet action.
type BalanceResponse struct {
	Account   string          `json:"account"`
	Token     string          `json:"token"`
	Balance   decimal.Decimal `json:"balance"`
	Allowance decimal.Decimal `json:"allowance"`
	Unlimited bool            `json:"unlimited"`
}

// Faucet handles POST /api/v1/devnet/faucet
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
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
	ledger, ok := s.devnet.Collateral[id]
	if !ok {
		writeError(w, "no devnet token for asset "+string(id), http.StatusNotFound)
		return
	}

	// Ledgers are engine collaborators; hold the write lock so a mint never
	// lands inside an open operation snapshot.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ledger.Mint(s.devnet.Minter, account, amount); err != nil {
		writeError(w, err.Error(), devnetStatus(err))
		return
	}
	slog.Info("devnet faucet", "account", account.Hex(), "asset", string(id), "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, s.balance(ledger, account, string(id)))
}

// Approve handles POST /api/v1/devnet/approve
// It stands in for the account signing an approve on the token: the engine
// may then pull collateral (deposit) or debt tokens (burn, liquidation).
func (s *Service) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	ledger, symbol, err := s.devnetLedger(req.Token)
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount := fixedpoint.Max()
	if req.Amount != nil {
		if amount, err = parseAmount("amount", *req.Amount); err != nil {
			writeFailure(w, err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ledger.Approve(account, s.engine.Address(), amount); err != nil {
		writeError(w, err.Error(), devnetStatus(err))
		return
	}
	slog.Info("devnet approve", "account", account.Hex(), "token", symbol, "amount", fixedpoint.Format(amount))
	writeJSON(w, http.StatusOK, s.balance(ledger, account, symbol))
}

// SetPrice handles POST /api/v1/devnet/prices
// The price is converted to the feed's own decimals before publishing.
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := parseAsset(req.Asset)
	if err != nil {
		writeFailure(w, err)
		return
	}
	feed, ok := s.devnet.Feeds[id]
	if !ok {
		writeError(w, "no publishable feed for asset "+string(id), http.StatusNotFound)
		return
	}
	src, err := s.engine.PriceSource(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	answer := req.Price.Shift(int32(src.Decimals()))
	if !answer.Equal(answer.Truncate(0)) {
		writeError(w, fmt.Sprintf("price has more than %d fractional digits", src.Decimals()), http.StatusBadRequest)
		return
	}

	// Answers are signed so non-positive prices can be published and then
	// rejected by the guard, which is how a broken feed is simulated.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := feed.Publish(r.Context(), answer.BigInt()); err != nil {
		writeError(w, "failed to publish price: "+err.Error(), http.StatusBadGateway)
		return
	}
	slog.Info("devnet price published", "asset", string(id), "price", req.Price.String())

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:      EventPriceUpdated,
			Asset:     string(id),
			Price:     req.Price.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": string(id), "price": req.Price.String()})
}

func (s *Service) devnetLedger(symbol string) (*token.Ledger, string, error) {
	if strings.EqualFold(strings.TrimSpace(symbol), DebtSymbol) {
		if s.devnet.Debt == nil {
			return nil, "", fmt.Errorf("%w: debt token not available", ErrBadRequest)
		}
		return s.devnet.Debt, DebtSymbol, nil
	}
	id, err := parseAsset(symbol)
	if err != nil {
		return nil, "", err
	}
	ledger, ok := s.devnet.Collateral[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: no devnet token for asset %s", ErrBadRequest, id)
	}
	return ledger, string(id), nil
}

func (s *Service) balance(l *token.Ledger, account common.Address, symbol string) BalanceResponse {
	allowance := l.Allowance(account, s.engine.Address())
	return BalanceResponse{
		Account:   account.Hex(),
		Token:     symbol,
		Balance:   fixedpoint.ToDecimal(l.BalanceOf(account)),
		Allowance: fixedpoint.ToDecimal(allowance),
		Unlimited: fixedpoint.IsMax(allowance),
	}
}

func devnetStatus(err error) int {
	switch {
	case errors.Is(err, token.ErrZeroAddress), errors.Is(err, token.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrNotOwner):
		return http.StatusForbidden
	}
	return http.StatusConflict
}
