package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/model"
)

// HealthFactorResponse reports a health factor. HealthFactor is nil when the
// position carries no debt.
type HealthFactorResponse struct {
	Account      string           `json:"account,omitempty"`
	HealthFactor *decimal.Decimal `json:"health_factor"`
	Unbounded    bool             `json:"unbounded"`
	Safe         bool             `json:"safe"`
}

// ParamsResponse is the JSON body returned from GET /params.
type ParamsResponse struct {
	LiquidationThreshold uint64          `json:"liquidation_threshold"`
	LiquidationBonus     uint64          `json:"liquidation_bonus"`
	LiquidationPrecision uint64          `json:"liquidation_precision"`
	MinHealthFactor      decimal.Decimal `json:"min_health_factor"`
	Precision            string          `json:"precision"`
	OracleTimeout        string          `json:"oracle_timeout"`
	TotalDebt            decimal.Decimal `json:"total_debt"`
	DebtToken            string          `json:"debt_token"`
	Engine               string          `json:"engine"`
}

// PriceResponse is a guarded price of one asset.
type PriceResponse struct {
	Asset     string          `json:"asset"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	Decimals  uint8           `json:"decimals"`
	UpdatedAt time.Time       `json:"updated_at"`
	Age       string          `json:"age"`
}

// ConversionResponse is returned by the USD/token conversion endpoints.
type ConversionResponse struct {
	Asset       string          `json:"asset"`
	TokenAmount decimal.Decimal `json:"token_amount"`
	USDValue    decimal.Decimal `json:"usd_value"`
}

// GetParams handles GET /api/v1/params
func (s *Service) GetParams(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.engine.Params()
	resp := ParamsResponse{
		LiquidationThreshold: p.LiquidationThreshold,
		LiquidationBonus:     p.LiquidationBonus,
		LiquidationPrecision: p.LiquidationPrecision,
		MinHealthFactor:      fixedpoint.ToDecimal(p.MinHealthFactor),
		Precision:            p.Precision().Dec(),
		OracleTimeout:        p.OracleTimeout.String(),
		TotalDebt:            fixedpoint.ToDecimal(s.engine.TotalDebt()),
		Engine:               s.engine.Address().Hex(),
	}
	if t, ok := s.engine.DebtToken().(interface{ Symbol() string }); ok {
		resp.DebtToken = t.Symbol()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAccount handles GET /api/v1/accounts/{account}
// Returns debt, collateral per asset, total collateral value and health.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.engine.Account(r.Context(), account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if info.Collateral == nil {
		info.Collateral = []model.CollateralPosition{}
	}
	writeJSON(w, http.StatusOK, info)
}

// GetHealthFactor handles GET /api/v1/accounts/{account}/health-factor
func (s *Service) GetHealthFactor(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hf, err := s.engine.HealthFactor(r.Context(), account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := s.healthFactorResponse(hf)
	resp.Account = account.Hex()
	writeJSON(w, http.StatusOK, resp)
}

// CalculateHealthFactor handles GET /api/v1/health-factor?debt=&collateral_usd=
// It evaluates a hypothetical position without touching any account.
func (s *Service) CalculateHealthFactor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	debt, err := parseAmountString("debt", q.Get("debt"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	collateral, err := parseAmountString("collateral_usd", q.Get("collateral_usd"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hf, err := s.engine.CalculateHealthFactor(debt, collateral)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.healthFactorResponse(hf))
}

// ListAssets handles GET /api/v1/assets
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.engine.Assets(r.Context()))
}

// GetPrice handles GET /api/v1/assets/{asset}/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.engine.Price(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{
		Asset:     string(id),
		PriceUSD:  decimal.NewFromBigInt(p.Value.ToBig(), -int32(p.Decimals)),
		Decimals:  p.Decimals,
		UpdatedAt: p.UpdatedAt,
		Age:       p.Age.String(),
	})
}

// GetUSDValue handles GET /api/v1/assets/{asset}/usd-value?amount=
func (s *Service) GetUSDValue(w http.ResponseWriter, r *http.Request) {
	id, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	amount, err := parseAmountString("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	usd, err := s.engine.USDValue(r.Context(), id, amount)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversionResponse{
		Asset:       string(id),
		TokenAmount: fixedpoint.ToDecimal(amount),
		USDValue:    fixedpoint.ToDecimal(usd),
	})
}

// GetTokenAmount handles GET /api/v1/assets/{asset}/token-amount?usd=
func (s *Service) GetTokenAmount(w http.ResponseWriter, r *http.Request) {
	id, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	usd, err := parseAmountString("usd", r.URL.Query().Get("usd"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	amount, err := s.engine.TokenAmountFromUSD(r.Context(), id, usd)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversionResponse{
		Asset:       string(id),
		TokenAmount: fixedpoint.ToDecimal(amount),
		USDValue:    fixedpoint.ToDecimal(usd),
	})
}

// --- Journal queries ---

// GetAccountHistory handles GET /api/v1/accounts/{account}/history
// Returns every operation the account took part in, oldest first.
func (s *Service) GetAccountHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	ops, err := s.store.GetOperationsByAccount(r.Context(), account.Hex())
	if err != nil {
		writeError(w, "failed to get account history", http.StatusInternalServerError)
		return
	}
	if ops == nil {
		ops = []model.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// GetAccountBooks handles GET /api/v1/accounts/{account}/books
// Returns the journaled balance of each of the account's book entries.
func (s *Service) GetAccountBooks(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	rows, err := s.store.GetAccountBooks(r.Context(), account.Hex())
	if err != nil {
		writeError(w, "failed to get account books", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []model.BookRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListOperations handles GET /api/v1/operations?limit=
func (s *Service) ListOperations(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ops, err := s.store.ListOperations(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list operations", http.StatusInternalServerError)
		return
	}
	if ops == nil {
		ops = []model.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// GetOperation handles GET /api/v1/operations/{operationID}
func (s *Service) GetOperation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	op, err := s.store.GetOperation(r.Context(), chi.URLParam(r, "operationID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Service) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, "operation journal not configured", http.StatusNotImplemented)
		return false
	}
	return true
}

func (s *Service) healthFactorResponse(hf *uint256.Int) HealthFactorResponse {
	resp := HealthFactorResponse{
		Unbounded: fixedpoint.IsMax(hf),
		Safe:      !hf.Lt(s.engine.Params().MinHealthFactor),
	}
	if !resp.Unbounded {
		d := fixedpoint.ToDecimal(hf)
		resp.HealthFactor = &d
	}
	return resp
}
