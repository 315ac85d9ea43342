package api_test

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/api"
	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/engine"
	"github.com/atmx/dsc-engine/internal/model"
	"github.com/atmx/dsc-engine/internal/oracle"
	"github.com/atmx/dsc-engine/internal/store"
	"github.com/atmx/dsc-engine/internal/token"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	minter     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	router chi.Router
	store  *store.MemoryStore
	dsc    *token.Ledger
	weth   *token.Ledger
	now    time.Time
}

// newTestEnv wires an engine with WETH at $2000 and WBTC at $1000, an
// in-memory journal and the devnet endpoints behind a chi router.
func newTestEnv(t *testing.T, opts ...api.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store: store.NewMemoryStore(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	env.dsc = token.NewLedger("Decentralized Stable Coin", "DSC", engineAddr)
	env.weth = token.NewLedger("Wrapped Ether", "WETH", minter)
	wbtc := token.NewLedger("Wrapped Bitcoin", "WBTC", minter)

	wethFeed := oracle.NewStaticFeed(8, big.NewInt(2000_00000000))
	wbtcFeed := oracle.NewStaticFeed(8, big.NewInt(1000_00000000))
	for _, f := range []*oracle.StaticFeed{wethFeed, wbtcFeed} {
		f.SetClock(clock)
	}
	wethFeed.UpdateAnswer(big.NewInt(2000_00000000))
	wbtcFeed.UpdateAnswer(big.NewInt(1000_00000000))

	eng, err := engine.New(engineAddr, env.dsc,
		[]asset.ID{"WETH", "WBTC"},
		[]engine.Asset{{Token: env.weth, Feed: wethFeed}, {Token: wbtc, Feed: wbtcFeed}},
		engine.DefaultParams(),
		engine.WithJournal(env.store),
		engine.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	devnet := &api.Devnet{
		Minter:     minter,
		Collateral: map[asset.ID]*token.Ledger{"WETH": env.weth, "WBTC": wbtc},
		Debt:       env.dsc,
		Feeds:      map[asset.ID]oracle.Publisher{"WETH": wethFeed, "WBTC": wbtcFeed},
	}
	svc := api.NewService(eng, env.store, nil, append([]api.Option{api.WithDevnet(devnet)}, opts...)...)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Mount)
	env.router = r
	return env
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/api/v1"+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/v1"+path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) mustPost(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := e.post(t, path, body)
	if w.Code != http.StatusOK {
		t.Fatalf("POST %s: expected 200, got %d: %s", path, w.Code, w.Body.String())
	}
	return w
}

// fund mints collateral to account and approves the engine for it.
func (e *testEnv) fund(t *testing.T, account common.Address, id, amount string) {
	t.Helper()
	e.mustPost(t, "/devnet/faucet", api.FaucetRequest{Account: account.Hex(), Asset: id, Amount: d(amount)})
	e.mustPost(t, "/devnet/approve", api.ApproveRequest{Account: account.Hex(), Token: id})
}

func (e *testEnv) account(t *testing.T, account common.Address) model.AccountInfo {
	t.Helper()
	w := e.get(t, "/accounts/"+account.Hex())
	if w.Code != http.StatusOK {
		t.Fatalf("GET account: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var info model.AccountInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	return info
}

func decodeOp(t *testing.T, w *httptest.ResponseRecorder) api.OperationResponse {
	t.Helper()
	var resp api.OperationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Position tests ---

func TestDepositAndMint_OpensPosition(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "10")

	w := env.mustPost(t, "/positions/deposit-and-mint", api.PositionRequest{
		Account:          alice.Hex(),
		Asset:            "WETH",
		CollateralAmount: d("10"),
		DebtAmount:       d("100"),
	})

	resp := decodeOp(t, w)
	if resp.Kind != model.KindDepositAndMint {
		t.Errorf("expected kind deposit_and_mint, got %s", resp.Kind)
	}
	if resp.Account == nil {
		t.Fatal("expected account view in response")
	}
	if !resp.Account.Debt.Equal(d("100")) {
		t.Errorf("expected debt 100, got %s", resp.Account.Debt)
	}
	if !resp.Account.CollateralUSD.Equal(d("20000")) {
		t.Errorf("expected collateral value 20000, got %s", resp.Account.CollateralUSD)
	}
	// 20000 * 50% / 100 = 100
	if resp.Account.HealthFactor == nil || !resp.Account.HealthFactor.Equal(d("100")) {
		t.Errorf("expected health factor 100, got %v", resp.Account.HealthFactor)
	}
	if !resp.Account.MaxMintable.Equal(d("9900")) {
		t.Errorf("expected 9900 mintable, got %s", resp.Account.MaxMintable)
	}
	if resp.Liquidator != nil {
		t.Errorf("expected no liquidator view, got %+v", resp.Liquidator)
	}
	if got := env.dsc.BalanceOf(alice); got.Dec() != "100000000000000000000" {
		t.Errorf("expected 100 DSC minted to alice, got %s", got.Dec())
	}
}

func TestMint_BreaksHealthFactor(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "1")
	env.mustPost(t, "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("1")})

	// $2000 of collateral backs at most $1000 of debt.
	w := env.post(t, "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("1000.000000000000000001")})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	info := env.account(t, alice)
	if !info.Debt.IsZero() {
		t.Errorf("rejected mint must leave debt at zero, got %s", info.Debt)
	}
	if info.HealthFactor != nil {
		t.Errorf("expected unbounded health factor, got %s", info.HealthFactor)
	}

	env.mustPost(t, "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("1000")})
}

func TestRedeemForBurn_ClosesPosition(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "2")
	env.mustPost(t, "/positions/deposit-and-mint", api.PositionRequest{
		Account: alice.Hex(), Asset: "WETH", CollateralAmount: d("2"), DebtAmount: d("500"),
	})
	env.mustPost(t, "/devnet/approve", api.ApproveRequest{Account: alice.Hex(), Token: "dsc"})

	w := env.mustPost(t, "/positions/redeem-for-burn", api.PositionRequest{
		Account: alice.Hex(), Asset: "WETH", CollateralAmount: d("2"), DebtAmount: d("500"),
	})
	resp := decodeOp(t, w)
	if !resp.Account.Debt.IsZero() || len(resp.Account.Collateral) != 0 {
		t.Errorf("expected closed position, got %+v", resp.Account)
	}
	if got := env.weth.BalanceOf(alice); got.Dec() != "2000000000000000000" {
		t.Errorf("expected 2 WETH back in wallet, got %s", got.Dec())
	}
	if !env.dsc.TotalSupply().IsZero() {
		t.Errorf("expected DSC supply 0, got %s", env.dsc.TotalSupply().Dec())
	}
}

func TestBurn_WithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "1")
	env.mustPost(t, "/positions/deposit-and-mint", api.PositionRequest{
		Account: alice.Hex(), Asset: "WETH", CollateralAmount: d("1"), DebtAmount: d("10"),
	})

	w := env.post(t, "/positions/burn", api.DebtRequest{Account: alice.Hex(), Amount: d("10")})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for burn without DSC allowance, got %d: %s", w.Code, w.Body.String())
	}
	if info := env.account(t, alice); !info.Debt.Equal(d("10")) {
		t.Errorf("debt should be unchanged, got %s", info.Debt)
	}
}

func TestRedeem_Insufficient(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "1")
	env.mustPost(t, "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("1")})

	w := env.post(t, "/positions/redeem", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("1.5")})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	env.mustPost(t, "/positions/redeem", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("1")})
}

func TestPositions_BadInput(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "1")

	tests := []struct {
		name string
		path string
		body any
	}{
		{"zero amount", "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: decimal.Zero}},
		{"negative amount", "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("-1")}},
		{"too many decimals", "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("0.0000000000000000001")}},
		{"unsupported asset", "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "DOGE", Amount: d("1")}},
		{"malformed asset", "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "w-eth", Amount: d("1")}},
		{"bad address", "/positions/deposit", api.CollateralRequest{Account: "alice", Asset: "WETH", Amount: d("1")}},
		{"zero address", "/positions/mint", api.DebtRequest{Account: common.Address{}.Hex(), Amount: d("1")}},
		{"engine address", "/positions/deposit", api.CollateralRequest{Account: engineAddr.Hex(), Asset: "WETH", Amount: d("1")}},
		{"zero debt in pair", "/positions/deposit-and-mint", api.PositionRequest{Account: alice.Hex(), Asset: "WETH", CollateralAmount: d("1"), DebtAmount: decimal.Zero}},
		{"invalid body", "/positions/burn", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post(t, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	info := env.account(t, alice)
	if len(info.Collateral) != 0 || !info.Debt.IsZero() {
		t.Errorf("rejected requests must not change state, got %+v", info)
	}
}

// --- Liquidation tests ---

func TestLiquidate_AfterPriceDrop(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "10")
	env.fund(t, bob, "WETH", "20")

	// Alice sits exactly at the minimum: $20000 * 50% = $10000 of debt.
	env.mustPost(t, "/positions/deposit-and-mint", api.PositionRequest{
		Account: alice.Hex(), Asset: "WETH", CollateralAmount: d("10"), DebtAmount: d("10000"),
	})
	env.mustPost(t, "/positions/deposit-and-mint", api.PositionRequest{
		Account: bob.Hex(), Asset: "WETH", CollateralAmount: d("20"), DebtAmount: d("10000"),
	})
	env.mustPost(t, "/devnet/approve", api.ApproveRequest{Account: bob.Hex(), Token: "DSC"})

	// Healthy debtors cannot be liquidated.
	w := env.post(t, "/liquidations", api.LiquidationRequest{
		Liquidator: bob.Hex(), Debtor: alice.Hex(), Asset: "WETH", DebtToCover: d("10000"),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for healthy debtor, got %d: %s", w.Code, w.Body.String())
	}

	env.mustPost(t, "/devnet/prices", api.SetPriceRequest{Asset: "WETH", Price: d("1800")})
	if info := env.account(t, alice); !info.Liquidatable {
		t.Fatalf("alice should be liquidatable at $1800, got %+v", info)
	}

	w = env.mustPost(t, "/liquidations", api.LiquidationRequest{
		Liquidator: bob.Hex(), Debtor: alice.Hex(), Asset: "WETH", DebtToCover: d("10000"),
	})
	resp := decodeOp(t, w)
	if resp.Kind != model.KindLiquidate {
		t.Errorf("expected kind liquidate, got %s", resp.Kind)
	}
	if resp.Account == nil || !resp.Account.Debt.IsZero() {
		t.Fatalf("debtor should be debt-free, got %+v", resp.Account)
	}
	// 10000/1800 = 5.555555555555555555 WETH, plus 10% = 6.111111111111111110.
	if len(resp.Account.Collateral) != 1 || !resp.Account.Collateral[0].Amount.Equal(d("3.88888888888888889")) {
		t.Errorf("expected 3.88888888888888889 WETH left, got %+v", resp.Account.Collateral)
	}
	if resp.Liquidator == nil || !resp.Liquidator.Debt.Equal(d("10000")) {
		t.Errorf("liquidator debt should be unchanged, got %+v", resp.Liquidator)
	}
	// 20 WETH at $1800 backs 18000, bob owes 10000.
	if resp.Liquidator != nil && !resp.Liquidator.MaxMintable.Equal(d("8000")) {
		t.Errorf("expected liquidator to have 8000 mintable, got %s", resp.Liquidator.MaxMintable)
	}
	if got := env.weth.BalanceOf(bob); got.Dec() != "6111111111111111110" {
		t.Errorf("expected liquidator to receive 6.11111111111111111 WETH, got %s", got.Dec())
	}
}

// --- View tests ---

func TestParams(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/params")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.ParamsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.LiquidationThreshold != 50 || resp.LiquidationBonus != 10 || resp.LiquidationPrecision != 100 {
		t.Errorf("unexpected params: %+v", resp)
	}
	if !resp.MinHealthFactor.Equal(d("1")) {
		t.Errorf("expected min health factor 1, got %s", resp.MinHealthFactor)
	}
	if resp.Precision != "1000000000000000000" {
		t.Errorf("expected precision 1e18, got %s", resp.Precision)
	}
	if resp.OracleTimeout != "3h0m0s" {
		t.Errorf("expected oracle timeout 3h, got %s", resp.OracleTimeout)
	}
	if resp.DebtToken != "DSC" {
		t.Errorf("expected debt token DSC, got %s", resp.DebtToken)
	}
}

func TestCalculateHealthFactor(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		query     string
		want      string
		unbounded bool
		safe      bool
	}{
		{"debt=100&collateral_usd=1000", "5", false, true},
		{"debt=1000&collateral_usd=1000", "0.5", false, false},
		{"debt=0&collateral_usd=1000", "", true, true},
	}
	for _, tt := range tests {
		w := env.get(t, "/health-factor?"+tt.query)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", tt.query, w.Code, w.Body.String())
		}
		var resp api.HealthFactorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Unbounded != tt.unbounded || resp.Safe != tt.safe {
			t.Errorf("%s: got %+v", tt.query, resp)
		}
		if !tt.unbounded && (resp.HealthFactor == nil || !resp.HealthFactor.Equal(d(tt.want))) {
			t.Errorf("%s: expected %s, got %v", tt.query, tt.want, resp.HealthFactor)
		}
	}

	if w := env.get(t, "/health-factor?debt=abc&collateral_usd=1"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed debt, got %d", w.Code)
	}
}

func TestConversions(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/assets/WETH/usd-value?amount=15")
	var usd api.ConversionResponse
	json.Unmarshal(w.Body.Bytes(), &usd)
	if w.Code != http.StatusOK || !usd.USDValue.Equal(d("30000")) {
		t.Errorf("expected 15 WETH = $30000, got %d %s", w.Code, w.Body.String())
	}

	w = env.get(t, "/assets/wbtc/token-amount?usd=100")
	var amt api.ConversionResponse
	json.Unmarshal(w.Body.Bytes(), &amt)
	if w.Code != http.StatusOK || !amt.TokenAmount.Equal(d("0.1")) {
		t.Errorf("expected $100 = 0.1 WBTC, got %d %s", w.Code, w.Body.String())
	}

	if w := env.get(t, "/assets/DOGE/price"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported asset, got %d", w.Code)
	}
}

func TestListAssets(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/assets")
	var assets []model.AssetInfo
	json.Unmarshal(w.Body.Bytes(), &assets)
	if len(assets) != 2 || assets[0].ID != "WETH" || assets[1].ID != "WBTC" {
		t.Fatalf("expected WETH, WBTC in registration order, got %+v", assets)
	}
	if !assets[0].PriceUSD.Equal(d("2000")) || assets[0].FeedDecimals != 8 {
		t.Errorf("unexpected WETH info: %+v", assets[0])
	}
}

func TestStalePrice(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "1")
	env.mustPost(t, "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("1")})

	env.now = env.now.Add(3*time.Hour + time.Second)

	if w := env.get(t, "/accounts/"+alice.Hex()); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for stale price, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.post(t, "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("1")}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for mint on stale price, got %d: %s", w.Code, w.Body.String())
	}

	// A fresh round restores service.
	env.mustPost(t, "/devnet/prices", api.SetPriceRequest{Asset: "WETH", Price: d("2000")})
	env.mustPost(t, "/devnet/prices", api.SetPriceRequest{Asset: "WBTC", Price: d("1000")})
	env.mustPost(t, "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("1")})
}

// --- Journal tests ---

func TestHistoryAndOperations(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, alice, "WETH", "5")
	env.mustPost(t, "/positions/deposit", api.CollateralRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("5")})
	env.mustPost(t, "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("250")})
	env.post(t, "/positions/mint", api.DebtRequest{Account: alice.Hex(), Amount: d("100000")}) // rejected, not journaled

	w := env.get(t, "/accounts/"+alice.Hex()+"/history")
	var history []model.Operation
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 2 {
		t.Fatalf("expected 2 journaled operations, got %d: %s", len(history), w.Body.String())
	}
	if history[0].Kind != model.KindDeposit || history[1].Kind != model.KindMint {
		t.Errorf("expected deposit then mint, got %s, %s", history[0].Kind, history[1].Kind)
	}

	w = env.get(t, "/accounts/"+alice.Hex()+"/books")
	var rows []model.BookRow
	json.Unmarshal(w.Body.Bytes(), &rows)
	if len(rows) != 2 {
		t.Fatalf("expected collateral and debt rows, got %+v", rows)
	}

	w = env.get(t, "/operations?limit=1")
	var latest []model.Operation
	json.Unmarshal(w.Body.Bytes(), &latest)
	if len(latest) != 1 || latest[0].Kind != model.KindMint {
		t.Fatalf("expected the mint as newest operation, got %s", w.Body.String())
	}

	w = env.get(t, "/operations/"+latest[0].ID)
	var op model.Operation
	json.Unmarshal(w.Body.Bytes(), &op)
	if w.Code != http.StatusOK || !op.DebtAmount.Equal(d("250")) {
		t.Errorf("expected mint of 250, got %d %s", w.Code, w.Body.String())
	}

	if w := env.get(t, "/operations/does-not-exist"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := env.get(t, "/operations?limit=x"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

// --- Devnet and middleware tests ---

func TestDevnet_Faucet(t *testing.T) {
	env := newTestEnv(t)

	w := env.mustPost(t, "/devnet/faucet", api.FaucetRequest{Account: alice.Hex(), Asset: "WETH", Amount: d("3")})
	var bal api.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &bal)
	if !bal.Balance.Equal(d("3")) || bal.Token != "WETH" {
		t.Errorf("unexpected faucet response: %+v", bal)
	}

	limited := d("2")
	w = env.mustPost(t, "/devnet/approve", api.ApproveRequest{Account: alice.Hex(), Token: "WETH", Amount: &limited})
	json.Unmarshal(w.Body.Bytes(), &bal)
	if !bal.Allowance.Equal(limited) || bal.Unlimited {
		t.Errorf("expected allowance 2, got %+v", bal)
	}

	if w := env.post(t, "/devnet/faucet", api.FaucetRequest{Account: alice.Hex(), Asset: "DOGE", Amount: d("1")}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown faucet asset, got %d", w.Code)
	}
	if w := env.post(t, "/devnet/faucet", api.FaucetRequest{Account: alice.Hex(), Asset: "WETH", Amount: decimal.Zero}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero faucet amount, got %d", w.Code)
	}
}

func TestDevnet_NotMounted(t *testing.T) {
	svc := api.NewService(nil, nil, nil)
	r := chi.NewRouter()
	r.Route("/api/v1", svc.Mount)

	req := httptest.NewRequest("POST", "/api/v1/devnet/faucet", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("devnet routes must not exist without devnet, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, api.WithRateLimit(0.001, 1))

	req := api.DebtRequest{Account: alice.Hex(), Amount: d("1")}
	first := env.post(t, "/positions/mint", req)
	if first.Code == http.StatusTooManyRequests {
		t.Fatalf("first request should pass the limiter")
	}
	if w := env.post(t, "/positions/mint", req); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	// Views are not limited.
	if w := env.get(t, "/params"); w.Code != http.StatusOK {
		t.Errorf("expected 200 for view, got %d", w.Code)
	}
}
