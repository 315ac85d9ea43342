// Package api provides the HTTP handlers for opening, adjusting and
// liquidating positions, and for querying accounts, assets and the operation
// journal.
//
// Amounts cross the wire as decimal strings ("10.5") and are converted to
// 18-decimal fixed point at the edge. Nothing here touches float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/engine"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/metrics"
	"github.com/atmx/dsc-engine/internal/oracle"
	"github.com/atmx/dsc-engine/internal/store"
)

// ErrBadRequest marks request bodies and parameters that failed to parse.
var ErrBadRequest = errors.New("api: invalid request")

// Service exposes an engine over HTTP. Mutating requests hold the write lock
// for the whole operation; views share the read lock. For horizontal scaling
// the engine would need a distributed owner, which this single instance does
// not attempt.
type Service struct {
	engine  *engine.Engine
	store   store.Store
	hub     *WSHub // optional hub broadcasting committed operations
	devnet  *Devnet
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// Option configures a Service.
type Option func(*Service)

// WithRateLimit caps mutating requests at rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithDevnet enables the faucet, approve and price endpoints.
func WithDevnet(d *Devnet) Option { return func(s *Service) { s.devnet = d } }

// NewService creates a new API service. st may be nil when no journal is
// configured; hub may be nil if WebSocket broadcasting is not needed.
func NewService(eng *engine.Engine, st store.Store, hub *WSHub, opts ...Option) *Service {
	s := &Service{engine: eng, store: st, hub: hub}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount registers every endpoint on r, relative to the API prefix.
func (s *Service) Mount(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.RateLimit)
		r.Post("/positions/deposit", s.DepositCollateral)
		r.Post("/positions/mint", s.MintDebt)
		r.Post("/positions/deposit-and-mint", s.DepositAndMint)
		r.Post("/positions/redeem", s.RedeemCollateral)
		r.Post("/positions/burn", s.BurnDebt)
		r.Post("/positions/redeem-for-burn", s.RedeemForBurn)
		r.Post("/liquidations", s.Liquidate)

		if s.devnet != nil {
			r.Post("/devnet/faucet", s.Faucet)
			r.Post("/devnet/approve", s.Approve)
			r.Post("/devnet/prices", s.SetPrice)
		}
	})

	r.Get("/params", s.GetParams)
	r.Get("/health-factor", s.CalculateHealthFactor)

	r.Get("/accounts/{account}", s.GetAccount)
	r.Get("/accounts/{account}/health-factor", s.GetHealthFactor)
	r.Get("/accounts/{account}/history", s.GetAccountHistory)
	r.Get("/accounts/{account}/books", s.GetAccountBooks)

	r.Get("/assets", s.ListAssets)
	r.Get("/assets/{asset}/price", s.GetPrice)
	r.Get("/assets/{asset}/usd-value", s.GetUSDValue)
	r.Get("/assets/{asset}/token-amount", s.GetTokenAmount)

	r.Get("/operations", s.ListOperations)
	r.Get("/operations/{operationID}", s.GetOperation)
}

// RateLimit rejects requests beyond the configured rate with 429.
func (s *Service) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			metrics.RateLimited.Inc()
			writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps an engine, oracle or store error onto an HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrUnsupportedAsset),
		errors.Is(err, engine.ErrZeroAddress),
		errors.Is(err, engine.ErrEngineAccount),
		errors.Is(err, asset.ErrInvalidID),
		errors.Is(err, fixedpoint.ErrInvalidAmount),
		errors.Is(err, fixedpoint.ErrTooManyDecimals):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrNilSource):
		return http.StatusServiceUnavailable

	case errors.Is(err, engine.ErrBreaksHealthFactor),
		errors.Is(err, engine.ErrHealthFactorOK),
		errors.Is(err, engine.ErrHealthFactorNotImproved),
		errors.Is(err, engine.ErrInsufficientCollateral),
		errors.Is(err, engine.ErrInsufficientDebt),
		errors.Is(err, engine.ErrTransferFailed),
		errors.Is(err, engine.ErrMintFailed),
		errors.Is(err, engine.ErrReentrantCall),
		errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrUnderflow):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: body: %v", ErrBadRequest, err)
	}
	return nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s must be a hex address", ErrBadRequest, field)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field string, d decimal.Decimal) (*uint256.Int, error) {
	v, err := fixedpoint.FromDecimal(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadRequest, field, err)
	}
	return v, nil
}

func parseAmountString(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrBadRequest, field)
	}
	v, err := fixedpoint.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadRequest, field, err)
	}
	return v, nil
}

func parseAsset(s string) (asset.ID, error) {
	id, err := asset.ParseID(s)
	if err != nil {
		return "", fmt.Errorf("%w: asset: %w", ErrBadRequest, err)
	}
	return id, nil
}
