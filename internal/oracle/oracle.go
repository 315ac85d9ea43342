// Package oracle guards every price read used by the engine. A raw Source
// reports the latest answer and its timestamp; the Guard refuses answers that
// are older than the configured maximum age or not strictly positive.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
)

// DefaultMaxAge is the staleness threshold applied when none is configured.
const DefaultMaxAge = 3 * time.Hour

var (
	ErrStalePrice   = errors.New("oracle: stale price")
	ErrInvalidPrice = errors.New("oracle: price must be positive")
	ErrNilSource    = errors.New("oracle: price source not configured")
)

// Quote is a raw answer as reported by a price source. Answer is signed, like
// an aggregator round answer, so the guard can reject non-positive values
// instead of the source silently clamping them.
type Quote struct {
	Answer    *big.Int
	UpdatedAt time.Time
}

// Source is an external price feed for one asset, quoted in USD.
type Source interface {
	LatestQuote(ctx context.Context) (Quote, error)
	// Decimals is the number of fractional digits in Answer.
	Decimals() uint8
}

// Publisher is implemented by sources whose answer can be pushed locally
// (devnet and tests).
type Publisher interface {
	Publish(ctx context.Context, answer *big.Int) error
}

// Price is a quote that passed the guard.
type Price struct {
	Value     *uint256.Int
	Decimals  uint8
	UpdatedAt time.Time
	Age       time.Duration
}

// Normalized returns the price lifted to fixedpoint.Decimals, i.e. USD per
// whole unit with 18 fractional digits.
func (p Price) Normalized() (*uint256.Int, error) {
	scale, err := fixedpoint.FeedScale(p.Decimals)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Mul(p.Value, scale)
}

// Guard validates quotes against a staleness threshold.
type Guard struct {
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the clock used to compute quote age.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard returns a guard rejecting quotes older than maxAge. A non-positive
// maxAge selects DefaultMaxAge.
func NewGuard(maxAge time.Duration, opts ...Option) *Guard {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	g := &Guard{maxAge: maxAge, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// MaxAge returns the configured staleness threshold.
func (g *Guard) MaxAge() time.Duration { return g.maxAge }

// Latest reads src and returns its price, or ErrStalePrice / ErrInvalidPrice.
// Nothing is cached: every call reads the live source.
func (g *Guard) Latest(ctx context.Context, src Source) (Price, error) {
	if src == nil {
		return Price{}, ErrNilSource
	}
	q, err := src.LatestQuote(ctx)
	if err != nil {
		return Price{}, fmt.Errorf("oracle: read quote: %w", err)
	}
	if q.Answer == nil || q.Answer.Sign() <= 0 {
		return Price{}, fmt.Errorf("%w: got %v", ErrInvalidPrice, q.Answer)
	}
	if q.UpdatedAt.IsZero() {
		return Price{}, fmt.Errorf("%w: quote has no timestamp", ErrStalePrice)
	}

	age := ageOf(q.UpdatedAt, g.now())
	if age > g.maxAge {
		return Price{}, fmt.Errorf("%w: age %s exceeds %s", ErrStalePrice, age, g.maxAge)
	}

	value, overflow := uint256.FromBig(q.Answer)
	if overflow {
		return Price{}, fmt.Errorf("%w: answer overflows 256 bits", ErrInvalidPrice)
	}
	return Price{
		Value:     value,
		Decimals:  src.Decimals(),
		UpdatedAt: q.UpdatedAt,
		Age:       age,
	}, nil
}

// ageOf treats observations from the future as fresh.
func ageOf(observed, now time.Time) time.Duration {
	if observed.After(now) {
		return 0
	}
	return now.Sub(observed)
}
