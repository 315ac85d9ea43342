package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// StaticFeed is an in-process Source whose answer is set explicitly. It backs
// devnet assets and tests, standing in for an on-chain aggregator.
type StaticFeed struct {
	mu        sync.RWMutex
	decimals  uint8
	answer    *big.Int
	updatedAt time.Time
	now       func() time.Time
}

// NewStaticFeed creates a feed reporting answer, timestamped now.
func NewStaticFeed(decimals uint8, answer *big.Int) *StaticFeed {
	f := &StaticFeed{decimals: decimals, now: time.Now}
	f.UpdateAnswer(answer)
	return f
}

// SetClock replaces the clock used to timestamp UpdateAnswer.
func (f *StaticFeed) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if now != nil {
		f.now = now
	}
}

// UpdateAnswer sets a new answer timestamped with the feed clock.
func (f *StaticFeed) UpdateAnswer(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = cloneBig(answer)
	f.updatedAt = f.now()
}

// SetQuote sets both answer and timestamp, e.g. to simulate a stale round.
func (f *StaticFeed) SetQuote(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = cloneBig(answer)
	f.updatedAt = updatedAt
}

// Publish implements Publisher.
func (f *StaticFeed) Publish(_ context.Context, answer *big.Int) error {
	f.UpdateAnswer(answer)
	return nil
}

// LatestQuote implements Source.
func (f *StaticFeed) LatestQuote(_ context.Context) (Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Quote{Answer: cloneBig(f.answer), UpdatedAt: f.updatedAt}, nil
}

// Decimals implements Source.
func (f *StaticFeed) Decimals() uint8 { return f.decimals }

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
