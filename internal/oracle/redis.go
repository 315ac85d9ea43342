package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisFeed.
type RedisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisFeed reads a quote that an external publisher keeps in a Redis hash:
//
//	HSET oracle:WETH price 200000000000 updated_at 1718000000
//
// price is the raw integer answer, updated_at is unix seconds.
type RedisFeed struct {
	rdb      RedisClient
	key      string
	decimals uint8
	now      func() time.Time
}

// NewRedisFeed creates a feed reading the hash at key.
func NewRedisFeed(rdb RedisClient, key string, decimals uint8) *RedisFeed {
	return &RedisFeed{rdb: rdb, key: key, decimals: decimals, now: time.Now}
}

// FeedKey returns the conventional hash key for an asset symbol.
func FeedKey(symbol string) string { return fmt.Sprintf("oracle:%s", symbol) }

// LatestQuote implements Source.
func (f *RedisFeed) LatestQuote(ctx context.Context) (Quote, error) {
	fields, err := f.rdb.HGetAll(ctx, f.key).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("redis feed %s: %w", f.key, err)
	}
	if len(fields) == 0 {
		return Quote{}, fmt.Errorf("redis feed %s: no quote published", f.key)
	}

	answer, ok := new(big.Int).SetString(fields["price"], 10)
	if !ok {
		return Quote{}, fmt.Errorf("redis feed %s: malformed price %q", f.key, fields["price"])
	}
	secs, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("redis feed %s: malformed updated_at %q", f.key, fields["updated_at"])
	}
	return Quote{Answer: answer, UpdatedAt: time.Unix(secs, 0).UTC()}, nil
}

// Decimals implements Source.
func (f *RedisFeed) Decimals() uint8 { return f.decimals }

// Publish implements Publisher by writing answer timestamped now.
func (f *RedisFeed) Publish(ctx context.Context, answer *big.Int) error {
	if answer == nil {
		return ErrInvalidPrice
	}
	return f.rdb.HSet(ctx, f.key,
		"price", answer.String(),
		"updated_at", strconv.FormatInt(f.now().Unix(), 10),
	).Err()
}
