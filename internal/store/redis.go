package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/dsc-engine/internal/model"
)

// RedisCache is the subset of *redis.Client used by CachedStore.
type RedisCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     RedisCache
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb RedisCache, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) ApplyOperation(ctx context.Context, op *model.Operation) error {
	if err := s.primary.ApplyOperation(ctx, op); err != nil {
		return err
	}

	// Invalidate every account the operation touched; the next read
	// re-populates from the primary.
	seen := map[string]bool{}
	var keys []string
	add := func(account string) {
		if account == "" || seen[account] {
			return
		}
		seen[account] = true
		keys = append(keys, booksKey(account), historyKey(account))
	}
	add(op.Account)
	add(op.Liquidator)
	for _, r := range op.Rows {
		add(r.Account)
	}
	s.rdb.Del(ctx, keys...)
	s.cacheJSON(ctx, operationKey(op.ID), op)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	var op model.Operation
	if s.cached(ctx, operationKey(id), &op) {
		return &op, nil
	}

	fetched, err := s.primary.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, operationKey(id), fetched)
	return fetched, nil
}

func (s *CachedStore) GetAccountBooks(ctx context.Context, account string) ([]model.BookRow, error) {
	var rows []model.BookRow
	if s.cached(ctx, booksKey(account), &rows) {
		return rows, nil
	}

	rows, err := s.primary.GetAccountBooks(ctx, account)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, booksKey(account), rows)
	return rows, nil
}

func (s *CachedStore) GetOperationsByAccount(ctx context.Context, account string) ([]model.Operation, error) {
	var ops []model.Operation
	if s.cached(ctx, historyKey(account), &ops) {
		return ops, nil
	}

	ops, err := s.primary.GetOperationsByAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, historyKey(account), ops)
	return ops, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOperations(ctx context.Context, limit int) ([]model.Operation, error) {
	return s.primary.ListOperations(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cached(ctx context.Context, key string, dst interface{}) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func operationKey(id string) string    { return fmt.Sprintf("operation:%s", id) }
func booksKey(account string) string   { return fmt.Sprintf("books:%s", account) }
func historyKey(account string) string { return fmt.Sprintf("history:%s", account) }
