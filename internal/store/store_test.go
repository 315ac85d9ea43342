package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/model"
)

const (
	alice = "0x000000000000000000000000000000000000A11C"
	bob   = "0x0000000000000000000000000000000000000B0B"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func op(id string, kind model.OperationKind, account string, rows ...model.BookRow) *model.Operation {
	o := &model.Operation{
		ID:        id,
		Kind:      kind,
		Account:   account,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, r := range rows {
		r.OperationID = id
		o.Rows = append(o.Rows, r)
	}
	return o
}

func collateralRow(account, asset, balance string) model.BookRow {
	return model.BookRow{Account: account, Book: model.BookCollateral, Asset: asset, Balance: d(balance)}
}

func debtRow(account, balance string) model.BookRow {
	return model.BookRow{Account: account, Book: model.BookDebt, Balance: d(balance)}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	ops := []*model.Operation{
		op("op-1", model.KindDepositAndMint, alice, collateralRow(alice, "WETH", "10"), debtRow(alice, "5000")),
		op("op-2", model.KindDeposit, bob, collateralRow(bob, "WBTC", "3")),
		op("op-3", model.KindBurn, alice, debtRow(alice, "4000")),
	}
	liq := op("op-4", model.KindLiquidate, alice, collateralRow(alice, "WETH", "7.8"), debtRow(alice, "2200"))
	liq.Liquidator = bob
	ops = append(ops, liq)

	for _, o := range ops {
		if err := s.ApplyOperation(ctx, o); err != nil {
			t.Fatalf("ApplyOperation(%s): %v", o.ID, err)
		}
	}
}

func TestMemoryStore_AccountBooksKeepLatestRow(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	rows, err := s.GetAccountBooks(context.Background(), alice)
	if err != nil {
		t.Fatalf("GetAccountBooks: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 book entries, got %d", len(rows))
	}
	got := map[model.Book]string{}
	for _, r := range rows {
		got[r.Book] = r.Balance.String()
		if r.OperationID != "op-4" {
			t.Errorf("expected latest rows from op-4, got %s", r.OperationID)
		}
	}
	if got[model.BookCollateral] != "7.8" || got[model.BookDebt] != "2200" {
		t.Errorf("unexpected balances: %v", got)
	}
}

func TestMemoryStore_OperationsByAccountIncludesLiquidator(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	ops, err := s.GetOperationsByAccount(context.Background(), bob)
	if err != nil {
		t.Fatalf("GetOperationsByAccount: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "op-2" || ops[1].ID != "op-4" {
		t.Errorf("expected [op-2 op-4], got %v", ids(ops))
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	ops, err := s.ListOperations(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "op-4" || ops[1].ID != "op-3" {
		t.Errorf("expected [op-4 op-3], got %v", ids(ops))
	}

	all, _ := s.ListOperations(context.Background(), 0)
	if len(all) != 4 {
		t.Errorf("default limit should return all 4, got %d", len(all))
	}
}

func TestHasHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := HasHistory(ctx, s)
	if err != nil || ok {
		t.Fatalf("empty journal: HasHistory = %v, %v", ok, err)
	}
	seed(t, s)
	if ok, err := HasHistory(ctx, s); err != nil || !ok {
		t.Errorf("seeded journal: HasHistory = %v, %v", ok, err)
	}
}

func TestMemoryStore_GetOperation(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)
	ctx := context.Background()

	got, err := s.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	// Mutating the returned copy must not leak into the store.
	got.Rows[0].Balance = d("0")
	again, _ := s.GetOperation(ctx, "op-1")
	if again.Rows[0].Balance.String() != "10" {
		t.Errorf("stored row was mutated: %s", again.Rows[0].Balance)
	}

	if _, err := s.GetOperation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.ApplyOperation(ctx, op("op-1", model.KindMint, alice)); err == nil {
		t.Error("expected duplicate operation to be rejected")
	}
}

// --- Cached store ---

type fakeRedis struct {
	data map[string]string
	gets int
	hits int
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.gets++
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	f.hits++
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	primary := NewMemoryStore()
	rdb := newFakeRedis()
	s := NewCachedStore(primary, rdb, time.Minute)
	ctx := context.Background()
	seed(t, s)

	if _, err := s.GetAccountBooks(ctx, alice); err != nil {
		t.Fatalf("GetAccountBooks: %v", err)
	}
	rows, err := s.GetAccountBooks(ctx, alice)
	if err != nil {
		t.Fatalf("GetAccountBooks: %v", err)
	}
	if rdb.hits != 1 {
		t.Errorf("expected second read to hit cache, hits=%d", rdb.hits)
	}
	if len(rows) != 2 {
		t.Fatalf("cached rows = %d, want 2", len(rows))
	}

	// A new operation for alice drops her cached books.
	if err := s.ApplyOperation(ctx, op("op-5", model.KindMint, alice, debtRow(alice, "2300"))); err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}
	if _, ok := rdb.data[booksKey(alice)]; ok {
		t.Error("books cache should be invalidated after a write")
	}
	rows, _ = s.GetAccountBooks(ctx, alice)
	for _, r := range rows {
		if r.Book == model.BookDebt && r.Balance.String() != "2300" {
			t.Errorf("debt after invalidation = %s, want 2300", r.Balance)
		}
	}
}

func TestCachedStore_LiquidatorHistoryInvalidated(t *testing.T) {
	s := NewCachedStore(NewMemoryStore(), newFakeRedis(), time.Minute)
	ctx := context.Background()
	seed(t, s)

	before, _ := s.GetOperationsByAccount(ctx, bob)
	liq := op("op-6", model.KindLiquidate, alice, debtRow(alice, "1000"))
	liq.Liquidator = bob
	if err := s.ApplyOperation(ctx, liq); err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}
	after, _ := s.GetOperationsByAccount(ctx, bob)
	if len(after) != len(before)+1 {
		t.Errorf("liquidator history not refreshed: before %d, after %d", len(before), len(after))
	}
}

func TestCachedStore_GetOperationServedFromCache(t *testing.T) {
	rdb := newFakeRedis()
	s := NewCachedStore(NewMemoryStore(), rdb, time.Minute)
	seed(t, s)

	got, err := s.GetOperation(context.Background(), "op-2")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if rdb.hits != 1 || got.Account != bob {
		t.Errorf("expected cached op-2 for bob, hits=%d account=%s", rdb.hits, got.Account)
	}
}

func ids(ops []model.Operation) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.ID
	}
	return out
}
