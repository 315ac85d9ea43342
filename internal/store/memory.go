package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/dsc-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu  sync.RWMutex
	ops []model.Operation
	ids map[string]int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]int)}
}

func (s *MemoryStore) ApplyOperation(_ context.Context, op *model.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[op.ID]; dup {
		return fmt.Errorf("operation %s already recorded", op.ID)
	}
	s.ids[op.ID] = len(s.ops)
	s.ops = append(s.ops, cloneOperation(op))
	return nil
}

func (s *MemoryStore) GetOperation(_ context.Context, id string) (*model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.ids[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	op := cloneOperation(&s.ops[i])
	return &op, nil
}

func (s *MemoryStore) ListOperations(_ context.Context, limit int) ([]model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = normalizeLimit(limit)
	result := make([]model.Operation, 0, min(limit, len(s.ops)))
	for i := len(s.ops) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneOperation(&s.ops[i]))
	}
	return result, nil
}

func (s *MemoryStore) GetOperationsByAccount(_ context.Context, account string) ([]model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Operation
	for i := range s.ops {
		if involves(&s.ops[i], account) {
			result = append(result, cloneOperation(&s.ops[i]))
		}
	}
	return result, nil
}

// GetAccountBooks replays the journal, keeping the last row per book entry.
func (s *MemoryStore) GetAccountBooks(_ context.Context, account string) ([]model.BookRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		book  model.Book
		asset string
	}
	latest := make(map[entry]int)
	var rows []model.BookRow
	for _, op := range s.ops {
		for _, r := range op.Rows {
			if r.Account != account {
				continue
			}
			k := entry{book: r.Book, asset: r.Asset}
			if i, ok := latest[k]; ok {
				rows[i] = r
				continue
			}
			latest[k] = len(rows)
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// cloneOperation copies op so callers cannot mutate stored rows.
func cloneOperation(op *model.Operation) model.Operation {
	c := *op
	c.Rows = append([]model.BookRow(nil), op.Rows...)
	return c
}
