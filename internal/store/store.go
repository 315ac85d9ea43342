// Package store defines the persistence interface for the operation journal.
// Implementations include PostgreSQL (durable), Redis (read-through cache),
// and in-memory (for testing).
//
// The journal is an append-only audit log: each committed engine operation is
// stored with the post-operation balances of every book entry it touched, so
// the latest row per entry is that entry's balance as of its last operation.
// The engine never reads it back; its books and the token ledgers are process
// memory and start empty on every boot.
package store

import (
	"context"
	"errors"

	"github.com/atmx/dsc-engine/internal/model"
)

// ErrNotFound is returned when a requested operation does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL keeps the log across
// restarts; Redis provides a read-through cache layer.
type Store interface {
	// ApplyOperation appends an operation and its book rows atomically.
	ApplyOperation(ctx context.Context, op *model.Operation) error

	// GetOperation retrieves an operation by its ID.
	GetOperation(ctx context.Context, id string) (*model.Operation, error)

	// ListOperations returns the most recent operations, newest first.
	ListOperations(ctx context.Context, limit int) ([]model.Operation, error)

	// GetOperationsByAccount returns every operation an account took part
	// in, as actor, debtor or liquidator, oldest first.
	GetOperationsByAccount(ctx context.Context, account string) ([]model.Operation, error)

	// GetAccountBooks returns the latest balance of each of an account's
	// book entries.
	GetAccountBooks(ctx context.Context, account string) ([]model.BookRow, error)
}

// DefaultListLimit bounds ListOperations when the caller passes no limit.
const DefaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}

func involves(op *model.Operation, account string) bool {
	if op.Account == account || op.Liquidator == account {
		return true
	}
	for _, r := range op.Rows {
		if r.Account == account {
			return true
		}
	}
	return false
}

// HasHistory reports whether s already holds journaled operations, such as
// ones left by an earlier process.
func HasHistory(ctx context.Context, s Store) (bool, error) {
	ops, err := s.ListOperations(ctx, 1)
	if err != nil {
		return false, err
	}
	return len(ops) > 0, nil
}
