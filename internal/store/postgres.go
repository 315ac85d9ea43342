package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/dsc-engine/internal/model"
)

// Schema creates the journal tables. Amounts are NUMERIC(78,18): any 256-bit
// integer scaled by 1e18 fits.
const Schema = `
CREATE TABLE IF NOT EXISTS operations (
	id                TEXT PRIMARY KEY,
	seq               BIGSERIAL UNIQUE,
	kind              TEXT NOT NULL,
	account           TEXT NOT NULL,
	liquidator        TEXT NOT NULL DEFAULT '',
	asset             TEXT NOT NULL DEFAULT '',
	collateral_amount NUMERIC(78, 18) NOT NULL,
	debt_amount       NUMERIC(78, 18) NOT NULL,
	timestamp         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS operations_account_idx ON operations (account);
CREATE INDEX IF NOT EXISTS operations_liquidator_idx ON operations (liquidator);

CREATE TABLE IF NOT EXISTS book_rows (
	operation_id TEXT NOT NULL REFERENCES operations (id),
	account      TEXT NOT NULL,
	book         TEXT NOT NULL,
	asset        TEXT NOT NULL DEFAULT '',
	balance      NUMERIC(78, 18) NOT NULL,
	PRIMARY KEY (operation_id, account, book, asset)
);
CREATE INDEX IF NOT EXISTS book_rows_account_idx ON book_rows (account, book, asset);
`

// PostgresStore implements Store on PostgreSQL, keeping the journal across
// restarts.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the journal tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// ApplyOperation inserts the operation and its rows in one transaction.
func (s *PostgresStore) ApplyOperation(ctx context.Context, op *model.Operation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx,
		`INSERT INTO operations (id, kind, account, liquidator, asset, collateral_amount, debt_amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
		op.ID, string(op.Kind), op.Account, op.Liquidator, op.Asset,
		op.CollateralAmount.String(), op.DebtAmount.String(),
		op.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", op.ID, err)
	}

	batch := &pgx.Batch{}
	for _, r := range op.Rows {
		batch.Queue(
			`INSERT INTO book_rows (operation_id, account, book, asset, balance)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC)`,
			op.ID, r.Account, string(r.Book), r.Asset, r.Balance.String(),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert book rows for %s: %w", op.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	ops, err := scanOperations(rows)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	if err := s.attachRows(ctx, ops); err != nil {
		return nil, err
	}
	return &ops[0], nil
}

func (s *PostgresStore) ListOperations(ctx context.Context, limit int) ([]model.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+operationColumns+` FROM operations ORDER BY seq DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	ops, err := scanOperations(rows)
	if err != nil {
		return nil, err
	}
	return ops, s.attachRows(ctx, ops)
}

func (s *PostgresStore) GetOperationsByAccount(ctx context.Context, account string) ([]model.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+operationColumns+` FROM operations o
		 WHERE o.account = $1 OR o.liquidator = $1
		    OR EXISTS (SELECT 1 FROM book_rows b WHERE b.operation_id = o.id AND b.account = $1)
		 ORDER BY o.seq`, account)
	if err != nil {
		return nil, err
	}
	ops, err := scanOperations(rows)
	if err != nil {
		return nil, err
	}
	return ops, s.attachRows(ctx, ops)
}

func (s *PostgresStore) GetAccountBooks(ctx context.Context, account string) ([]model.BookRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (b.book, b.asset)
		        b.operation_id, b.account, b.book, b.asset, b.balance::TEXT
		 FROM book_rows b
		 JOIN operations o ON o.id = b.operation_id
		 WHERE b.account = $1
		 ORDER BY b.book, b.asset, o.seq DESC`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookRows(rows)
}

// attachRows loads the book rows of ops with one query.
func (s *PostgresStore) attachRows(ctx context.Context, ops []model.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	ids := make([]string, len(ops))
	index := make(map[string]int, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
		index[op.ID] = i
	}

	rows, err := s.pool.Query(ctx,
		`SELECT operation_id, account, book, asset, balance::TEXT
		 FROM book_rows WHERE operation_id = ANY($1)
		 ORDER BY operation_id, book, asset`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	bookRows, err := scanBookRows(rows)
	if err != nil {
		return err
	}
	for _, r := range bookRows {
		i := index[r.OperationID]
		ops[i].Rows = append(ops[i].Rows, r)
	}
	return nil
}

const operationColumns = `id, kind, account, liquidator, asset,
	collateral_amount::TEXT, debt_amount::TEXT, timestamp`

// pgxRows is the subset of pgx.Rows the scanners use.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close()
}

func scanOperations(rows pgxRows) ([]model.Operation, error) {
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		var op model.Operation
		var kind, collateralS, debtS string

		if err := rows.Scan(&op.ID, &kind, &op.Account, &op.Liquidator, &op.Asset,
			&collateralS, &debtS, &op.Timestamp); err != nil {
			return nil, err
		}
		op.Kind = model.OperationKind(kind)

		var err error
		if op.CollateralAmount, err = decimal.NewFromString(collateralS); err != nil {
			return nil, fmt.Errorf("operation %s collateral: %w", op.ID, err)
		}
		if op.DebtAmount, err = decimal.NewFromString(debtS); err != nil {
			return nil, fmt.Errorf("operation %s debt: %w", op.ID, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanBookRows(rows pgxRows) ([]model.BookRow, error) {
	var result []model.BookRow
	for rows.Next() {
		var r model.BookRow
		var book, balanceS string

		if err := rows.Scan(&r.OperationID, &r.Account, &book, &r.Asset, &balanceS); err != nil {
			return nil, err
		}
		r.Book = model.Book(book)

		balance, err := decimal.NewFromString(balanceS)
		if err != nil {
			return nil, fmt.Errorf("book row %s balance: %w", r.OperationID, err)
		}
		r.Balance = balance
		result = append(result, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return result, nil
}
