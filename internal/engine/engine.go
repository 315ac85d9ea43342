// Package engine is the accounting core of the synthetic-dollar system. It
// keeps per-account collateral and debt books, values collateral through the
// oracle guard and refuses any operation that would leave the acting account
// below the minimum health factor.
//
// Every mutating operation runs inside execute, which snapshots the books and
// every collaborator that supports snapshots. If any step fails, including the
// final persistence of the operation record, all of them are reverted and the
// caller observes no change.
//
// An Engine is not safe for concurrent use; callers serialize operations and
// views (see api.Service). Nested mutating calls made while an operation is in
// flight, e.g. from a token transfer hook, fail with ErrReentrantCall.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/metrics"
	"github.com/atmx/dsc-engine/internal/model"
	"github.com/atmx/dsc-engine/internal/oracle"
	"github.com/atmx/dsc-engine/internal/risk"
)

// CollateralToken is the token ledger of one collateral asset.
type CollateralToken interface {
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Transfer(from, to common.Address, amount *uint256.Int) error
	BalanceOf(account common.Address) *uint256.Int
}

// DebtToken is the ledger of the issued synthetic dollar. The engine must be
// its owner: the only account allowed to mint and burn.
type DebtToken interface {
	CollateralToken
	Mint(caller, to common.Address, amount *uint256.Int) error
	Burn(caller common.Address, amount *uint256.Int) error
	TotalSupply() *uint256.Int
}

// Snapshotter is implemented by collaborators whose effects can be rolled
// back. Snapshot opens a scope; RevertToSnapshot and Commit close it.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit(id int)
}

// Journal persists committed operations.
type Journal interface {
	ApplyOperation(ctx context.Context, op *model.Operation) error
}

// Notifier is told about every committed operation.
type Notifier interface {
	Notify(op model.Operation)
}

// Asset binds a collateral token to its USD price source. Address is the
// token's contract address, informational only.
type Asset struct {
	Address common.Address
	Token   CollateralToken
	Feed    oracle.Source
}

// Engine is the collateral/debt accounting core.
type Engine struct {
	self   common.Address
	dsc    DebtToken
	assets *asset.Registry[Asset]
	params Params
	policy *risk.Policy
	guard  *oracle.Guard
	st     *state

	journal  Journal
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	entered bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal persists every committed operation to j. A journal failure
// reverts the operation.
func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

// WithNotifier publishes every committed operation to n.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the clock used for price staleness and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine acting as self, owning dsc, and accepting the given
// collateral assets. ids and assets are parallel lists and must have the same
// length.
func New(self common.Address, dsc DebtToken, ids []asset.ID, assets []Asset, params Params, opts ...Option) (*Engine, error) {
	if self == (common.Address{}) {
		return nil, fmt.Errorf("%w: engine address", ErrZeroAddress)
	}
	if dsc == nil {
		return nil, fmt.Errorf("%w: debt token", ErrNilCollaborator)
	}
	registry, err := asset.NewRegistry(ids, assets)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	err = registry.Each(func(id asset.ID, a Asset) error {
		if a.Token == nil || a.Feed == nil {
			return fmt.Errorf("%w: asset %s", ErrNilCollaborator, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	policy, err := params.Validate()
	if err != nil {
		return nil, err
	}
	params.MinHealthFactor = policy.MinHealthFactor.Clone()

	e := &Engine{
		self:   self,
		dsc:    dsc,
		assets: registry,
		params: params,
		policy: policy,
		st:     newState(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.guard = oracle.NewGuard(params.OracleTimeout, oracle.WithClock(e.now))
	e.params.OracleTimeout = e.guard.MaxAge()
	return e, nil
}

// Address returns the account the engine holds collateral under.
func (e *Engine) Address() common.Address { return e.self }

// --- Execution ---

// opRecord describes the operation being executed and collects the book
// entries it touches.
type opRecord struct {
	kind       model.OperationKind
	account    common.Address
	liquidator common.Address
	asset      asset.ID
	collateral *uint256.Int
	debt       *uint256.Int
	touched    []bookKey
}

type bookKey struct {
	account common.Address
	book    model.Book
	asset   asset.ID
}

func (r *opRecord) touch(account common.Address, book model.Book, id asset.ID) {
	k := bookKey{account: account, book: book, asset: id}
	for _, t := range r.touched {
		if t == k {
			return
		}
	}
	r.touched = append(r.touched, k)
}

// execute runs fn as a single all-or-nothing operation.
func (e *Engine) execute(ctx context.Context, rec *opRecord, fn func() error) (err error) {
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()

	start := time.Now()
	snaps := e.snapshot()
	defer func() {
		if r := recover(); r != nil {
			snaps.revert()
			panic(r)
		}
		metrics.OperationLatency.WithLabelValues(string(rec.kind)).Observe(time.Since(start).Seconds())
		if err != nil {
			snaps.revert()
			e.rejected(rec, err)
		}
	}()

	if err = fn(); err != nil {
		return err
	}

	op := e.operation(rec)
	if e.journal != nil {
		if err = e.journal.ApplyOperation(ctx, &op); err != nil {
			return fmt.Errorf("engine: persist operation: %w", err)
		}
	}
	snaps.commit()
	e.committed(op)
	return nil
}

func (e *Engine) committed(op model.Operation) {
	metrics.OperationsTotal.WithLabelValues(string(op.Kind), "committed").Inc()
	metrics.TotalDebt.Set(fixedpoint.ToDecimal(e.st.totalDebt).InexactFloat64())
	if op.Kind == model.KindLiquidate {
		metrics.LiquidationsTotal.WithLabelValues(op.Asset).Inc()
	}

	e.logger.Info("operation committed",
		"id", op.ID,
		"kind", op.Kind,
		"account", op.Account,
		"asset", op.Asset,
		"collateral", op.CollateralAmount.String(),
		"debt", op.DebtAmount.String(),
	)
	if e.notifier != nil {
		e.notifier.Notify(op)
	}
}

func (e *Engine) rejected(rec *opRecord, err error) {
	metrics.OperationsTotal.WithLabelValues(string(rec.kind), "reverted").Inc()
	if errors.Is(err, ErrBreaksHealthFactor) {
		metrics.HealthFactorRejections.Inc()
	}
	if errors.Is(err, ErrReentrantCall) {
		return
	}
	e.logger.Warn("operation reverted",
		"kind", rec.kind,
		"account", rec.account.Hex(),
		"asset", string(rec.asset),
		"error", err,
	)
}

// operation renders rec as a persisted record with post-operation balances.
func (e *Engine) operation(rec *opRecord) model.Operation {
	op := model.Operation{
		ID:               uuid.New().String(),
		Kind:             rec.kind,
		Account:          rec.account.Hex(),
		Asset:            string(rec.asset),
		CollateralAmount: fixedpoint.ToDecimal(rec.collateral),
		DebtAmount:       fixedpoint.ToDecimal(rec.debt),
		Timestamp:        e.now().UTC(),
	}
	if rec.liquidator != (common.Address{}) {
		op.Liquidator = rec.liquidator.Hex()
	}
	for _, k := range rec.touched {
		row := model.BookRow{
			OperationID: op.ID,
			Account:     k.account.Hex(),
			Book:        k.book,
			Asset:       string(k.asset),
		}
		if k.book == model.BookDebt {
			row.Balance = fixedpoint.ToDecimal(e.st.debtOf(k.account))
		} else {
			row.Balance = fixedpoint.ToDecimal(e.st.collateralOf(k.account, k.asset))
		}
		op.Rows = append(op.Rows, row)
	}
	return op
}

// snapshotSet is an open snapshot across the books and every collaborator
// that supports one.
type snapshotSet struct {
	parts []Snapshotter
	ids   []int
}

func (e *Engine) snapshot() *snapshotSet {
	parts := []Snapshotter{e.st}
	if s, ok := e.dsc.(Snapshotter); ok {
		parts = append(parts, s)
	}
	_ = e.assets.Each(func(_ asset.ID, a Asset) error {
		if s, ok := a.Token.(Snapshotter); ok {
			parts = append(parts, s)
		}
		return nil
	})

	set := &snapshotSet{parts: parts, ids: make([]int, len(parts))}
	for i, p := range parts {
		set.ids[i] = p.Snapshot()
	}
	return set
}

// revert unwinds in reverse order so a collaborator registered twice is
// restored to its earliest snapshot.
func (s *snapshotSet) revert() {
	for i := len(s.parts) - 1; i >= 0; i-- {
		s.parts[i].RevertToSnapshot(s.ids[i])
	}
}

func (s *snapshotSet) commit() {
	for i := len(s.parts) - 1; i >= 0; i-- {
		s.parts[i].Commit(s.ids[i])
	}
}

// --- Shared lookups ---

func (e *Engine) lookup(id asset.ID) (Asset, error) {
	a, err := e.assets.Lookup(id)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, id)
	}
	return a, nil
}

func requireAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// requireAccount rejects the zero address and the engine itself: the engine
// pulling from and paying to its own custody moves no tokens.
func (e *Engine) requireAccount(account common.Address) error {
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	if account == e.self {
		return fmt.Errorf("%w: %s", ErrEngineAccount, account.Hex())
	}
	return nil
}
