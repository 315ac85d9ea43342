// Package token is an in-process ERC-20 style ledger. It backs the debt token
// (the engine is its owner, and so its sole minter and burner) and the devnet
// collateral tokens.
//
// Every mutation is journaled while a snapshot is open, so a caller that
// aborts an operation can revert the ledger to the state it observed at
// Snapshot time.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/fixedpoint"
)

var (
	ErrZeroAmount            = errors.New("token: amount must be more than zero")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrNotOwner              = errors.New("token: caller is not the owner")
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrBurnExceedsBalance    = errors.New("token: burn amount exceeds balance")
)

// TransferHook observes completed transfers. It runs after the ledger lock is
// released, so it may call back into whatever triggered the transfer.
type TransferHook func(from, to common.Address, amount *uint256.Int)

// Ledger is a fungible token ledger with 18 decimals.
type Ledger struct {
	mu          sync.Mutex
	name        string
	symbol      string
	owner       common.Address
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	totalSupply *uint256.Int
	hook        TransferHook

	journal []func()
	open    int
}

// NewLedger creates an empty ledger owned by owner.
func NewLedger(name, symbol string, owner common.Address) *Ledger {
	return &Ledger{
		name:        name,
		symbol:      symbol,
		owner:       owner,
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		totalSupply: fixedpoint.Zero(),
	}
}

func (l *Ledger) Name() string          { return l.name }
func (l *Ledger) Symbol() string        { return l.symbol }
func (l *Ledger) Decimals() uint8       { return fixedpoint.Decimals }
func (l *Ledger) Owner() common.Address { return l.owner }

// SetTransferHook installs fn to be called after every transfer.
func (l *Ledger) SetTransferHook(fn TransferHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = fn
}

// TotalSupply returns the amount currently in circulation.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply.Clone()
}

// BalanceOf returns the balance held by account.
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fixedpoint.Clone(l.balances[account])
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fixedpoint.Clone(l.allowances[owner][spender])
}

// Approve lets spender move up to amount of owner's balance. An allowance of
// fixedpoint.Max() is never decremented.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(owner, spender, fixedpoint.Clone(amount))
	return nil
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	err := l.move(from, to, amount)
	hook := l.hook
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(from, to, amount)
	}
	return nil
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// allowance unless spender is from itself.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	err := l.spendAllowance(spender, from, amount)
	if err == nil {
		err = l.move(from, to, amount)
	}
	hook := l.hook
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(from, to, amount)
	}
	return nil
}

// Mint creates amount new tokens for to. Only the owner may mint.
func (l *Ledger) Mint(caller, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.owner {
		return ErrNotOwner
	}
	supply, err := fixedpoint.Add(l.totalSupply, amount)
	if err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	bal, err := fixedpoint.Add(l.balances[to], amount)
	if err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	l.setSupply(supply)
	l.setBalance(to, bal)
	return nil
}

// Burn destroys amount of the caller's own balance. Only the owner may burn.
func (l *Ledger) Burn(caller common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.owner {
		return ErrNotOwner
	}
	bal, err := fixedpoint.Sub(l.balances[caller], amount)
	if err != nil {
		return ErrBurnExceedsBalance
	}
	supply, err := fixedpoint.Sub(l.totalSupply, amount)
	if err != nil {
		return fmt.Errorf("token: burn: %w", err)
	}
	l.setBalance(caller, bal)
	l.setSupply(supply)
	return nil
}

// --- Snapshots ---

// Snapshot opens a journal scope and returns its id.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open++
	return len(l.journal)
}

// RevertToSnapshot undoes every mutation made since id and closes the scope.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i]()
	}
	if id < len(l.journal) {
		l.journal = l.journal[:id]
	}
	l.closeScope()
}

// Commit closes the scope opened at id, keeping its mutations.
func (l *Ledger) Commit(int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeScope()
}

func (l *Ledger) closeScope() {
	if l.open > 0 {
		l.open--
	}
	if l.open == 0 {
		l.journal = nil
	}
}

// --- Internal mutation helpers (caller holds mu) ---

func (l *Ledger) move(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal, err := fixedpoint.Sub(l.balances[from], amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	l.setBalance(from, fromBal)
	toBal, err := fixedpoint.Add(l.balances[to], amount)
	if err != nil {
		return fmt.Errorf("token: transfer: %w", err)
	}
	l.setBalance(to, toBal)
	return nil
}

func (l *Ledger) spendAllowance(spender, from common.Address, amount *uint256.Int) error {
	if spender == from {
		return nil
	}
	current := l.allowances[from][spender]
	if fixedpoint.IsMax(current) {
		return nil
	}
	left, err := fixedpoint.Sub(current, amount)
	if err != nil {
		return ErrInsufficientAllowance
	}
	l.setAllowance(from, spender, left)
	return nil
}

func (l *Ledger) record(undo func()) {
	if l.open > 0 {
		l.journal = append(l.journal, undo)
	}
}

func (l *Ledger) setBalance(a common.Address, v *uint256.Int) {
	prev, had := l.balances[a]
	l.record(func() {
		if had {
			l.balances[a] = prev
		} else {
			delete(l.balances, a)
		}
	})
	l.balances[a] = v
}

func (l *Ledger) setSupply(v *uint256.Int) {
	prev := l.totalSupply
	l.record(func() { l.totalSupply = prev })
	l.totalSupply = v
}

func (l *Ledger) setAllowance(owner, spender common.Address, v *uint256.Int) {
	m := l.allowances[owner]
	if m == nil {
		m = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	prev, had := m[spender]
	l.record(func() {
		if had {
			m[spender] = prev
		} else {
			delete(m, spender)
		}
	})
	m[spender] = v
}
