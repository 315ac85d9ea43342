package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
)

// state holds the collateral and debt books. Writes go through the set*
// helpers, which journal the previous value while a snapshot is open.
type state struct {
	collateral      map[common.Address]map[asset.ID]*uint256.Int
	debt            map[common.Address]*uint256.Int
	totalCollateral map[asset.ID]*uint256.Int
	totalDebt       *uint256.Int

	journal []func()
	open    int
}

func newState() *state {
	return &state{
		collateral:      make(map[common.Address]map[asset.ID]*uint256.Int),
		debt:            make(map[common.Address]*uint256.Int),
		totalCollateral: make(map[asset.ID]*uint256.Int),
		totalDebt:       fixedpoint.Zero(),
	}
}

func (s *state) collateralOf(account common.Address, id asset.ID) *uint256.Int {
	return fixedpoint.Clone(s.collateral[account][id])
}

func (s *state) debtOf(account common.Address) *uint256.Int {
	return fixedpoint.Clone(s.debt[account])
}

// setCollateral sets account's balance of id and keeps the per-asset total in
// step with it.
func (s *state) setCollateral(account common.Address, id asset.ID, v *uint256.Int) error {
	book := s.collateral[account]
	if book == nil {
		book = make(map[asset.ID]*uint256.Int)
		s.collateral[account] = book
	}
	prev, had := book[id]
	total, err := fixedpoint.Sub(s.totalCollateral[id], prev)
	if err != nil {
		return err
	}
	if total, err = fixedpoint.Add(total, v); err != nil {
		return err
	}
	prevTotal, hadTotal := s.totalCollateral[id]

	s.record(func() {
		if had {
			book[id] = prev
		} else {
			delete(book, id)
		}
		if hadTotal {
			s.totalCollateral[id] = prevTotal
		} else {
			delete(s.totalCollateral, id)
		}
	})
	book[id] = v
	s.totalCollateral[id] = total
	return nil
}

func (s *state) setDebt(account common.Address, v *uint256.Int) error {
	prev, had := s.debt[account]
	total, err := fixedpoint.Sub(s.totalDebt, prev)
	if err != nil {
		return err
	}
	if total, err = fixedpoint.Add(total, v); err != nil {
		return err
	}
	prevTotal := s.totalDebt

	s.record(func() {
		if had {
			s.debt[account] = prev
		} else {
			delete(s.debt, account)
		}
		s.totalDebt = prevTotal
	})
	s.debt[account] = v
	s.totalDebt = total
	return nil
}

func (s *state) record(undo func()) {
	if s.open > 0 {
		s.journal = append(s.journal, undo)
	}
}

// Snapshot, RevertToSnapshot and Commit follow the same contract as the
// collaborators' Snapshotter implementations.

func (s *state) Snapshot() int {
	s.open++
	return len(s.journal)
}

func (s *state) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	if id < len(s.journal) {
		s.journal = s.journal[:id]
	}
	s.close()
}

func (s *state) Commit(int) { s.close() }

func (s *state) close() {
	if s.open > 0 {
		s.open--
	}
	if s.open == 0 {
		s.journal = nil
	}
}
