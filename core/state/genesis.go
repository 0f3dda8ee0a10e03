package state

import (
	"fmt"
	"math/big"
)

// Alloc is a genesis balance assignment.
type Alloc struct {
	Address [20]byte
	Balance *big.Int
}

// ApplyGenesis credits the allocations and commits them. It runs at most once
// per database; later calls are no-ops and report false.
func (m *Manager) ApplyGenesis(allocs []Alloc) (bool, error) {
	_, applied, err := m.get(genesisAppliedKey)
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}
	id := m.Snapshot()
	for _, alloc := range allocs {
		if err := m.Credit(alloc.Address, alloc.Balance); err != nil {
			m.RevertToSnapshot(id)
			return false, fmt.Errorf("state: genesis alloc %x: %w", alloc.Address, err)
		}
	}
	m.put(genesisAppliedKey, []byte{1})
	if err := m.Commit(); err != nil {
		m.RevertToSnapshot(id)
		return false, err
	}
	return true, nil
}
