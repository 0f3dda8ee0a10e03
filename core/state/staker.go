package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stakerchain/native/staker"
)

type storedPool struct {
	Address     [20]byte
	Beneficiary [20]byte
	Deadline    uint64
	Threshold   *big.Int
	CreatedAt   uint64
	Status      uint8
}

func newStoredPool(p *staker.Pool) *storedPool {
	return &storedPool{
		Address:     p.Address,
		Beneficiary: p.Beneficiary,
		Deadline:    uint64(p.Deadline),
		Threshold:   new(big.Int).Set(p.Threshold),
		CreatedAt:   uint64(p.CreatedAt),
		Status:      uint8(p.Status),
	}
}

func (s *storedPool) toPool() (*staker.Pool, error) {
	return staker.SanitizePool(&staker.Pool{
		Address:     s.Address,
		Beneficiary: s.Beneficiary,
		Deadline:    int64(s.Deadline),
		Threshold:   s.Threshold,
		CreatedAt:   int64(s.CreatedAt),
		Status:      staker.Status(s.Status),
	})
}

// StakerPoolGet loads the pool definition.
func (m *Manager) StakerPoolGet() (*staker.Pool, bool, error) {
	data, ok, err := m.get(stakerPoolKey)
	if err != nil || !ok {
		return nil, false, err
	}
	stored := new(storedPool)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode pool: %w", err)
	}
	pool, err := stored.toPool()
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

// StakerPoolPut stores the pool definition.
func (m *Manager) StakerPoolPut(p *staker.Pool) error {
	sanitized, err := staker.SanitizePool(p)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredPool(sanitized))
	if err != nil {
		return err
	}
	m.put(stakerPoolKey, encoded)
	return nil
}

// StakerLedgerGet returns the deposit recorded for addr, zero when absent.
func (m *Manager) StakerLedgerGet(addr [20]byte) (*big.Int, error) {
	data, ok, err := m.get(stakerLedgerKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, fmt.Errorf("state: decode ledger entry: %w", err)
	}
	return amount, nil
}

// StakerLedgerPut records the deposit for addr. Zero amounts remove the entry
// while keeping the participant in the index.
func (m *Manager) StakerLedgerPut(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		m.delete(stakerLedgerKey(addr))
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	if err := m.addParticipant(addr); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	m.put(stakerLedgerKey(addr), encoded)
	return nil
}

// StakerParticipants lists every address that has ever staked, in first-stake order.
func (m *Manager) StakerParticipants() ([][20]byte, error) {
	data, ok, err := m.get(stakerParticipants)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][20]byte{}, nil
	}
	var list [][20]byte
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, fmt.Errorf("state: decode participants: %w", err)
	}
	return list, nil
}

func (m *Manager) addParticipant(addr [20]byte) error {
	list, err := m.StakerParticipants()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == addr {
			return nil
		}
	}
	list = append(list, addr)
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.put(stakerParticipants, encoded)
	return nil
}
