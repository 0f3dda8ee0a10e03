package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"stakerchain/native/beneficiary"
)

// BeneficiaryGet loads the record of the beneficiary contract at addr.
func (m *Manager) BeneficiaryGet(addr [20]byte) (*beneficiary.Record, bool, error) {
	data, ok, err := m.get(beneficiaryKey(addr))
	if err != nil || !ok {
		return nil, false, err
	}
	record := new(beneficiary.Record)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false, fmt.Errorf("state: decode beneficiary: %w", err)
	}
	return record.Clone(), true, nil
}

// BeneficiaryPut stores the record of the beneficiary contract at addr.
func (m *Manager) BeneficiaryPut(addr [20]byte, record *beneficiary.Record) error {
	if record == nil {
		return fmt.Errorf("state: nil beneficiary record")
	}
	encoded, err := rlp.EncodeToBytes(record.Clone())
	if err != nil {
		return err
	}
	m.put(beneficiaryKey(addr), encoded)
	return nil
}
