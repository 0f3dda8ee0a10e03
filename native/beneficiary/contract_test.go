package beneficiary

import (
	"errors"
	"math/big"
	"testing"
)

type memState struct {
	records map[[20]byte]*Record
	putErr  error
}

func (m *memState) BeneficiaryGet(addr [20]byte) (*Record, bool, error) {
	rec, ok := m.records[addr]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *memState) BeneficiaryPut(addr [20]byte, record *Record) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.records[addr] = record.Clone()
	return nil
}

func TestCompleteMarksContract(t *testing.T) {
	state := &memState{records: make(map[[20]byte]*Record)}
	contract := New(state, [20]byte{0x42})

	done, err := contract.Completed()
	if err != nil || done {
		t.Fatalf("expected fresh contract to be incomplete, got %v %v", done, err)
	}
	if err := contract.Complete(big.NewInt(5)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := contract.Complete(big.NewInt(3)); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	done, err = contract.Completed()
	if err != nil || !done {
		t.Fatalf("expected completed contract, got %v %v", done, err)
	}
	received, err := contract.Received()
	if err != nil {
		t.Fatalf("received: %v", err)
	}
	if received.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("expected 8 received, got %s", received)
	}
}

func TestCompleteRejectsNegative(t *testing.T) {
	state := &memState{records: make(map[[20]byte]*Record)}
	contract := New(state, [20]byte{0x01})
	if err := contract.Complete(big.NewInt(-1)); !errors.Is(err, errNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
}

func TestCompletePropagatesStateFailure(t *testing.T) {
	boom := errors.New("disk full")
	state := &memState{records: make(map[[20]byte]*Record), putErr: boom}
	contract := New(state, [20]byte{0x01})
	if err := contract.Complete(big.NewInt(1)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped state error, got %v", err)
	}
	if done, _ := contract.Completed(); done {
		t.Fatalf("contract must not report completion after failed persist")
	}
}

func TestNilStateFails(t *testing.T) {
	var contract *Contract
	if _, err := contract.Completed(); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}
