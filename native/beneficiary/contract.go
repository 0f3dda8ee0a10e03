package beneficiary

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState       = errors.New("beneficiary: state not configured")
	errNegativeAmount = errors.New("beneficiary: negative amount")
)

// Record is the persisted state of a beneficiary contract.
type Record struct {
	Completed bool
	Received  *big.Int
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Received != nil {
		clone.Received = new(big.Int).Set(r.Received)
	} else {
		clone.Received = big.NewInt(0)
	}
	return &clone
}

// State persists beneficiary records. Writes share the caller's transaction so
// they roll back together with the forwarding transfer.
type State interface {
	BeneficiaryGet(addr [20]byte) (*Record, bool, error)
	BeneficiaryPut(addr [20]byte, record *Record) error
}

// Contract is the reference beneficiary: it accepts the forwarded pool and
// flips its completed flag.
type Contract struct {
	state   State
	address [20]byte
}

// New returns the contract living at address.
func New(state State, address [20]byte) *Contract {
	return &Contract{state: state, address: address}
}

// Address returns the account that receives forwarded value.
func (c *Contract) Address() [20]byte { return c.address }

func (c *Contract) load() (*Record, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	record, ok, err := c.state.BeneficiaryGet(c.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Record{Received: big.NewInt(0)}, nil
	}
	return record.Clone(), nil
}

// Complete records receipt of amount and marks the contract completed.
func (c *Contract) Complete(amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return errNegativeAmount
	}
	record, err := c.load()
	if err != nil {
		return err
	}
	if amount != nil {
		record.Received = new(big.Int).Add(record.Received, amount)
	}
	record.Completed = true
	if err := c.state.BeneficiaryPut(c.address, record); err != nil {
		return fmt.Errorf("beneficiary: persist: %w", err)
	}
	return nil
}

// Completed reports whether Complete has succeeded.
func (c *Contract) Completed() (bool, error) {
	record, err := c.load()
	if err != nil {
		return false, err
	}
	return record.Completed, nil
}

// Received returns the total value forwarded to the contract.
func (c *Contract) Received() (*big.Int, error) {
	record, err := c.load()
	if err != nil {
		return nil, err
	}
	return record.Received, nil
}
