package staker

import (
	"fmt"
	"math/big"
	"time"
)

// Status is the macro state of the funding round. Completed is terminal.
type Status uint8

const (
	StatusOpen Status = iota
	StatusCompleted
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusCompleted:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Pool captures the immutable definition of the funding round together with
// its current status. Ledger entries are stored separately per participant.
type Pool struct {
	Address     [20]byte
	Beneficiary [20]byte
	Deadline    int64
	Threshold   *big.Int
	CreatedAt   int64
	Status      Status
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Threshold = cloneBigInt(p.Threshold)
	return &clone
}

// SanitizePool validates the pool definition and returns a normalised copy.
func SanitizePool(p *Pool) (*Pool, error) {
	if p == nil {
		return nil, fmt.Errorf("nil pool")
	}
	clone := p.Clone()
	if clone.Threshold.Sign() < 0 {
		return nil, fmt.Errorf("pool threshold must be non-negative")
	}
	if clone.Deadline < 0 || clone.CreatedAt < 0 {
		return nil, fmt.Errorf("pool timestamps must be non-negative")
	}
	if clone.Deadline < clone.CreatedAt {
		return nil, fmt.Errorf("pool deadline before creation time")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid pool status: %d", clone.Status)
	}
	return clone, nil
}

// Params are the construction parameters of the engine.
type Params struct {
	// Address is the custody account holding pooled value.
	Address [20]byte
	// DeadlineOffset is added to the construction time to derive the deadline.
	DeadlineOffset time.Duration
	// Threshold is the minimum pool balance required to forward.
	Threshold *big.Int
}

func (p Params) validate() error {
	if p.Address == ([20]byte{}) {
		return fmt.Errorf("staker: pool address required")
	}
	if p.DeadlineOffset < 0 {
		return fmt.Errorf("staker: deadline offset must be non-negative")
	}
	if p.Threshold != nil && p.Threshold.Sign() < 0 {
		return fmt.Errorf("staker: threshold must be non-negative")
	}
	return nil
}

// PoolSnapshot is a consistent read of the pool taken under the engine lock.
type PoolSnapshot struct {
	Address              [20]byte
	Beneficiary          [20]byte
	Deadline             int64
	TimeLeft             int64
	Threshold            *big.Int
	Balance              *big.Int
	Status               Status
	Participants         int
	BeneficiaryCompleted bool
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
