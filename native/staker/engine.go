package staker

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"stakerchain/core/events"
)

// Reader is the read side of State.
type Reader interface {
	StakerPoolGet() (*Pool, bool, error)
	StakerLedgerGet(addr [20]byte) (*big.Int, error)
	StakerParticipants() ([][20]byte, error)
	Balance(addr [20]byte) (*big.Int, error)
	Nonce(addr [20]byte) (uint64, error)
}

// State is the storage backend used by the engine. Writes are buffered until
// Commit and can be rolled back to any earlier snapshot. CommittedReader must
// return a view that is safe to use while another goroutine holds the State.
type State interface {
	Reader
	StakerPoolPut(*Pool) error
	StakerLedgerPut(addr [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	SetNonce(addr [20]byte, nonce uint64) error
	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
	CommittedReader() Reader
}

// Beneficiary is the external contract that receives the pool on Execute.
type Beneficiary interface {
	Address() [20]byte
	Complete(amount *big.Int) error
	Completed() (bool, error)
}

// Option customises an engine at construction time.
type Option func(*Engine)

// WithNowFunc overrides the clock, returning unix seconds.
func WithNowFunc(now func() int64) Option {
	return func(e *Engine) { e.SetNowFunc(now) }
}

// WithEmitter configures the event emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.SetEmitter(emitter) }
}

// Engine is the pooled-funding state machine. Every mutating operation runs as
// a single serialized transaction over State; a failed operation leaves no
// writes behind.
type Engine struct {
	mu        sync.Mutex
	commitMu  sync.RWMutex
	executing atomic.Bool

	state       State
	beneficiary Beneficiary
	emitter     events.Emitter
	nowFn       func() int64

	address         [20]byte
	beneficiaryAddr [20]byte
	deadline        int64
	threshold       *big.Int
}

// NewEngine loads the pool from state, creating it when absent. The deadline
// is fixed at creation and survives restarts; reopening a pool with different
// parameters fails.
func NewEngine(state State, beneficiary Beneficiary, params Params, opts ...Option) (*Engine, error) {
	if state == nil {
		return nil, errNilState
	}
	if beneficiary == nil {
		return nil, errNilBeneficiary
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.Address == beneficiary.Address() {
		return nil, fmt.Errorf("staker: pool address must differ from beneficiary")
	}
	e := &Engine{
		state:       state,
		beneficiary: beneficiary,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(e)
	}
	threshold := cloneBigInt(params.Threshold)
	benAddr := beneficiary.Address()

	existing, ok, err := state.StakerPoolGet()
	if err != nil {
		return nil, fmt.Errorf("staker: load pool: %w", err)
	}
	if ok {
		if existing.Address != params.Address || existing.Beneficiary != benAddr || existing.Threshold.Cmp(threshold) != 0 {
			return nil, fmt.Errorf("staker: pool already initialised with different definition")
		}
		e.adopt(existing)
		return e, nil
	}

	now := e.now()
	pool := &Pool{
		Address:     params.Address,
		Beneficiary: benAddr,
		Deadline:    now + int64(params.DeadlineOffset/time.Second),
		Threshold:   threshold,
		CreatedAt:   now,
		Status:      StatusOpen,
	}
	if err := e.transact(func() error { return state.StakerPoolPut(pool) }); err != nil {
		return nil, fmt.Errorf("staker: create pool: %w", err)
	}
	e.adopt(pool)
	return e, nil
}

func (e *Engine) adopt(pool *Pool) {
	e.address = pool.Address
	e.beneficiaryAddr = pool.Beneficiary
	e.deadline = pool.Deadline
	e.threshold = cloneBigInt(pool.Threshold)
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// lock serializes mutations. Mutations arriving while the beneficiary is
// being invoked are rejected rather than queued so a reentrant call cannot
// deadlock or observe the half-applied forward.
func (e *Engine) lock() (func(), error) {
	if e.executing.Load() {
		return nil, ErrExecutionInProgress
	}
	e.mu.Lock()
	return e.mu.Unlock, nil
}

// reader returns the state reads go through. While the beneficiary is being
// invoked the working state belongs to Execute, so reads are served from the
// last committed state instead. committed reports which path was taken.
func (e *Engine) reader() (r Reader, release func(), committed bool) {
	if e.executing.Load() {
		e.commitMu.RLock()
		return e.state.CommittedReader(), e.commitMu.RUnlock, true
	}
	e.mu.Lock()
	return e.state, e.mu.Unlock, false
}

func (e *Engine) transact(fn func() error) error {
	id := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(id)
		return err
	}
	e.commitMu.Lock()
	err := e.state.Commit()
	e.commitMu.Unlock()
	if err != nil {
		e.state.RevertToSnapshot(id)
		return fmt.Errorf("staker: commit: %w", err)
	}
	return nil
}

func (e *Engine) loadPool() (*Pool, error) {
	return loadPool(e.state)
}

func loadPool(r Reader) (*Pool, error) {
	pool, ok, err := r.StakerPoolGet()
	if err != nil {
		return nil, fmt.Errorf("staker: load pool: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("staker: pool not initialised")
	}
	return pool, nil
}

// Deadline returns the unix time after which deposits close.
func (e *Engine) Deadline() int64 { return e.deadline }

// Threshold returns the minimum pool balance required by Execute.
func (e *Engine) Threshold() *big.Int { return cloneBigInt(e.threshold) }

// Address returns the custody account of the pool.
func (e *Engine) Address() [20]byte { return e.address }

// TimeLeft returns the seconds remaining until the deadline, never negative.
func (e *Engine) TimeLeft() int64 {
	left := e.deadline - e.now()
	if left < 0 {
		return 0
	}
	return left
}

// Stake deposits amount from caller into the pool. The caller must already be
// authenticated; see StakeWithNonce for replay-protected deposits.
func (e *Engine) Stake(caller [20]byte, amount *big.Int) error {
	return e.stake(caller, amount, nil)
}

// StakeWithNonce deposits like Stake but only when nonce equals the caller's
// next expected nonce, which is advanced in the same transaction.
func (e *Engine) StakeWithNonce(caller [20]byte, amount *big.Int, nonce uint64) error {
	return e.stake(caller, amount, &nonce)
}

func (e *Engine) stake(caller [20]byte, amount *big.Int, nonce *uint64) error {
	unlock, err := e.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if e.now() >= e.deadline {
		return ErrDeadlinePassed
	}
	if caller == e.address || caller == e.beneficiaryAddr {
		return ErrInvalidParticipant
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	err = e.transact(func() error {
		if nonce != nil {
			expected, err := e.state.Nonce(caller)
			if err != nil {
				return err
			}
			if *nonce != expected {
				return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, expected, *nonce)
			}
			if err := e.state.SetNonce(caller, expected+1); err != nil {
				return err
			}
		}
		current, err := e.state.StakerLedgerGet(caller)
		if err != nil {
			return err
		}
		if err := e.state.Transfer(caller, e.address, amt); err != nil {
			return err
		}
		return e.state.StakerLedgerPut(caller, new(big.Int).Add(current, amt))
	})
	if err != nil {
		return err
	}
	e.emit(events.Transfer{From: caller, To: e.address, Amount: amt, Reason: "stake"})
	e.emit(stakerEvent{evt: NewStakedEvent(caller, amt)})
	return nil
}

// Execute forwards the entire pool to the beneficiary once the deadline has
// passed and the threshold is met. The transfer, the beneficiary's own state
// change and the completion flag commit together or not at all.
func (e *Engine) Execute() (*big.Int, error) {
	unlock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if e.now() < e.deadline {
		return nil, ErrDeadlineNotReached
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if pool.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	balance, err := e.state.Balance(e.address)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(e.threshold) < 0 {
		return nil, ErrThresholdNotReached
	}
	err = e.transact(func() error {
		if balance.Sign() > 0 {
			if err := e.state.Transfer(e.address, e.beneficiaryAddr, balance); err != nil {
				return err
			}
		}
		if err := e.forward(balance); err != nil {
			return err
		}
		pool.Status = StatusCompleted
		return e.state.StakerPoolPut(pool)
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.Transfer{From: e.address, To: e.beneficiaryAddr, Amount: balance, Reason: "execute"})
	e.emit(stakerEvent{evt: NewExecutedEvent(e.address, e.beneficiaryAddr, balance)})
	return cloneBigInt(balance), nil
}

func (e *Engine) forward(amount *big.Int) (err error) {
	e.executing.Store(true)
	defer e.executing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: beneficiary panicked: %v", ErrForwardFailed, r)
		}
	}()
	if err := e.beneficiary.Complete(cloneBigInt(amount)); err != nil {
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	return nil
}

// Withdraw refunds target's full stake once the deadline has passed without a
// successful Execute. Any caller may trigger the refund for any target.
func (e *Engine) Withdraw(target [20]byte) (*big.Int, error) {
	unlock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if e.now() < e.deadline {
		return nil, ErrDeadlineNotReached
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if pool.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	amount, err := e.state.StakerLedgerGet(target)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, ErrNoBalance
	}
	err = e.transact(func() error {
		if err := e.state.StakerLedgerPut(target, big.NewInt(0)); err != nil {
			return err
		}
		return e.state.Transfer(e.address, target, amount)
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.Transfer{From: e.address, To: target, Amount: amount, Reason: "withdraw"})
	e.emit(stakerEvent{evt: NewWithdrawnEvent(target, amount)})
	return cloneBigInt(amount), nil
}

// Balance returns the ledger entry recorded for addr.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	r, release, _ := e.reader()
	defer release()
	return r.StakerLedgerGet(addr)
}

// AccountBalance returns the bank balance of addr.
func (e *Engine) AccountBalance(addr [20]byte) (*big.Int, error) {
	r, release, _ := e.reader()
	defer release()
	return r.Balance(addr)
}

// Nonce returns the next nonce StakeWithNonce accepts from addr.
func (e *Engine) Nonce(addr [20]byte) (uint64, error) {
	r, release, _ := e.reader()
	defer release()
	return r.Nonce(addr)
}

// Completed reports whether the pool has been forwarded.
func (e *Engine) Completed() (bool, error) {
	r, release, _ := e.reader()
	defer release()
	pool, err := loadPool(r)
	if err != nil {
		return false, err
	}
	return pool.Status == StatusCompleted, nil
}

// Snapshot returns a consistent view of the pool. Taken while Execute is
// invoking the beneficiary, it reflects the state before that Execute.
func (e *Engine) Snapshot() (*PoolSnapshot, error) {
	r, release, committed := e.reader()
	defer release()

	pool, err := loadPool(r)
	if err != nil {
		return nil, err
	}
	balance, err := r.Balance(e.address)
	if err != nil {
		return nil, err
	}
	participants, err := r.StakerParticipants()
	if err != nil {
		return nil, err
	}
	// The beneficiary's record commits together with the pool status.
	benCompleted := pool.Status == StatusCompleted
	if !committed {
		benCompleted, err = e.beneficiary.Completed()
		if err != nil {
			return nil, fmt.Errorf("staker: beneficiary status: %w", err)
		}
	}
	return &PoolSnapshot{
		Address:              pool.Address,
		Beneficiary:          pool.Beneficiary,
		Deadline:             pool.Deadline,
		TimeLeft:             e.TimeLeft(),
		Threshold:            cloneBigInt(pool.Threshold),
		Balance:              balance,
		Status:               pool.Status,
		Participants:         len(participants),
		BeneficiaryCompleted: benCompleted,
	}, nil
}

// IsPrecondition reports whether err is a caller or state precondition failure
// rather than an infrastructure error.
func IsPrecondition(err error) bool {
	return Kind(err) != "" && !errors.Is(err, ErrForwardFailed)
}
