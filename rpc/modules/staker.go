package modules

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakerchain/core/events"
	"stakerchain/core/state"
	"stakerchain/crypto"
	"stakerchain/native/staker"
	"stakerchain/observability"
)

const (
	kindInsufficientFunds = "InsufficientFunds"

	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Engine is the subset of the staker engine exposed over RPC.
type Engine interface {
	Address() [20]byte
	StakeWithNonce(caller [20]byte, amount *big.Int, nonce uint64) error
	Nonce(addr [20]byte) (uint64, error)
	TimeLeft() int64
	Deadline() int64
	Execute() (*big.Int, error)
	Withdraw(target [20]byte) (*big.Int, error)
	Balance(addr [20]byte) (*big.Int, error)
	AccountBalance(addr [20]byte) (*big.Int, error)
	Snapshot() (*staker.PoolSnapshot, error)
}

// History serves persisted events, oldest first.
type History interface {
	Recent(limit int) ([]events.Record, error)
}

// StakerModule adapts JSON-RPC calls onto the staker engine.
type StakerModule struct {
	engine  Engine
	events  *events.Log
	archive History
	metrics *observability.StakerMetrics
}

// NewStakerModule constructs the staker RPC module. staker_events reads from
// archive when set and from log otherwise; both may be nil.
func NewStakerModule(engine Engine, log *events.Log, archive History) *StakerModule {
	return &StakerModule{engine: engine, events: log, archive: archive, metrics: observability.Staker()}
}

// stakeParams carry a deposit authorised by the participant's key. Signature
// is the 0x-encoded 65-byte signature over crypto.StakeDigest.
type stakeParams struct {
	From      string  `json:"from"`
	Amount    string  `json:"amount"`
	Nonce     *uint64 `json:"nonce"`
	Signature string  `json:"signature"`
}

type withdrawParams struct {
	Target string `json:"target"`
}

type addressParams struct {
	Address string `json:"address"`
}

type eventsParams struct {
	Limit *int `json:"limit,omitempty"`
}

// StakeResult reports a successful deposit.
type StakeResult struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
	Balance     string `json:"balance"`
	NextNonce   uint64 `json:"nextNonce"`
}

// TimeLeftResult reports the seconds remaining before the deadline.
type TimeLeftResult struct {
	Seconds  int64 `json:"seconds"`
	Deadline int64 `json:"deadline"`
}

// ExecuteResult reports the amount forwarded to the beneficiary.
type ExecuteResult struct {
	Forwarded string `json:"forwarded"`
}

// WithdrawResult reports a refund.
type WithdrawResult struct {
	Target   string `json:"target"`
	Refunded string `json:"refunded"`
}

// BalanceResult is returned by the balance lookups.
type BalanceResult struct {
	Address string  `json:"address"`
	Balance string  `json:"balance"`
	Nonce   *uint64 `json:"nonce,omitempty"`
}

// StatusResult describes the pool.
type StatusResult struct {
	Address              string `json:"address"`
	Beneficiary          string `json:"beneficiary"`
	Deadline             int64  `json:"deadline"`
	TimeLeft             int64  `json:"timeLeft"`
	Threshold            string `json:"threshold"`
	Balance              string `json:"balance"`
	Status               string `json:"status"`
	Participants         int    `json:"participants"`
	BeneficiaryCompleted bool   `json:"beneficiaryCompleted"`
}

// EventResult represents a recorded event.
type EventResult struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

var errModuleOffline = &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "staker module not initialised"}

// Stake deposits funds from the participant whose key signed the request.
func (m *StakerModule) Stake(raw json.RawMessage) (*StakeResult, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errModuleOffline
	}
	var params stakeParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	from, modErr := parseAddressParam("from", params.From)
	if modErr != nil {
		return nil, modErr
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok {
		return nil, invalidParams("amount must be a base-10 integer", params.Amount)
	}
	if params.Nonce == nil {
		return nil, invalidParams("nonce is required", nil)
	}
	sig, err := hexutil.Decode(strings.TrimSpace(params.Signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, invalidParams("signature must be 0x-prefixed hex of 65 bytes", params.Signature)
	}
	digest, err := crypto.StakeDigest(m.engine.Address(), from, amount, *params.Nonce)
	if err != nil {
		return nil, invalidParams("invalid stake", err.Error())
	}
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil || signer != from {
		m.metrics.RecordOperation("stake", KindInvalidSignature)
		return nil, unauthorized("signature does not match from", KindInvalidSignature)
	}
	if err := m.engine.StakeWithNonce(from, amount, *params.Nonce); err != nil {
		return nil, m.fail("stake", err)
	}
	balance, err := m.engine.Balance(from)
	if err != nil {
		return nil, m.fail("stake", err)
	}
	m.succeed("stake")
	return &StakeResult{
		Participant: crypto.FormatAddress(from),
		Amount:      amount.String(),
		Balance:     balance.String(),
		NextNonce:   *params.Nonce + 1,
	}, nil
}

// TimeLeft reports the seconds until the deadline.
func (m *StakerModule) TimeLeft() (*TimeLeftResult, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errModuleOffline
	}
	return &TimeLeftResult{Seconds: m.engine.TimeLeft(), Deadline: m.engine.Deadline()}, nil
}

// Execute forwards the pool to the beneficiary.
func (m *StakerModule) Execute() (*ExecuteResult, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errModuleOffline
	}
	forwarded, err := m.engine.Execute()
	if err != nil {
		return nil, m.fail("execute", err)
	}
	m.succeed("execute")
	return &ExecuteResult{Forwarded: forwarded.String()}, nil
}

// Withdraw refunds the target's stake.
func (m *StakerModule) Withdraw(raw json.RawMessage) (*WithdrawResult, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errModuleOffline
	}
	var params withdrawParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	target, modErr := parseAddressParam("target", params.Target)
	if modErr != nil {
		return nil, modErr
	}
	refunded, err := m.engine.Withdraw(target)
	if err != nil {
		return nil, m.fail("withdraw", err)
	}
	m.succeed("withdraw")
	return &WithdrawResult{Target: crypto.FormatAddress(target), Refunded: refunded.String()}, nil
}

// Balance returns the amount staked by an address.
func (m *StakerModule) Balance(raw json.RawMessage) (*BalanceResult, *ModuleError) {
	return m.lookup(raw, func(addr [20]byte) (*big.Int, error) { return m.engine.Balance(addr) })
}

// AccountBalance returns the spendable balance of an address and the nonce
// its next signed stake must carry.
func (m *StakerModule) AccountBalance(raw json.RawMessage) (*BalanceResult, *ModuleError) {
	var nonce uint64
	res, modErr := m.lookup(raw, func(addr [20]byte) (*big.Int, error) {
		balance, err := m.engine.AccountBalance(addr)
		if err != nil {
			return nil, err
		}
		nonce, err = m.engine.Nonce(addr)
		return balance, err
	})
	if modErr != nil {
		return nil, modErr
	}
	res.Nonce = &nonce
	return res, nil
}

func (m *StakerModule) lookup(raw json.RawMessage, get func([20]byte) (*big.Int, error)) (*BalanceResult, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errModuleOffline
	}
	var params addressParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	addr, modErr := parseAddressParam("address", params.Address)
	if modErr != nil {
		return nil, modErr
	}
	balance, err := get(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return &BalanceResult{Address: crypto.FormatAddress(addr), Balance: balance.String()}, nil
}

// Status returns a snapshot of the pool.
func (m *StakerModule) Status() (*StatusResult, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errModuleOffline
	}
	snap, err := m.engine.Snapshot()
	if err != nil {
		return nil, mapError(err)
	}
	return formatStatus(snap), nil
}

// Events returns the most recent events, oldest first.
func (m *StakerModule) Events(raw json.RawMessage) ([]EventResult, *ModuleError) {
	if m == nil {
		return nil, errModuleOffline
	}
	var params eventsParams
	if len(raw) > 0 {
		if modErr := decodeParams(raw, &params); modErr != nil {
			return nil, modErr
		}
	}
	limit := defaultEventLimit
	if params.Limit != nil {
		if *params.Limit <= 0 {
			return nil, invalidParams("limit must be positive", *params.Limit)
		}
		limit = *params.Limit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	var records []events.Record
	if m.archive != nil {
		archived, err := m.archive.Recent(limit)
		if err != nil {
			return nil, mapError(err)
		}
		records = archived
	} else {
		records = m.events.Recent(limit)
	}
	out := make([]EventResult, 0, len(records))
	for _, rec := range records {
		out = append(out, EventResult{
			Sequence:   rec.Sequence,
			Type:       rec.Event.Type,
			Attributes: rec.Event.Attributes,
		})
	}
	return out, nil
}

func (m *StakerModule) succeed(operation string) {
	m.metrics.RecordOperation(operation, "success")
	m.refreshPool()
}

func (m *StakerModule) fail(operation string, err error) *ModuleError {
	modErr := mapError(err)
	outcome := "error"
	if data, ok := modErr.Data.(ErrorData); ok {
		outcome = data.Kind
	}
	m.metrics.RecordOperation(operation, outcome)
	return modErr
}

func (m *StakerModule) refreshPool() {
	snap, err := m.engine.Snapshot()
	if err != nil {
		return
	}
	m.metrics.SetPool(snap.Balance, snap.Status == staker.StatusCompleted)
}

func formatStatus(snap *staker.PoolSnapshot) *StatusResult {
	return &StatusResult{
		Address:              crypto.FormatAddress(snap.Address),
		Beneficiary:          crypto.FormatAddress(snap.Beneficiary),
		Deadline:             snap.Deadline,
		TimeLeft:             snap.TimeLeft,
		Threshold:            snap.Threshold.String(),
		Balance:              snap.Balance.String(),
		Status:               snap.Status.String(),
		Participants:         snap.Participants,
		BeneficiaryCompleted: snap.BeneficiaryCompleted,
	}
}

// mapError converts engine failures into JSON-RPC errors.
func mapError(err error) *ModuleError {
	switch {
	case errors.Is(err, staker.ErrForwardFailed):
		return &ModuleError{
			HTTPStatus: http.StatusBadGateway,
			Code:       codeServerError,
			Message:    err.Error(),
			Data:       ErrorData{Kind: staker.KindForwardFailed},
		}
	case staker.IsPrecondition(err):
		return &ModuleError{
			HTTPStatus: http.StatusConflict,
			Code:       codePreconditionFailed,
			Message:    err.Error(),
			Data:       ErrorData{Kind: staker.Kind(err)},
		}
	case errors.Is(err, state.ErrInsufficientFunds):
		return &ModuleError{
			HTTPStatus: http.StatusConflict,
			Code:       codePreconditionFailed,
			Message:    err.Error(),
			Data:       ErrorData{Kind: kindInsufficientFunds},
		}
	default:
		return &ModuleError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       codeServerError,
			Message:    "internal error",
			Data:       err.Error(),
		}
	}
}

func decodeParams(raw json.RawMessage, dst interface{}) *ModuleError {
	if len(raw) == 0 {
		return invalidParams("parameter object required", nil)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func parseAddressParam(name, raw string) ([20]byte, *ModuleError) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, invalidParams(name+" is required", nil)
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, invalidParams("invalid "+name, err.Error())
	}
	return addr, nil
}

func unauthorized(message, kind string) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: message, Data: ErrorData{Kind: kind}}
}

func invalidParams(message string, data interface{}) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}
