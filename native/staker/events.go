package staker

import (
	"math/big"

	"stakerchain/core/types"
	"stakerchain/crypto"
)

const (
	EventTypeStaked    = "staker.staked"
	EventTypeExecuted  = "staker.executed"
	EventTypeWithdrawn = "staker.withdrawn"
)

type stakerEvent struct {
	evt *types.Event
}

func (e stakerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e stakerEvent) Event() *types.Event { return e.evt }

// NewStakedEvent returns the payload emitted for every successful deposit.
func NewStakedEvent(participant [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeStaked, Attributes: map[string]string{
		"participant": crypto.FormatAddress(participant),
		"amount":      cloneBigInt(amount).String(),
	}}
}

// NewExecutedEvent returns the payload emitted when the pool is forwarded.
func NewExecutedEvent(pool, beneficiary [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeExecuted, Attributes: map[string]string{
		"pool":        crypto.FormatAddress(pool),
		"beneficiary": crypto.FormatAddress(beneficiary),
		"amount":      cloneBigInt(amount).String(),
	}}
}

// NewWithdrawnEvent returns the payload emitted when a stake is refunded.
func NewWithdrawnEvent(target [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeWithdrawn, Attributes: map[string]string{
		"target": crypto.FormatAddress(target),
		"amount": cloneBigInt(amount).String(),
	}}
}
