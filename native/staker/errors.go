package staker

import "errors"

var (
	ErrDeadlinePassed      = errors.New("staker: deadline is already reached")
	ErrDeadlineNotReached  = errors.New("staker: deadline is not reached yet")
	ErrAlreadyCompleted    = errors.New("staker: staking process already completed")
	ErrThresholdNotReached = errors.New("staker: threshold not reached")
	ErrNoBalance           = errors.New("staker: you don't have balance to withdraw")
	ErrForwardFailed       = errors.New("staker: forwarding to beneficiary failed")
	ErrInvalidAmount       = errors.New("staker: amount must be positive")
	ErrExecutionInProgress = errors.New("staker: execution in progress")
	ErrInvalidParticipant  = errors.New("staker: pool and beneficiary accounts cannot stake")
	ErrInvalidNonce        = errors.New("staker: invalid nonce")

	errNilState       = errors.New("staker: state not configured")
	errNilBeneficiary = errors.New("staker: beneficiary not configured")
)

// Error kinds reported to callers that cannot use errors.Is, such as RPC clients.
const (
	KindDeadlinePassed      = "DeadlinePassed"
	KindDeadlineNotReached  = "DeadlineNotReached"
	KindAlreadyCompleted    = "AlreadyCompleted"
	KindThresholdNotReached = "ThresholdNotReached"
	KindNoBalance           = "NoBalance"
	KindForwardFailed       = "ForwardFailed"
	KindInvalidAmount       = "InvalidAmount"
	KindExecutionInProgress = "ExecutionInProgress"
	KindInvalidParticipant  = "InvalidParticipant"
	KindInvalidNonce        = "InvalidNonce"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrForwardFailed, KindForwardFailed},
	{ErrDeadlinePassed, KindDeadlinePassed},
	{ErrDeadlineNotReached, KindDeadlineNotReached},
	{ErrAlreadyCompleted, KindAlreadyCompleted},
	{ErrThresholdNotReached, KindThresholdNotReached},
	{ErrNoBalance, KindNoBalance},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrExecutionInProgress, KindExecutionInProgress},
	{ErrInvalidParticipant, KindInvalidParticipant},
	{ErrInvalidNonce, KindInvalidNonce},
}

// Kind returns the stable kind name of a precondition failure, or "" when err
// is not one of the engine's sentinel errors.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}
