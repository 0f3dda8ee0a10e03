package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakerchain/native/beneficiary"
	"stakerchain/native/staker"
)

func TestStakerPoolRoundTrip(t *testing.T) {
	mgr, db := newTestManager(t)

	_, ok, err := mgr.StakerPoolGet()
	require.NoError(t, err)
	require.False(t, ok)

	pool := &staker.Pool{
		Address:     addr(0xAA),
		Beneficiary: addr(0xBB),
		Deadline:    1_700_000_180,
		Threshold:   big.NewInt(1_000),
		CreatedAt:   1_700_000_000,
		Status:      staker.StatusOpen,
	}
	require.NoError(t, mgr.StakerPoolPut(pool))
	require.NoError(t, mgr.Commit())

	stored, ok, err := NewManager(db).StakerPoolGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pool.Address, stored.Address)
	require.Equal(t, pool.Beneficiary, stored.Beneficiary)
	require.Equal(t, pool.Deadline, stored.Deadline)
	require.Equal(t, pool.CreatedAt, stored.CreatedAt)
	require.Equal(t, 0, pool.Threshold.Cmp(stored.Threshold))
	require.Equal(t, staker.StatusOpen, stored.Status)
}

func TestStakerPoolPutRejectsInvalid(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.StakerPoolPut(&staker.Pool{Deadline: 10, CreatedAt: 20, Threshold: big.NewInt(1)})
	require.Error(t, err)
	err = mgr.StakerPoolPut(&staker.Pool{Threshold: big.NewInt(-1)})
	require.Error(t, err)
}

func TestStakerLedgerAndParticipants(t *testing.T) {
	mgr, _ := newTestManager(t)
	alice, bob := addr(0x01), addr(0x02)

	amount, err := mgr.StakerLedgerGet(alice)
	require.NoError(t, err)
	require.Zero(t, amount.Sign())

	require.NoError(t, mgr.StakerLedgerPut(alice, big.NewInt(5)))
	require.NoError(t, mgr.StakerLedgerPut(bob, big.NewInt(6)))
	require.NoError(t, mgr.StakerLedgerPut(alice, big.NewInt(9)))
	require.Error(t, mgr.StakerLedgerPut(alice, big.NewInt(-1)))

	amount, err = mgr.StakerLedgerGet(alice)
	require.NoError(t, err)
	require.Equal(t, "9", amount.String())

	participants, err := mgr.StakerParticipants()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{alice, bob}, participants)

	require.NoError(t, mgr.StakerLedgerPut(alice, big.NewInt(0)))
	amount, err = mgr.StakerLedgerGet(alice)
	require.NoError(t, err)
	require.Zero(t, amount.Sign())

	participants, err = mgr.StakerParticipants()
	require.NoError(t, err)
	require.Len(t, participants, 2)
}

func TestBeneficiaryRecordRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	target := addr(0xBE)

	_, ok, err := mgr.BeneficiaryGet(target)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.BeneficiaryPut(target, &beneficiary.Record{Completed: true, Received: big.NewInt(42)}))
	record, ok, err := mgr.BeneficiaryGet(target)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, record.Completed)
	require.Equal(t, "42", record.Received.String())

	require.Error(t, mgr.BeneficiaryPut(target, nil))
}
