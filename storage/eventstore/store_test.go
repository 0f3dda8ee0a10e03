package eventstore

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stakerchain/core/events"
	"stakerchain/core/types"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "events.db"))

	for i := int64(1); i <= 3; i++ {
		store.Emit(events.Transfer{Amount: big.NewInt(i), Reason: "stake"})
	}
	store.Emit(bareEvent{})

	all, err := store.Recent(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "1", all[0].Event.Attributes["amount"])
	require.Equal(t, "3", all[2].Event.Attributes["amount"])
	require.Less(t, all[0].Sequence, all[2].Sequence)

	newest, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	require.Equal(t, "2", newest[0].Event.Attributes["amount"])
	require.Equal(t, events.TypeTransfer, newest[1].Event.Type)
}

func TestHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	first, err := Open(path, nil)
	require.NoError(t, err)
	seq, err := first.Append(&types.Event{Type: "staker.staked", Attributes: map[string]string{"amount": "5"}})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	recent, err := second.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, seq, recent[0].Sequence)
	require.Equal(t, "5", recent[0].Event.Attributes["amount"])
}

func TestOpenValidation(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, errDSNRequired)
	require.True(t, isPostgres("postgresql://user@host/db"))
	require.False(t, isPostgres("/var/lib/stakerd/events.db"))

	store := openTestStore(t, filepath.Join(t.TempDir(), "events.db"))
	_, err = store.Append(nil)
	require.Error(t, err)
}
