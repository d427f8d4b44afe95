package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dlanstake/native/stake"
)

func TestClaimRecordLazyDefault(t *testing.T) {
	mgr, tx, db := newTestManager(t)
	addr, _, err := stake.RecordAddress(testProgramID, stake.TrackPriority, testKey(5))
	require.NoError(t, err)

	rec, ok, err := mgr.ClaimRecordGet(addr)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, rec.Initialized())

	require.NoError(t, mgr.ClaimRecordPut(addr, &stake.Record{Watermark: 1_700_086_400}))
	require.NoError(t, tx.Commit())

	rec, ok, err = NewManager(db).ClaimRecordGet(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1_700_086_400), rec.Watermark)
}

func TestClaimRecordTracksDisjoint(t *testing.T) {
	std, _, err := stake.RecordAddress(testProgramID, stake.TrackStandard, testKey(5))
	require.NoError(t, err)
	vip, _, err := stake.RecordAddress(testProgramID, stake.TrackPriority, testKey(5))
	require.NoError(t, err)
	require.NotEqual(t, std, vip)
}
