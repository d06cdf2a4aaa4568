package storage

import (
	"context"
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/stretchr/testify/require"

	"TC/session"
)

func TestSweepRemovesZombieEntries(t *testing.T) {
	s := Testkit(t)
	ctx := context.Background()

	// an index entry without a backing hash, as left by a crash between the
	// hash delete and the list cleanup
	err := s.client().RPush(ctx, buildStatusKey(session.StatusBegin), "10.0.0.9:8091:999999").Err()
	require.NoError(t, err)

	report, err := NewReconciler(s).SweepOnce()
	require.NoError(t, err)
	assert.Equal(t, report.Removed, 1)

	n, err := s.CountByGlobalSessions([]session.GlobalStatus{session.StatusBegin})
	require.NoError(t, err)
	assert.Equal(t, n, int64(0))
}

func TestSweepMovesMisplacedEntries(t *testing.T) {
	s := Testkit(t)
	ctx := context.Background()
	g := genGlobal(session.StatusBegin)
	_, err := s.WriteSession(GlobalAdd, g)
	require.NoError(t, err)

	// simulate a torn update: hash advanced, index entry still in the old list
	err = s.client().HSet(ctx, buildGlobalKey(g.TransactionID), fieldStatus, "2").Err()
	require.NoError(t, err)

	report, err := NewReconciler(s).SweepOnce()
	require.NoError(t, err)
	assert.Equal(t, report.Removed, 1)
	assert.Equal(t, report.Restored, 1)

	n, err := s.CountByGlobalSessions([]session.GlobalStatus{session.StatusCommitting})
	require.NoError(t, err)
	assert.Equal(t, n, int64(1))
	n, err = s.CountByGlobalSessions([]session.GlobalStatus{session.StatusBegin})
	require.NoError(t, err)
	assert.Equal(t, n, int64(0))
}

func TestSweepRestoresMissingEntries(t *testing.T) {
	s := Testkit(t)
	ctx := context.Background()
	g := genGlobal(session.StatusRollbacking)
	_, err := s.WriteSession(GlobalAdd, g)
	require.NoError(t, err)
	err = s.client().Del(ctx, buildStatusKey(session.StatusRollbacking)).Err()
	require.NoError(t, err)

	report, err := NewReconciler(s).SweepOnce()
	require.NoError(t, err)
	assert.Equal(t, report.Restored, 1)

	res, err := s.ReadSessionByStatuses([]session.GlobalStatus{session.StatusRollbacking}, false)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, res[0].XID, g.XID)
}

func TestSweepCollapsesDuplicates(t *testing.T) {
	s := Testkit(t)
	ctx := context.Background()
	g := genGlobal(session.StatusCommitting)
	_, err := s.WriteSession(GlobalAdd, g)
	require.NoError(t, err)
	err = s.client().RPush(ctx, buildStatusKey(session.StatusCommitting), g.XID).Err()
	require.NoError(t, err)

	report, err := NewReconciler(s).SweepOnce()
	require.NoError(t, err)
	assert.Equal(t, report.Deduped, 1)

	n, err := s.CountByGlobalSessions([]session.GlobalStatus{session.StatusCommitting})
	require.NoError(t, err)
	assert.Equal(t, n, int64(1))
}

func TestSweepCleanState(t *testing.T) {
	s := Testkit(t)
	for i := 0; i < 5; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusBegin))
		require.NoError(t, err)
	}
	report, err := NewReconciler(s).SweepOnce()
	require.NoError(t, err)
	assert.Equal(t, report.ScannedGlobal, 5)
	assert.Equal(t, report.Removed, 0)
	assert.Equal(t, report.Deduped, 0)
	assert.Equal(t, report.Restored, 0)
}
