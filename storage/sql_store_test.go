package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/stretchr/testify/require"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

func sqlTestkit(t *testing.T) *SQLStore {
	t.Helper()
	link := os.Getenv("TC_TEST_SQL")
	if link == "" {
		link = configs.SQLLink
	}
	s, err := NewSQLStore(link, 10)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	ctx := context.Background()
	_, _ = s.pool.Exec(ctx, "TRUNCATE global_table")
	_, _ = s.pool.Exec(ctx, "TRUNCATE branch_table")
	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, "TRUNCATE global_table")
		_, _ = s.pool.Exec(ctx, "TRUNCATE branch_table")
		_ = s.Close()
	})
	return s
}

func TestSQLGlobalLifecycle(t *testing.T) {
	s := sqlTestkit(t)
	g := genGlobal(session.StatusBegin)

	ok, err := s.WriteSession(GlobalAdd, g)
	require.NoError(t, err)
	assert.Equal(t, ok, true)

	got, err := s.ReadSession(g.XID, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, got.TransactionID, g.TransactionID)
	assert.Equal(t, got.Status, session.StatusBegin)

	byTid, err := s.ReadSessionByTransactionID(g.TransactionID, false)
	require.NoError(t, err)
	require.NotNil(t, byTid)
	assert.Equal(t, byTid.XID, g.XID)

	g.Status = session.StatusCommitting
	ok, err = s.WriteSession(GlobalUpdate, g)
	require.NoError(t, err)
	assert.Equal(t, ok, true)

	// same status again keeps gmt_modified put
	before, err := s.ReadSession(g.XID, false)
	require.NoError(t, err)
	ok, err = s.WriteSession(GlobalUpdate, g)
	require.NoError(t, err)
	assert.Equal(t, ok, true)
	after, err := s.ReadSession(g.XID, false)
	require.NoError(t, err)
	assert.Equal(t, after.GmtModified, before.GmtModified)

	n, err := s.CountByGlobalSessions([]session.GlobalStatus{session.StatusCommitting})
	require.NoError(t, err)
	assert.Equal(t, n, int64(1))

	ok, err = s.WriteSession(GlobalRemove, g)
	require.NoError(t, err)
	assert.Equal(t, ok, true)
	got, err = s.ReadSession(g.XID, false)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLBranchLifecycle(t *testing.T) {
	s := sqlTestkit(t)
	g := genGlobal(session.StatusBegin)
	_, err := s.WriteSession(GlobalAdd, g)
	require.NoError(t, err)

	b := genBranch(g)
	_, err = s.WriteSession(BranchAdd, b)
	require.NoError(t, err)

	b.Status = session.BranchStatusPhaseOneDone
	_, err = s.WriteSession(BranchUpdate, b)
	require.NoError(t, err)

	full, err := s.ReadFullSession(g.XID)
	require.NoError(t, err)
	require.Len(t, full.Branches, 1)
	assert.Equal(t, full.Branches[0].Status, session.BranchStatusPhaseOneDone)

	_, err = s.WriteSession(BranchRemove, b)
	require.NoError(t, err)
	branches, err := s.FindBranchSessionByXid(g.XID)
	require.NoError(t, err)
	require.Len(t, branches, 0)
}

func TestSQLUpdateMissing(t *testing.T) {
	s := sqlTestkit(t)
	g := genGlobal(session.StatusCommitting)
	_, err := s.WriteSession(GlobalUpdate, g)
	require.Error(t, err)
	require.True(t, errors.Is(err, utils.ErrNotFound))

	b := genBranch(g)
	_, err = s.WriteSession(BranchUpdate, b)
	require.Error(t, err)
	require.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestSQLQueries(t *testing.T) {
	s := sqlTestkit(t)
	for i := 0; i < 6; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusCommitRetrying))
		require.NoError(t, err)
	}
	res, err := s.ReadSessionByStatuses([]session.GlobalStatus{session.StatusCommitRetrying}, false)
	require.NoError(t, err)
	require.Len(t, res, 6)

	st := session.StatusCommitRetrying
	page, err := s.ReadSessionStatusByPage(&SessionQueryParam{Status: &st, PageNum: 2, PageSize: 4})
	require.NoError(t, err)
	require.Len(t, page, 2)

	all, err := s.FindGlobalSessionByPage(1, 10, false)
	require.NoError(t, err)
	require.Len(t, all, 6)
}
