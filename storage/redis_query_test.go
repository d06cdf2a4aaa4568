package storage

import (
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/stretchr/testify/require"

	"TC/session"
)

func TestReadSessionByStatusesSplitsLimit(t *testing.T) {
	s := Testkit(t)
	s.SetLogQueryLimit(10)
	for i := 0; i < 8; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusCommitRetrying))
		require.NoError(t, err)
	}
	for i := 0; i < 8; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusRollbackRetrying))
		require.NoError(t, err)
	}

	// limit 10 over two statuses means five sessions each
	res, err := s.ReadSessionByStatuses(
		[]session.GlobalStatus{session.StatusCommitRetrying, session.StatusRollbackRetrying}, false)
	require.NoError(t, err)
	require.Len(t, res, 10)
	perStatus := map[session.GlobalStatus]int{}
	for _, g := range res {
		perStatus[g.Status]++
	}
	assert.Equal(t, perStatus[session.StatusCommitRetrying], 5)
	assert.Equal(t, perStatus[session.StatusRollbackRetrying], 5)

	// per-status share never drops below one
	s.SetLogQueryLimit(1)
	res, err = s.ReadSessionByStatuses(
		[]session.GlobalStatus{session.StatusCommitRetrying, session.StatusRollbackRetrying}, false)
	require.NoError(t, err)
	require.Len(t, res, 2)

	res, err = s.ReadSessionByStatuses(nil, false)
	require.NoError(t, err)
	require.Len(t, res, 0)
}

func TestReadSessionByStatusesKeepsInsertionOrder(t *testing.T) {
	s := Testkit(t)
	want := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		g := genGlobal(session.StatusTimeoutRollbacking)
		want = append(want, g.XID)
		_, err := s.WriteSession(GlobalAdd, g)
		require.NoError(t, err)
	}
	res, err := s.ReadSessionByStatuses([]session.GlobalStatus{session.StatusTimeoutRollbacking}, false)
	require.NoError(t, err)
	require.Len(t, res, 4)
	for i, g := range res {
		assert.Equal(t, g.XID, want[i])
	}
}

func TestReadSessionWithCondition(t *testing.T) {
	s := Testkit(t)
	g := genGlobal(session.StatusBegin)
	_, err := s.WriteSession(GlobalAdd, g)
	require.NoError(t, err)
	b := genBranch(g)
	_, err = s.WriteSession(BranchAdd, b)
	require.NoError(t, err)

	res, err := s.ReadSessionWithCondition(&SessionCondition{XID: g.XID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].Branches, 1)

	res, err = s.ReadSessionWithCondition(&SessionCondition{XID: g.XID, LazyLoadBranch: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].Branches, 0)

	res, err = s.ReadSessionWithCondition(&SessionCondition{TransactionID: g.TransactionID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, res[0].XID, g.XID)

	st := session.StatusBegin
	res, err = s.ReadSessionWithCondition(&SessionCondition{Status: &st})
	require.NoError(t, err)
	require.Len(t, res, 1)

	res, err = s.ReadSessionWithCondition(&SessionCondition{XID: "203.0.113.7:8091:404404"})
	require.NoError(t, err)
	require.Len(t, res, 0)

	res, err = s.ReadSessionWithCondition(&SessionCondition{})
	require.NoError(t, err)
	require.Len(t, res, 0)
}

func TestReadSessionStatusByPage(t *testing.T) {
	s := Testkit(t)
	xids := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		g := genGlobal(session.StatusAsyncCommitting)
		xids = append(xids, g.XID)
		_, err := s.WriteSession(GlobalAdd, g)
		require.NoError(t, err)
	}
	st := session.StatusAsyncCommitting
	page1, err := s.ReadSessionStatusByPage(&SessionQueryParam{Status: &st, PageNum: 1, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, page1[0].XID, xids[0])

	page3, err := s.ReadSessionStatusByPage(&SessionQueryParam{Status: &st, PageNum: 3, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, page3[0].XID, xids[6])

	page4, err := s.ReadSessionStatusByPage(&SessionQueryParam{Status: &st, PageNum: 4, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page4, 0)

	none, err := s.ReadSessionStatusByPage(&SessionQueryParam{PageNum: 1, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, none, 0)
}

func TestFindGlobalSessionByPage(t *testing.T) {
	s := Testkit(t)
	total := 25
	for i := 0; i < total; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusBegin))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	fetched := 0
	for page := 1; ; page++ {
		res, err := s.FindGlobalSessionByPage(page, 10, false)
		require.NoError(t, err)
		for _, g := range res {
			// scan pagination must never hand the same session out twice
			require.False(t, seen[g.XID])
			seen[g.XID] = true
		}
		fetched += len(res)
		if len(res) < 10 {
			break
		}
	}
	assert.Equal(t, fetched, total)

	// a page past the end is empty, not an error
	res, err := s.FindGlobalSessionByPage(10, 10, false)
	require.NoError(t, err)
	require.Len(t, res, 0)
}

func TestCountByGlobalSessions(t *testing.T) {
	s := Testkit(t)
	for i := 0; i < 3; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusBegin))
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := s.WriteSession(GlobalAdd, genGlobal(session.StatusRollbacking))
		require.NoError(t, err)
	}
	n, err := s.CountByGlobalSessions([]session.GlobalStatus{session.StatusBegin, session.StatusRollbacking})
	require.NoError(t, err)
	assert.Equal(t, n, int64(5))
	n, err = s.CountByGlobalSessions(nil)
	require.NoError(t, err)
	assert.Equal(t, n, int64(0))
}

func TestReadSessionInvalidXid(t *testing.T) {
	s := Testkit(t)
	_, err := s.ReadSession("garbage", false)
	require.Error(t, err)
}
