package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

// SQLStore keeps sessions in two relational tables. Row updates are atomic,
// so it needs none of the compensation machinery the redis path carries.
type SQLStore struct {
	ctx           context.Context
	pool          *pgxpool.Pool
	logQueryLimit int
}

const createGlobalTable = `CREATE TABLE IF NOT EXISTS global_table (
	xid VARCHAR(128) PRIMARY KEY,
	transaction_id BIGINT,
	status INT NOT NULL,
	application_id VARCHAR(32),
	transaction_service_group VARCHAR(32),
	transaction_name VARCHAR(128),
	timeout BIGINT,
	begin_time BIGINT,
	application_data VARCHAR(2000),
	gmt_create BIGINT,
	gmt_modified BIGINT
)`

const createBranchTable = `CREATE TABLE IF NOT EXISTS branch_table (
	branch_id BIGINT PRIMARY KEY,
	xid VARCHAR(128) NOT NULL,
	transaction_id BIGINT,
	resource_group_id VARCHAR(32),
	resource_id VARCHAR(256),
	client_id VARCHAR(64),
	branch_type INT,
	status INT,
	application_data VARCHAR(2000),
	gmt_create BIGINT,
	gmt_modified BIGINT
)`

const globalColumns = `xid, transaction_id, status, application_id, transaction_service_group,
	transaction_name, timeout, begin_time, application_data, gmt_create, gmt_modified`

const branchColumns = `branch_id, xid, transaction_id, resource_group_id, resource_id,
	client_id, branch_type, status, application_data, gmt_create, gmt_modified`

func NewSQLStore(link string, maxConns int) (*SQLStore, error) {
	config, err := pgxpool.ParseConfig(link)
	if err != nil {
		return nil, utils.WrapStoreErr("parse sql url", err)
	}
	config.MaxConns = int32(maxConns)
	ctx := context.Background()
	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, utils.WrapStoreErr("connect sql", err)
	}
	s := &SQLStore{ctx: ctx, pool: pool, logQueryLimit: configs.LogQueryLimit}
	for _, stmt := range []string{
		createGlobalTable,
		createBranchTable,
		"CREATE INDEX IF NOT EXISTS idx_status_gmt_modified ON global_table (status, gmt_modified)",
		"CREATE INDEX IF NOT EXISTS idx_branch_xid ON branch_table (xid)",
	} {
		if _, err = pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, utils.WrapStoreErr("init schema", err)
		}
	}
	configs.DPrintf("sql store ready, max conns %v", maxConns)
	return s, nil
}

func (s *SQLStore) WriteSession(op LogOperation, rec session.Storable) (bool, error) {
	switch op {
	case GlobalAdd, GlobalUpdate, GlobalRemove:
		g, ok := rec.(*session.GlobalSession)
		if !ok {
			return false, fmt.Errorf("%w: %v wants a global session record", utils.ErrInvalidArgument, op)
		}
		switch op {
		case GlobalAdd:
			return s.insertGlobal(g)
		case GlobalUpdate:
			return s.updateGlobal(g)
		default:
			return s.removeGlobal(g)
		}
	case BranchAdd, BranchUpdate, BranchRemove:
		b, ok := rec.(*session.BranchSession)
		if !ok {
			return false, fmt.Errorf("%w: %v wants a branch session record", utils.ErrInvalidArgument, op)
		}
		switch op {
		case BranchAdd:
			return s.insertBranch(b)
		case BranchUpdate:
			return s.updateBranch(b)
		default:
			return s.removeBranch(b)
		}
	default:
		return false, fmt.Errorf("%w: unknown log operation %d", utils.ErrInvalidArgument, uint8(op))
	}
}

func (s *SQLStore) insertGlobal(g *session.GlobalSession) (bool, error) {
	now := time.Now().UnixMilli()
	g.GmtCreate, g.GmtModified = now, now
	_, err := s.pool.Exec(s.ctx, `INSERT INTO global_table (`+globalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		g.XID, g.TransactionID, int(g.Status), g.ApplicationID, g.TransactionServiceGroup,
		g.TransactionName, g.Timeout, g.BeginTime, g.ApplicationData, g.GmtCreate, g.GmtModified)
	if err != nil {
		return false, utils.WrapStoreErr("global add", err)
	}
	return true, nil
}

func (s *SQLStore) updateGlobal(g *session.GlobalSession) (bool, error) {
	// the status guard keeps same-status updates from touching gmt_modified
	tag, err := s.pool.Exec(s.ctx,
		"UPDATE global_table SET status = $2, gmt_modified = $3 WHERE xid = $1 AND status <> $2",
		g.XID, int(g.Status), time.Now().UnixMilli())
	if err != nil {
		return false, utils.WrapStoreErr("global update", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists int
	err = s.pool.QueryRow(s.ctx, "SELECT 1 FROM global_table WHERE xid = $1", g.XID).Scan(&exists)
	if err == pgx.ErrNoRows {
		return false, fmt.Errorf("%w: global session %v", utils.ErrNotFound, g.XID)
	}
	if err != nil {
		return false, utils.WrapStoreErr("global update", err)
	}
	return true, nil
}

func (s *SQLStore) removeGlobal(g *session.GlobalSession) (bool, error) {
	_, err := s.pool.Exec(s.ctx, "DELETE FROM global_table WHERE xid = $1", g.XID)
	if err != nil {
		return false, utils.WrapStoreErr("global remove", err)
	}
	return true, nil
}

func (s *SQLStore) insertBranch(b *session.BranchSession) (bool, error) {
	now := time.Now().UnixMilli()
	b.GmtCreate, b.GmtModified = now, now
	_, err := s.pool.Exec(s.ctx, `INSERT INTO branch_table (`+branchColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.BranchID, b.XID, b.TransactionID, b.ResourceGroupID, b.ResourceID,
		b.ClientID, int(b.BranchType), int(b.Status), b.ApplicationData, b.GmtCreate, b.GmtModified)
	if err != nil {
		return false, utils.WrapStoreErr("branch add", err)
	}
	return true, nil
}

func (s *SQLStore) updateBranch(b *session.BranchSession) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	if b.ApplicationData != "" {
		tag, err = s.pool.Exec(s.ctx,
			"UPDATE branch_table SET status = $2, application_data = $3, gmt_modified = $4 WHERE branch_id = $1",
			b.BranchID, int(b.Status), b.ApplicationData, time.Now().UnixMilli())
	} else {
		tag, err = s.pool.Exec(s.ctx,
			"UPDATE branch_table SET status = $2, gmt_modified = $3 WHERE branch_id = $1",
			b.BranchID, int(b.Status), time.Now().UnixMilli())
	}
	if err != nil {
		return false, utils.WrapStoreErr("branch update", err)
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("%w: branch session %v", utils.ErrNotFound, b.BranchID)
	}
	return true, nil
}

func (s *SQLStore) removeBranch(b *session.BranchSession) (bool, error) {
	_, err := s.pool.Exec(s.ctx, "DELETE FROM branch_table WHERE branch_id = $1", b.BranchID)
	if err != nil {
		return false, utils.WrapStoreErr("branch remove", err)
	}
	return true, nil
}

func (s *SQLStore) scanGlobal(row pgx.Row) (*session.GlobalSession, error) {
	g := &session.GlobalSession{}
	var status int
	err := row.Scan(&g.XID, &g.TransactionID, &status, &g.ApplicationID, &g.TransactionServiceGroup,
		&g.TransactionName, &g.Timeout, &g.BeginTime, &g.ApplicationData, &g.GmtCreate, &g.GmtModified)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.WrapStoreErr("read global", err)
	}
	g.Status = session.GlobalStatus(status)
	return g, nil
}

func (s *SQLStore) ReadSession(xid string, withBranches bool) (*session.GlobalSession, error) {
	row := s.pool.QueryRow(s.ctx, "SELECT "+globalColumns+" FROM global_table WHERE xid = $1", xid)
	g, err := s.scanGlobal(row)
	if err != nil || g == nil {
		return nil, err
	}
	if withBranches {
		if g.Branches, err = s.FindBranchSessionByXid(xid); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *SQLStore) ReadFullSession(xid string) (*session.GlobalSession, error) {
	return s.ReadSession(xid, true)
}

func (s *SQLStore) ReadSessionByTransactionID(transactionID int64, withBranches bool) (*session.GlobalSession, error) {
	row := s.pool.QueryRow(s.ctx,
		"SELECT "+globalColumns+" FROM global_table WHERE transaction_id = $1", transactionID)
	g, err := s.scanGlobal(row)
	if err != nil || g == nil {
		return nil, err
	}
	if withBranches {
		if g.Branches, err = s.FindBranchSessionByXid(g.XID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *SQLStore) queryGlobals(sql string, args ...interface{}) ([]*session.GlobalSession, error) {
	rows, err := s.pool.Query(s.ctx, sql, args...)
	if err != nil {
		return nil, utils.WrapStoreErr("query globals", err)
	}
	defer rows.Close()
	res := make([]*session.GlobalSession, 0)
	for rows.Next() {
		g, err := s.scanGlobal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	if err = rows.Err(); err != nil {
		return nil, utils.WrapStoreErr("query globals", err)
	}
	return res, nil
}

func statusCodes(statuses []session.GlobalStatus) []int32 {
	codes := make([]int32, len(statuses))
	for i, st := range statuses {
		codes[i] = int32(st)
	}
	return codes
}

func (s *SQLStore) hydrate(sessions []*session.GlobalSession, withBranches bool) error {
	if !withBranches {
		return nil
	}
	for _, g := range sessions {
		branches, err := s.FindBranchSessionByXid(g.XID)
		if err != nil {
			return err
		}
		g.Branches = branches
	}
	return nil
}

func (s *SQLStore) ReadSessionByStatuses(statuses []session.GlobalStatus, withBranches bool) ([]*session.GlobalSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	sessions, err := s.queryGlobals(
		"SELECT "+globalColumns+" FROM global_table WHERE status = ANY($1) ORDER BY gmt_modified LIMIT $2",
		statusCodes(statuses), s.logQueryLimit)
	if err != nil {
		return nil, err
	}
	return sessions, s.hydrate(sessions, withBranches)
}

func (s *SQLStore) ReadSessionWithCondition(cond *SessionCondition) ([]*session.GlobalSession, error) {
	withBranches := !cond.LazyLoadBranch
	if cond.XID != "" {
		g, err := s.ReadSession(cond.XID, withBranches)
		if err != nil || g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, nil
	}
	if cond.TransactionID != 0 {
		g, err := s.ReadSessionByTransactionID(cond.TransactionID, withBranches)
		if err != nil || g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, nil
	}
	if len(cond.Statuses) > 0 {
		return s.ReadSessionByStatuses(cond.Statuses, withBranches)
	}
	if cond.Status != nil {
		return s.ReadSessionByStatuses([]session.GlobalStatus{*cond.Status}, withBranches)
	}
	return nil, nil
}

func (s *SQLStore) ReadSessionStatusByPage(param *SessionQueryParam) ([]*session.GlobalSession, error) {
	if param == nil || param.Status == nil || param.PageSize <= 0 {
		return nil, nil
	}
	pageNum := configs.Max(1, param.PageNum)
	sessions, err := s.queryGlobals(
		"SELECT "+globalColumns+" FROM global_table WHERE status = $1 ORDER BY gmt_modified OFFSET $2 LIMIT $3",
		int(*param.Status), (pageNum-1)*param.PageSize, param.PageSize)
	if err != nil {
		return nil, err
	}
	return sessions, s.hydrate(sessions, param.WithBranch)
}

func (s *SQLStore) FindGlobalSessionByPage(pageNum, pageSize int, withBranch bool) ([]*session.GlobalSession, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	pageNum = configs.Max(1, pageNum)
	sessions, err := s.queryGlobals(
		"SELECT "+globalColumns+" FROM global_table ORDER BY gmt_modified OFFSET $1 LIMIT $2",
		(pageNum-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	return sessions, s.hydrate(sessions, withBranch)
}

func (s *SQLStore) FindBranchSessionByXid(xid string) ([]*session.BranchSession, error) {
	rows, err := s.pool.Query(s.ctx,
		"SELECT "+branchColumns+" FROM branch_table WHERE xid = $1 ORDER BY branch_id", xid)
	if err != nil {
		return nil, utils.WrapStoreErr("query branches", err)
	}
	defer rows.Close()
	res := make([]*session.BranchSession, 0)
	for rows.Next() {
		b := &session.BranchSession{}
		var branchType, status int
		err = rows.Scan(&b.BranchID, &b.XID, &b.TransactionID, &b.ResourceGroupID, &b.ResourceID,
			&b.ClientID, &branchType, &status, &b.ApplicationData, &b.GmtCreate, &b.GmtModified)
		if err != nil {
			return nil, utils.WrapStoreErr("read branch", err)
		}
		b.BranchType = session.BranchType(branchType)
		b.Status = session.BranchStatus(status)
		res = append(res, b)
	}
	if err = rows.Err(); err != nil {
		return nil, utils.WrapStoreErr("query branches", err)
	}
	return res, nil
}

func (s *SQLStore) CountByGlobalSessions(statuses []session.GlobalStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var total int64
	err := s.pool.QueryRow(s.ctx,
		"SELECT COUNT(*) FROM global_table WHERE status = ANY($1)", statusCodes(statuses)).Scan(&total)
	if err != nil {
		return 0, utils.WrapStoreErr("count sessions", err)
	}
	return total, nil
}

func (s *SQLStore) Close() error {
	s.pool.Close()
	return nil
}
