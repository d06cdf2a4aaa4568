package storage

import (
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/redis/go-redis/v9"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

func (s *RedisStore) ReadSession(xid string, withBranches bool) (*session.GlobalSession, error) {
	transactionID, err := session.TransactionIDFromXID(xid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidArgument, err)
	}
	m, err := s.client().HGetAll(s.ctx, buildGlobalKey(transactionID)).Result()
	if err != nil {
		return nil, utils.WrapStoreErr("read session", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	g := decodeGlobal(m)
	if withBranches {
		if g.Branches, err = s.readBranchesByXid(xid); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *RedisStore) ReadFullSession(xid string) (*session.GlobalSession, error) {
	return s.ReadSession(xid, true)
}

func (s *RedisStore) ReadSessionByTransactionID(transactionID int64, withBranches bool) (*session.GlobalSession, error) {
	m, err := s.client().HGetAll(s.ctx, buildGlobalKey(transactionID)).Result()
	if err != nil {
		return nil, utils.WrapStoreErr("read session", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	g := decodeGlobal(m)
	if withBranches {
		if g.Branches, err = s.readBranchesByXid(g.XID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ReadSessionByStatuses pulls at most logQueryLimit sessions across the given
// status lists, splitting the cap evenly so no single status starves the rest.
func (s *RedisStore) ReadSessionByStatuses(statuses []session.GlobalStatus, withBranches bool) ([]*session.GlobalSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	limit := int64(configs.Max(1, s.logQueryLimit/len(statuses)))
	cmds := make([]*redis.StringSliceCmd, len(statuses))
	_, err := s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		for i, st := range statuses {
			cmds[i] = pipe.LRange(s.ctx, buildStatusKey(st), 0, limit-1)
		}
		return nil
	})
	if err != nil {
		return nil, utils.WrapStoreErr("read by statuses", err)
	}
	xids := make([]string, 0, int(limit)*len(statuses))
	for _, cmd := range cmds {
		xids = append(xids, cmd.Val()...)
	}
	return s.readSessionsParallel(xids, withBranches)
}

// readSessionsParallel hydrates many xids at once, keeping input order. Index
// entries pointing at sessions removed in the meantime are skipped.
func (s *RedisStore) readSessionsParallel(xids []string, withBranches bool) ([]*session.GlobalSession, error) {
	slots := make([]*session.GlobalSession, len(xids))
	errs := make([]error, len(xids))
	var wg sync.WaitGroup
	for i, xid := range xids {
		wg.Add(1)
		go func(i int, xid string) {
			defer wg.Done()
			slots[i], errs[i] = s.ReadSession(xid, withBranches)
		}(i, xid)
	}
	wg.Wait()
	res := make([]*session.GlobalSession, 0, len(xids))
	for i := range xids {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if slots[i] != nil {
			res = append(res, slots[i])
		}
	}
	return res, nil
}

func (s *RedisStore) ReadSessionWithCondition(cond *SessionCondition) ([]*session.GlobalSession, error) {
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

func (s *RedisStore) ReadSessionStatusByPage(param *SessionQueryParam) ([]*session.GlobalSession, error) {
	if param == nil || param.Status == nil {
		return nil, nil
	}
	pageNum := configs.Max(1, param.PageNum)
	pageSize := param.PageSize
	if pageSize <= 0 {
		return nil, nil
	}
	start := int64((pageNum - 1) * pageSize)
	end := int64(pageNum*pageSize - 1)
	xids, err := s.client().LRange(s.ctx, buildStatusKey(*param.Status), start, end).Result()
	if err != nil {
		return nil, utils.WrapStoreErr("read status page", err)
	}
	return s.readSessionsParallel(xids, param.WithBranch)
}

// FindGlobalSessionByPage walks the global hash keyspace with SCAN, always
// from cursor zero, paging by the count of distinct keys seen so far. SCAN may
// replay keys across iterations, so distinctness is tracked in a set.
func (s *RedisStore) FindGlobalSessionByPage(pageNum, pageSize int, withBranch bool) ([]*session.GlobalSession, error) {
	pageNum = configs.Max(1, pageNum)
	if pageSize <= 0 {
		return nil, nil
	}
	target := pageNum * pageSize
	seen := mapset.NewThreadUnsafeSet()
	ordered := make([]string, 0, target)
	cursor := uint64(0)
	for {
		batch, next, err := s.client().Scan(s.ctx, cursor, globalKeyPattern, int64(configs.ScanBatchHint)).Result()
		if err != nil {
			return nil, utils.WrapStoreErr("scan globals", err)
		}
		for _, key := range batch {
			if seen.Add(key) {
				ordered = append(ordered, key)
				if len(ordered) == target {
					return s.readGlobalKeys(ordered[(pageNum-1)*pageSize:], withBranch)
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	from := (pageNum - 1) * pageSize
	if from >= len(ordered) {
		return []*session.GlobalSession{}, nil
	}
	return s.readGlobalKeys(ordered[from:], withBranch)
}

func (s *RedisStore) readGlobalKeys(keys []string, withBranch bool) ([]*session.GlobalSession, error) {
	res := make([]*session.GlobalSession, 0, len(keys))
	for _, key := range keys {
		m, err := s.client().HGetAll(s.ctx, key).Result()
		if err != nil {
			return nil, utils.WrapStoreErr("read global", err)
		}
		if len(m) == 0 {
			continue
		}
		g := decodeGlobal(m)
		if withBranch {
			if g.Branches, err = s.readBranchesByXid(g.XID); err != nil {
				return nil, err
			}
		}
		res = append(res, g)
	}
	return res, nil
}

func (s *RedisStore) FindBranchSessionByXid(xid string) ([]*session.BranchSession, error) {
	return s.readBranchesByXid(xid)
}

// readBranchesByXid walks the branch list in fixed windows so a huge global
// never pulls one unbounded LRANGE, then hydrates each branch hash.
func (s *RedisStore) readBranchesByXid(xid string) ([]*session.BranchSession, error) {
	listKey := buildBranchListKey(xid)
	window := int64(configs.BranchListScanWindow)
	keys := make([]string, 0, window)
	for start := int64(0); ; start += window {
		part, err := s.client().LRange(s.ctx, listKey, start, start+window-1).Result()
		if err != nil {
			return nil, utils.WrapStoreErr("read branch list", err)
		}
		keys = append(keys, part...)
		if int64(len(part)) < window {
			break
		}
	}
	branches := make([]*session.BranchSession, 0, len(keys))
	if len(keys) == 0 {
		return branches, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(s.ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, utils.WrapStoreErr("read branches", err)
	}
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		branches = append(branches, decodeBranch(m))
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].BranchID < branches[j].BranchID
	})
	return branches, nil
}

func (s *RedisStore) CountByGlobalSessions(statuses []session.GlobalStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	cmds := make([]*redis.IntCmd, len(statuses))
	_, err := s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		for i, st := range statuses {
			cmds[i] = pipe.LLen(s.ctx, buildStatusKey(st))
		}
		return nil
	})
	if err != nil {
		return 0, utils.WrapStoreErr("count sessions", err)
	}
	var total int64
	for _, cmd := range cmds {
		total += cmd.Val()
	}
	return total, nil
}
