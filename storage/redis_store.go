package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

// RedisStore keeps sessions in redis hashes plus index lists. Peers share the
// same key space, so the update path goes through WATCH/MULTI/EXEC and every
// multi-key write that falls short is compensated before returning.
type RedisStore struct {
	ctx           context.Context
	src           *Source
	logQueryLimit int
	journal       *LogManager
}

func NewRedisStore(src *Source) *RedisStore {
	s := &RedisStore{
		ctx:           context.Background(),
		src:           src,
		logQueryLimit: configs.LogQueryLimit,
	}
	if configs.EnableOpJournal {
		s.journal = NewLogManager("tc-oplog")
	}
	return s
}

// SetLogQueryLimit overrides the per-query result cap, mainly for tests.
func (s *RedisStore) SetLogQueryLimit(limit int) {
	s.logQueryLimit = configs.Max(1, limit)
}

func (s *RedisStore) client() *redis.Client {
	return s.src.Client()
}

func (s *RedisStore) WriteSession(op LogOperation, rec session.Storable) (bool, error) {
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

func (s *RedisStore) insertGlobal(g *session.GlobalSession) (bool, error) {
	now := time.Now().UnixMilli()
	g.GmtCreate, g.GmtModified = now, now
	globalKey := buildGlobalKey(g.TransactionID)
	_, err := s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(s.ctx, globalKey, encodeGlobal(g))
		pipe.RPush(s.ctx, buildStatusKey(g.Status), g.XID)
		return nil
	})
	if err != nil {
		return false, utils.WrapStoreErr("global add", err)
	}
	s.journalOp(GlobalAdd, globalKey, int(g.Status))
	configs.DPrintf("global add %v status %v", g.XID, g.Status)
	return true, nil
}

func (s *RedisStore) removeGlobal(g *session.GlobalSession) (bool, error) {
	globalKey := buildGlobalKey(g.TransactionID)
	xid, err := s.client().HGet(s.ctx, globalKey, fieldXID).Result()
	if err == redis.Nil || (err == nil && xid == "") {
		// already gone; removal is idempotent
		return true, nil
	}
	if err != nil {
		return false, utils.WrapStoreErr("global remove", err)
	}
	_, err = s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(s.ctx, buildStatusKey(g.Status), 0, xid)
		pipe.Del(s.ctx, globalKey)
		return nil
	})
	if err != nil {
		return false, utils.WrapStoreErr("global remove", err)
	}
	s.journalOp(GlobalRemove, globalKey, int(g.Status))
	configs.DPrintf("global remove %v", xid)
	return true, nil
}

// updateGlobal moves a global session to a new status: rewrite the hash, drop
// the xid from the old status list, append it to the new one. The three writes
// run inside WATCH/MULTI/EXEC; a conflicting peer aborting the exec means the
// session already advanced elsewhere, which counts as success. A partially
// applied multi is rolled back field by field before reporting failure.
func (s *RedisStore) updateGlobal(g *session.GlobalSession) (bool, error) {
	globalKey := buildGlobalKey(g.TransactionID)
	applied := false
	err := s.client().Watch(s.ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(s.ctx, globalKey, fieldStatus, fieldGmtModified).Result()
		if err != nil {
			return utils.WrapStoreErr("global update", err)
		}
		prevStatus, _ := vals[0].(string)
		if prevStatus == "" {
			return fmt.Errorf("%w: global session %v", utils.ErrNotFound, g.XID)
		}
		nextStatus := strconv.Itoa(int(g.Status))
		if prevStatus == nextStatus {
			// nothing to move; keep gmtModified untouched
			applied = true
			return nil
		}
		prevGmtModified, _ := vals[1].(string)

		var hmset *redis.BoolCmd
		var lrem, rpush *redis.IntCmd
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		_, execErr := tx.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
			hmset = pipe.HMSet(s.ctx, globalKey, fieldStatus, nextStatus, fieldGmtModified, now)
			lrem = pipe.LRem(s.ctx, buildStatusKeyRaw(prevStatus), 0, g.XID)
			rpush = pipe.RPush(s.ctx, buildStatusKey(g.Status), g.XID)
			return nil
		})
		if execErr == redis.TxFailedErr {
			// a peer advanced the session under our watch
			configs.Warn(false, "global update on "+g.XID+" lost the watch, peer took over")
			applied = true
			return nil
		}
		if execErr != nil {
			return utils.WrapStoreErr("global update", execErr)
		}

		hmsetOK := hmset.Val()
		lremN := lrem.Val()
		rpushN := rpush.Val()
		if hmsetOK && lremN > 0 && rpushN > 0 {
			applied = true
			s.journalOp(GlobalUpdate, globalKey, int(g.Status))
			return nil
		}
		s.compensateUpdate(globalKey, g, prevStatus, prevGmtModified, hmsetOK, lremN, rpushN)
		return nil
	}, globalKey)
	if err != nil {
		return false, err
	}
	if applied {
		configs.DPrintf("global update %v -> status %v", g.XID, g.Status)
	}
	return applied, nil
}

// compensateUpdate undoes whichever pieces of a failed status move landed.
// Each undo is best effort; the recovery sweep repairs anything left behind.
func (s *RedisStore) compensateUpdate(globalKey string, g *session.GlobalSession,
	prevStatus, prevGmtModified string, hmsetOK bool, lremN, rpushN int64) {
	if hmsetOK {
		err := s.client().Watch(s.ctx, func(tx *redis.Tx) error {
			xid, err := tx.HGet(s.ctx, globalKey, fieldXID).Result()
			if err == redis.Nil || (err == nil && xid == "") {
				return nil
			}
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
				pipe.HMSet(s.ctx, globalKey, fieldStatus, prevStatus, fieldGmtModified, prevGmtModified)
				return nil
			})
			if err == redis.TxFailedErr {
				// a peer owns the hash now, leave its state alone
				return nil
			}
			return err
		}, globalKey)
		configs.Warn(err == nil, "could not restore hash fields for "+g.XID)
	}
	if lremN > 0 {
		err := s.client().RPush(s.ctx, buildStatusKeyRaw(prevStatus), g.XID).Err()
		configs.Warn(err == nil, "could not restore old status entry for "+g.XID)
	}
	if rpushN > 0 {
		err := s.client().LRem(s.ctx, buildStatusKey(g.Status), 0, g.XID).Err()
		configs.Warn(err == nil, "could not drop new status entry for "+g.XID)
	}
}

func (s *RedisStore) insertBranch(b *session.BranchSession) (bool, error) {
	now := time.Now().UnixMilli()
	b.GmtCreate, b.GmtModified = now, now
	branchKey := buildBranchKey(b.BranchID)
	_, err := s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(s.ctx, branchKey, encodeBranch(b))
		pipe.RPush(s.ctx, buildBranchListKey(b.XID), branchKey)
		return nil
	})
	if err != nil {
		return false, utils.WrapStoreErr("branch add", err)
	}
	s.journalOp(BranchAdd, branchKey, int(b.Status))
	configs.DPrintf("branch add %v under %v", b.BranchID, b.XID)
	return true, nil
}

func (s *RedisStore) updateBranch(b *session.BranchSession) (bool, error) {
	branchKey := buildBranchKey(b.BranchID)
	prev, err := s.client().HGet(s.ctx, branchKey, fieldStatus).Result()
	if err == redis.Nil || (err == nil && prev == "") {
		return false, fmt.Errorf("%w: branch session %v", utils.ErrNotFound, b.BranchID)
	}
	if err != nil {
		return false, utils.WrapStoreErr("branch update", err)
	}
	fields := []interface{}{
		fieldStatus, strconv.Itoa(int(b.Status)),
		fieldGmtModified, strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if b.ApplicationData != "" {
		fields = append(fields, fieldApplicationData, b.ApplicationData)
	}
	if err = s.client().HMSet(s.ctx, branchKey, fields...).Err(); err != nil {
		return false, utils.WrapStoreErr("branch update", err)
	}
	s.journalOp(BranchUpdate, branchKey, int(b.Status))
	configs.DPrintf("branch update %v -> status %v", b.BranchID, b.Status)
	return true, nil
}

func (s *RedisStore) removeBranch(b *session.BranchSession) (bool, error) {
	branchKey := buildBranchKey(b.BranchID)
	xid, err := s.client().HGet(s.ctx, branchKey, fieldXID).Result()
	if err == redis.Nil || (err == nil && xid == "") {
		return true, nil
	}
	if err != nil {
		return false, utils.WrapStoreErr("branch remove", err)
	}
	_, err = s.client().Pipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(s.ctx, buildBranchListKey(b.XID), 0, branchKey)
		pipe.Del(s.ctx, branchKey)
		return nil
	})
	if err != nil {
		return false, utils.WrapStoreErr("branch remove", err)
	}
	s.journalOp(BranchRemove, branchKey, int(b.Status))
	configs.DPrintf("branch remove %v from %v", b.BranchID, b.XID)
	return true, nil
}

func (s *RedisStore) journalOp(op LogOperation, key string, status int) {
	if s.journal != nil {
		s.journal.WriteOp(op, key, status)
	}
}

func (s *RedisStore) Close() error {
	if s.journal != nil {
		s.journal.Close()
	}
	return s.src.Close()
}
