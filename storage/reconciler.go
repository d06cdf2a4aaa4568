package storage

import (
	"context"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/viney-shih/go-lock"

	"TC/configs"
	"TC/utils"
)

// SweepReport summarizes one reconciliation pass over the status indices.
type SweepReport struct {
	Skipped       bool
	ScannedGlobal int
	Removed       int
	Deduped       int
	Restored      int
}

// Reconciler repairs the status index lists against the global session hashes.
// The hashes are the source of truth; a crash between the pieces of a
// multi-key write can leave an index entry without a hash, a hash without an
// index entry, or an entry in the wrong list. The sweep runs best effort and
// races live traffic, so any entry it misplaces is fixed by the next pass.
type Reconciler struct {
	store *RedisStore
	latch lock.Mutex
}

func NewReconciler(store *RedisStore) *Reconciler {
	return &Reconciler{
		store: store,
		latch: lock.NewCASMutex(),
	}
}

// Run sweeps on a fixed interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			report, err := r.SweepOnce()
			if err != nil {
				configs.Warn(false, "reconcile sweep failed: "+err.Error())
				continue
			}
			configs.DPrintf("reconcile sweep: %v", configs.JToString(report))
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce runs a single three-pass repair. Overlapping sweeps are skipped
// via a try-lock instead of queueing up.
func (r *Reconciler) SweepOnce() (SweepReport, error) {
	report := SweepReport{}
	if !r.latch.TryLock() {
		report.Skipped = true
		return report, nil
	}
	defer r.latch.Unlock()

	ctx := r.store.ctx
	client := r.store.client()

	// pass 1: every live global hash, xid -> status code
	want := make(map[string]int)
	cursor := uint64(0)
	for {
		batch, next, err := client.Scan(ctx, cursor, globalKeyPattern, int64(configs.ScanBatchHint)).Result()
		if err != nil {
			return report, utils.WrapStoreErr("reconcile scan", err)
		}
		for _, key := range batch {
			vals, err := client.HMGet(ctx, key, fieldXID, fieldStatus).Result()
			if err != nil {
				return report, utils.WrapStoreErr("reconcile read", err)
			}
			xid, _ := vals[0].(string)
			statusStr, _ := vals[1].(string)
			if xid == "" {
				continue
			}
			status, err := strconv.Atoi(statusStr)
			if err != nil {
				continue
			}
			if _, dup := want[xid]; !dup {
				want[xid] = status
				report.ScannedGlobal++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	// pass 2: drop zombie, misplaced, and duplicate index entries
	seen := mapset.NewThreadUnsafeSet()
	for code := 0; code <= configs.MaxStatusCode; code++ {
		listKey := buildStatusKeyRaw(strconv.Itoa(code))
		xids, err := client.LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return report, utils.WrapStoreErr("reconcile list", err)
		}
		counts := make(map[string]int, len(xids))
		for _, xid := range xids {
			counts[xid]++
		}
		for xid, n := range counts {
			status, live := want[xid]
			if !live || status != code {
				if err = client.LRem(ctx, listKey, 0, xid).Err(); err != nil {
					return report, utils.WrapStoreErr("reconcile lrem", err)
				}
				report.Removed += n
				continue
			}
			if n > 1 {
				// collapse duplicates to a single entry
				if err = client.LRem(ctx, listKey, 0, xid).Err(); err != nil {
					return report, utils.WrapStoreErr("reconcile lrem", err)
				}
				if err = client.RPush(ctx, listKey, xid).Err(); err != nil {
					return report, utils.WrapStoreErr("reconcile rpush", err)
				}
				report.Deduped += n - 1
			}
			seen.Add(xid)
		}
	}

	// pass 3: re-add live sessions missing from their status list
	for xid, status := range want {
		if seen.Contains(xid) {
			continue
		}
		listKey := buildStatusKeyRaw(strconv.Itoa(status))
		if err := client.RPush(ctx, listKey, xid).Err(); err != nil {
			return report, utils.WrapStoreErr("reconcile restore", err)
		}
		report.Restored++
	}
	return report, nil
}
