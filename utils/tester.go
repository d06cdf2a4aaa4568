package utils

import (
	"sync/atomic"
)

var txnID = int64(0)

// NextTransactionID hands out process-unique transaction ids for tests and
// the smoke workload. Real deployments take ids from the coordinator.
func NextTransactionID() int64 {
	return atomic.AddInt64(&txnID, 1)
}

// SeedTransactionID raises the counter so generated ids stay above ids that
// already exist in the backing store.
func SeedTransactionID(floor int64) {
	for {
		cur := atomic.LoadInt64(&txnID)
		if cur >= floor || atomic.CompareAndSwapInt64(&txnID, cur, floor) {
			return
		}
	}
}
