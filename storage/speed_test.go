package storage

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/pingcap/go-ycsb/pkg/generator"
	"github.com/stretchr/testify/require"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

const (
	speedTestSessions = 200
	speedTestThreads  = 8
	speedTestOpsPer   = 500
)

// TestSessionThroughput hammers the store with skewed status updates the way
// a busy coordinator would, then prints throughput and latency percentiles.
func TestSessionThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("throughput run skipped in short mode")
	}
	s := Testkit(t)
	sessions := make([]*session.GlobalSession, speedTestSessions)
	for i := range sessions {
		sessions[i] = genGlobal(session.StatusBegin)
		_, err := s.WriteSession(GlobalAdd, sessions[i])
		require.NoError(t, err)
	}

	transitions := []session.GlobalStatus{
		session.StatusCommitting,
		session.StatusAsyncCommitting,
		session.StatusCommitRetrying,
		session.StatusRollbacking,
	}
	stat := utils.NewStat()
	finish := make(chan bool)
	for th := 0; th < speedTestThreads; th++ {
		go func(seed int64) {
			r := rand.New(rand.NewSource(seed*11 + 31))
			zip := generator.NewZipfianWithRange(0, int64(speedTestSessions-1), configs.WorkloadSkewness)
			for i := 0; i < speedTestOpsPer; i++ {
				target := sessions[int(zip.Next(r))]
				cp := *target
				cp.Status = transitions[r.Intn(len(transitions))]
				st := time.Now()
				ok, err := s.WriteSession(GlobalUpdate, &cp)
				stat.Append(&utils.Info{IsCommit: ok && err == nil, Latency: time.Since(st)})
			}
			finish <- true
		}(int64(th))
	}
	for th := 0; th < speedTestThreads; th++ {
		<-finish
	}
	stat.Log()

	// whatever the interleaving, every session sits in exactly one list
	total, err := s.CountByGlobalSessions([]session.GlobalStatus{
		session.StatusBegin, session.StatusCommitting, session.StatusAsyncCommitting,
		session.StatusCommitRetrying, session.StatusRollbacking,
	})
	require.NoError(t, err)
	require.Equal(t, int64(speedTestSessions), total)
	fmt.Println("post-run index entries =", total)
}
