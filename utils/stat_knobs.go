package utils

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Info carries the outcome of one store operation for throughput reporting.
type Info struct {
	IsCommit   bool
	RetryCount int
	Latency    time.Duration
}

func NewInfo() *Info {
	return &Info{RetryCount: 0}
}

// Stat aggregates operation infos across workload goroutines.
type Stat struct {
	mu        *sync.Mutex
	opInfos   []*Info
	beginTime time.Time
	endTime   time.Time
}

func NewStat() *Stat {
	return &Stat{
		mu:        &sync.Mutex{},
		opInfos:   make([]*Info, 0),
		beginTime: time.Now(),
		endTime:   time.Now(),
	}
}

func (st *Stat) Append(info *Info) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.endTime = time.Now()
	st.opInfos = append(st.opInfos, info)
}

// Log prints throughput, success rate, and latency percentiles.
func (st *Stat) Log() {
	st.mu.Lock()
	defer st.mu.Unlock()
	opCnt, success := 0, 0
	latencySum := time.Duration(0)
	latencies := make([]int, 0, len(st.opInfos))
	for _, tmp := range st.opInfos {
		if tmp == nil {
			continue
		}
		opCnt++
		if tmp.IsCommit {
			success++
		}
		latencySum += tmp.Latency
		latencies = append(latencies, int(tmp.Latency))
	}
	if opCnt == 0 {
		fmt.Println("no operations recorded")
		return
	}
	sort.Ints(latencies)
	elapsed := st.endTime.Sub(st.beginTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}
	p50 := time.Duration(latencies[len(latencies)/2])
	p99 := time.Duration(latencies[len(latencies)*99/100])
	fmt.Printf("%v ops, %.2f op/s, %.2f%% success, avg %v, p50 %v, p99 %v\n",
		opCnt, float64(opCnt)/elapsed, 100*float64(success)/float64(opCnt),
		latencySum/time.Duration(opCnt), p50, p99)
}
