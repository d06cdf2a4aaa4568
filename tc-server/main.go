package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/pingcap/go-ycsb/pkg/generator"

	"TC/configs"
	"TC/session"
	"TC/storage"
	"TC/utils"
)

var (
	node       string
	store      string
	redisLink  string
	sqlLink    string
	mongoLink  string
	configFile string
	limit      int
	pool       int
	once       bool
	sweepSec   int
	con        int
	ops        int
	sk         float64
	journal    bool
	debug      bool
	cpuProfile string
	memProfile string
)

func usage() {
	flag.PrintDefaults()
}

func init() {
	flag.StringVar(&node, "node", "recover", "the role to start: 'recover' for the repair sweeper, 'smoke' for a workload run")
	flag.StringVar(&store, "store", configs.RedisStore, "the session store backend (redis, sql, or mongo)")
	flag.StringVar(&redisLink, "redis", "", "the redis url for the session store")
	flag.StringVar(&sqlLink, "sql", "", "the postgres url for the session store")
	flag.StringVar(&mongoLink, "mongo", "", "the mongodb url for the session store")
	flag.StringVar(&configFile, "config", "", "load store options from a property file")
	flag.IntVar(&limit, "limit", configs.DefaultLogQueryLimit, "the max sessions returned by one recovery query")
	flag.IntVar(&pool, "pool", 100, "the redis connection pool size")
	flag.BoolVar(&once, "once", false, "run a single repair sweep and exit")
	flag.IntVar(&sweepSec, "interval", int(configs.DefaultSweepInterval/time.Second), "seconds between repair sweeps")
	flag.IntVar(&con, "c", 8, "the number of smoke workload clients")
	flag.IntVar(&ops, "n", 1000, "the operations per smoke client")
	flag.Float64Var(&sk, "skew", configs.WorkloadSkewness, "the skew factor for the smoke workload zipf")
	flag.BoolVar(&journal, "journal", false, "append an operation journal under the log dir")
	flag.BoolVar(&debug, "debug", false, "log debug info into the debug file")
	flag.StringVar(&cpuProfile, "cpu_prof", "", "write cpu profiling")
	flag.StringVar(&memProfile, "mem_prof", "", "write memory profiling")
	flag.Usage = usage
}

func main() {
	flag.Parse()
	if debug {
		configs.ShowDebugInfo = true
		configs.ShowWarnings = true
		configs.ShowTestInfo = true
		f, err := os.OpenFile(fmt.Sprintf("logs/logfiles_%v.log", time.Now().String()), os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			log.Fatalf("error opening file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.Writer(f))
	}
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	if configFile != "" {
		configs.CheckError(configs.LoadProperties(configFile))
	}
	// flags passed on the command line win over the property file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			configs.StoreType = store
		case "redis":
			configs.RedisLink = redisLink
		case "sql":
			configs.SQLLink = sqlLink
		case "mongo":
			configs.MongoLink = mongoLink
		case "limit":
			configs.LogQueryLimit = configs.Max(1, limit)
		case "pool":
			configs.RedisPoolSize = pool
		case "journal":
			configs.EnableOpJournal = journal
		case "interval":
			configs.SweepInterval = time.Duration(sweepSec) * time.Second
		}
	})

	mgr, err := storage.GetStoreManager()
	configs.CheckError(err)
	defer mgr.Close()

	switch node {
	case "recover":
		runRecover(mgr)
	case "smoke":
		runSmoke(mgr)
	default:
		panic("invalid parameter for node, 'recover' for the sweeper or 'smoke' for a workload run")
	}

	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}

// runRecover repairs status indices, either once or on a timer until killed.
// Only the redis store needs it; sql and mongo rows never tear.
func runRecover(mgr storage.TransactionStoreManager) {
	rs, ok := mgr.(*storage.RedisStore)
	if !ok {
		fmt.Println("store", configs.StoreType, "keeps sessions consistent on its own, nothing to repair")
		return
	}
	rec := storage.NewReconciler(rs)
	if once {
		report, err := rec.SweepOnce()
		configs.CheckError(err)
		fmt.Println("sweep done:", configs.JToString(report))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	fmt.Println("sweeping every", configs.SweepInterval)
	rec.Run(ctx, configs.SweepInterval)
}

// runSmoke drives a randomized session workload against the configured store
// and prints throughput numbers, the way a coordinator under load would use it.
func runSmoke(mgr storage.TransactionStoreManager) {
	utils.SeedTransactionID(time.Now().UnixMilli() % int64(1e12))
	sessions := make([]*session.GlobalSession, configs.Max(ops/10, 16))
	for i := range sessions {
		tid := utils.NextTransactionID()
		sessions[i] = &session.GlobalSession{
			XID:                     session.BuildXID("127.0.0.1", 8091, tid),
			TransactionID:           tid,
			Status:                  session.StatusBegin,
			ApplicationID:           "smoke-app",
			TransactionServiceGroup: "default_tx_group",
			TransactionName:         "smoke",
			Timeout:                 60000,
			BeginTime:               time.Now().UnixMilli(),
		}
		_, err := mgr.WriteSession(storage.GlobalAdd, sessions[i])
		configs.CheckError(err)
	}

	transitions := []session.GlobalStatus{
		session.StatusCommitting,
		session.StatusAsyncCommitting,
		session.StatusCommitRetrying,
		session.StatusRollbacking,
		session.StatusRollbackRetrying,
	}
	stat := utils.NewStat()
	finish := make(chan bool)
	for th := 0; th < con; th++ {
		go func(seed int64) {
			r := rand.New(rand.NewSource(seed*11 + 31))
			zip := generator.NewZipfianWithRange(0, int64(len(sessions)-1), sk)
			for i := 0; i < ops; i++ {
				target := sessions[int(zip.Next(r))]
				cp := *target
				cp.Status = transitions[r.Intn(len(transitions))]
				st := time.Now()
				ok, err := mgr.WriteSession(storage.GlobalUpdate, &cp)
				stat.Append(&utils.Info{IsCommit: ok && err == nil, Latency: time.Since(st)})
			}
			finish <- true
		}(int64(th))
	}
	for th := 0; th < con; th++ {
		<-finish
	}
	stat.Log()

	// removal keys the old status list off the record, so refresh first
	for _, g := range sessions {
		cur, err := mgr.ReadSession(g.XID, false)
		configs.CheckError(err)
		if cur == nil {
			continue
		}
		_, err = mgr.WriteSession(storage.GlobalRemove, cur)
		configs.CheckError(err)
	}
}
