package session

import (
	"sort"
)

// Storable is the marker for records accepted by the store's write path.
type Storable interface {
	storable()
}

// GlobalSession is the per-global-transaction record. gmtCreate and
// gmtModified are epoch milliseconds maintained by the store.
type GlobalSession struct {
	XID                     string
	TransactionID           int64
	Status                  GlobalStatus
	ApplicationID           string
	TransactionServiceGroup string
	TransactionName         string
	Timeout                 int64
	BeginTime               int64
	ApplicationData         string
	GmtCreate               int64
	GmtModified             int64

	Branches []*BranchSession
}

func (g *GlobalSession) storable() {}

// Add appends a branch to the in-memory aggregate. It does not persist.
func (g *GlobalSession) Add(b *BranchSession) {
	g.Branches = append(g.Branches, b)
}

// SortBranches orders the aggregate's branches by branchId ascending for
// deterministic replay.
func (g *GlobalSession) SortBranches() {
	sort.Slice(g.Branches, func(i, j int) bool {
		return g.Branches[i].BranchID < g.Branches[j].BranchID
	})
}

// BranchSession is the per-branch record owned by a GlobalSession via xid.
type BranchSession struct {
	BranchID        int64
	TransactionID   int64
	XID             string
	ResourceGroupID string
	ResourceID      string
	ClientID        string
	BranchType      BranchType
	Status          BranchStatus
	ApplicationData string
	GmtCreate       int64
	GmtModified     int64
}

func (b *BranchSession) storable() {}
