package session

import (
	"testing"

	"github.com/magiconair/properties/assert"
)

func TestXIDRoundTrip(t *testing.T) {
	xid := BuildXID("1.1.1.1", 8091, 10)
	assert.Equal(t, xid, "1.1.1.1:8091:10")
	tid, err := TransactionIDFromXID(xid)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, tid, int64(10))
}

func TestXIDLastColonWins(t *testing.T) {
	// IPv6-ish addresses keep their inner colons.
	tid, err := TransactionIDFromXID("fe80::1:8091:424242")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, tid, int64(424242))
}

func TestXIDInvalid(t *testing.T) {
	for _, xid := range []string{"", "no-colon", "1.1.1.1:8091:", "1.1.1.1:8091:abc"} {
		if _, err := TransactionIDFromXID(xid); err == nil {
			t.Fatalf("expected error for %q", xid)
		}
	}
}

func TestBranchSortOrder(t *testing.T) {
	g := &GlobalSession{XID: "1.1.1.1:8091:10"}
	g.Add(&BranchSession{BranchID: 103})
	g.Add(&BranchSession{BranchID: 101})
	g.Add(&BranchSession{BranchID: 102})
	g.SortBranches()
	assert.Equal(t, g.Branches[0].BranchID, int64(101))
	assert.Equal(t, g.Branches[1].BranchID, int64(102))
	assert.Equal(t, g.Branches[2].BranchID, int64(103))
}
