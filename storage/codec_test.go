package storage

import (
	"testing"

	"github.com/magiconair/properties/assert"

	"TC/session"
)

func TestGlobalCodec(t *testing.T) {
	g := &session.GlobalSession{
		XID:                     "10.0.0.1:8091:42",
		TransactionID:           42,
		Status:                  session.StatusCommitRetrying,
		ApplicationID:           "order-app",
		TransactionServiceGroup: "default_tx_group",
		TransactionName:         "purchase",
		Timeout:                 60000,
		BeginTime:               1724400000000,
		GmtCreate:               1724400000000,
		GmtModified:             1724400001000,
	}
	m := encodeGlobal(g)
	assert.Equal(t, m[fieldStatus], "3")
	assert.Equal(t, m[fieldTransactionID], "42")
	// absent applicationData stays off the wire
	_, present := m[fieldApplicationData]
	assert.Equal(t, present, false)

	flat := make(map[string]string, len(m))
	for k, v := range m {
		flat[k] = v.(string)
	}
	got := decodeGlobal(flat)
	assert.Equal(t, got.XID, g.XID)
	assert.Equal(t, got.TransactionID, g.TransactionID)
	assert.Equal(t, got.Status, g.Status)
	assert.Equal(t, got.Timeout, g.Timeout)
	assert.Equal(t, got.GmtModified, g.GmtModified)
}

func TestBranchCodecTolerantDecode(t *testing.T) {
	// fields written by a newer peer, plus a malformed number
	m := map[string]string{
		fieldXID:        "10.0.0.1:8091:42",
		fieldBranchID:   "7",
		fieldStatus:     "not-a-number",
		fieldBranchType: "1",
		"someNewField":  "whatever",
	}
	b := decodeBranch(m)
	assert.Equal(t, b.BranchID, int64(7))
	assert.Equal(t, b.Status, session.BranchStatus(0))
	assert.Equal(t, b.BranchType, session.BranchTypeTCC)
}
