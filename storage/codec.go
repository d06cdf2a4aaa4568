package storage

import (
	"strconv"

	"TC/session"
)

// Hash field names form the record schema shared with other TC instances.
// Every number travels as a base-10 string, enums as their integer codes.
const (
	fieldXID             = "xid"
	fieldTransactionID   = "transactionId"
	fieldStatus          = "status"
	fieldApplicationID   = "applicationId"
	fieldServiceGroup    = "transactionServiceGroup"
	fieldTransactionName = "transactionName"
	fieldTimeout         = "timeout"
	fieldBeginTime       = "beginTime"
	fieldApplicationData = "applicationData"
	fieldGmtCreate       = "gmtCreate"
	fieldGmtModified     = "gmtModified"
	fieldBranchID        = "branchId"
	fieldResourceGroupID = "resourceGroupId"
	fieldResourceID      = "resourceId"
	fieldClientID        = "clientId"
	fieldBranchType      = "branchType"
)

func encodeGlobal(g *session.GlobalSession) map[string]interface{} {
	m := map[string]interface{}{
		fieldXID:             g.XID,
		fieldTransactionID:   strconv.FormatInt(g.TransactionID, 10),
		fieldStatus:          strconv.Itoa(int(g.Status)),
		fieldApplicationID:   g.ApplicationID,
		fieldServiceGroup:    g.TransactionServiceGroup,
		fieldTransactionName: g.TransactionName,
		fieldTimeout:         strconv.FormatInt(g.Timeout, 10),
		fieldBeginTime:       strconv.FormatInt(g.BeginTime, 10),
		fieldGmtCreate:       strconv.FormatInt(g.GmtCreate, 10),
		fieldGmtModified:     strconv.FormatInt(g.GmtModified, 10),
	}
	if g.ApplicationData != "" {
		m[fieldApplicationData] = g.ApplicationData
	}
	return m
}

func decodeGlobal(m map[string]string) *session.GlobalSession {
	return &session.GlobalSession{
		XID:                     m[fieldXID],
		TransactionID:           parseInt64(m[fieldTransactionID]),
		Status:                  session.GlobalStatus(parseInt64(m[fieldStatus])),
		ApplicationID:           m[fieldApplicationID],
		TransactionServiceGroup: m[fieldServiceGroup],
		TransactionName:         m[fieldTransactionName],
		Timeout:                 parseInt64(m[fieldTimeout]),
		BeginTime:               parseInt64(m[fieldBeginTime]),
		ApplicationData:         m[fieldApplicationData],
		GmtCreate:               parseInt64(m[fieldGmtCreate]),
		GmtModified:             parseInt64(m[fieldGmtModified]),
	}
}

func encodeBranch(b *session.BranchSession) map[string]interface{} {
	m := map[string]interface{}{
		fieldXID:             b.XID,
		fieldTransactionID:   strconv.FormatInt(b.TransactionID, 10),
		fieldBranchID:        strconv.FormatInt(b.BranchID, 10),
		fieldResourceGroupID: b.ResourceGroupID,
		fieldResourceID:      b.ResourceID,
		fieldClientID:        b.ClientID,
		fieldBranchType:      strconv.Itoa(int(b.BranchType)),
		fieldStatus:          strconv.Itoa(int(b.Status)),
		fieldGmtCreate:       strconv.FormatInt(b.GmtCreate, 10),
		fieldGmtModified:     strconv.FormatInt(b.GmtModified, 10),
	}
	if b.ApplicationData != "" {
		m[fieldApplicationData] = b.ApplicationData
	}
	return m
}

func decodeBranch(m map[string]string) *session.BranchSession {
	return &session.BranchSession{
		XID:             m[fieldXID],
		TransactionID:   parseInt64(m[fieldTransactionID]),
		BranchID:        parseInt64(m[fieldBranchID]),
		ResourceGroupID: m[fieldResourceGroupID],
		ResourceID:      m[fieldResourceID],
		ClientID:        m[fieldClientID],
		BranchType:      session.BranchType(parseInt64(m[fieldBranchType])),
		Status:          session.BranchStatus(parseInt64(m[fieldStatus])),
		ApplicationData: m[fieldApplicationData],
		GmtCreate:       parseInt64(m[fieldGmtCreate]),
		GmtModified:     parseInt64(m[fieldGmtModified]),
	}
}

// parseInt64 tolerates absent or malformed fields, decoding them as zero so a
// record written by a newer peer never fails a read here.
func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
