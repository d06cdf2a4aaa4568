package storage

import (
	"strconv"

	"TC/session"
)

// The key prefixes are shared wire state between TC peers and the recovery
// scan. They must never change across versions.
const (
	globalKeyPrefix     = "global:"
	branchKeyPrefix     = "branch:"
	branchListKeyPrefix = "branches:"
	statusKeyPrefix     = "status:"
	globalKeyPattern    = globalKeyPrefix + "*"
)

func buildGlobalKey(transactionID int64) string {
	return globalKeyPrefix + strconv.FormatInt(transactionID, 10)
}

func buildBranchKey(branchID int64) string {
	return branchKeyPrefix + strconv.FormatInt(branchID, 10)
}

func buildBranchListKey(xid string) string {
	return branchListKeyPrefix + xid
}

func buildStatusKey(status session.GlobalStatus) string {
	return statusKeyPrefix + strconv.Itoa(int(status))
}

func buildStatusKeyRaw(statusCode string) string {
	return statusKeyPrefix + statusCode
}
