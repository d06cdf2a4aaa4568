package session

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildXID assembles the user-visible global transaction id from the TC
// address and the local transaction id.
func BuildXID(ip string, port int, transactionID int64) string {
	return fmt.Sprintf("%s:%d:%d", ip, port, transactionID)
}

// TransactionIDFromXID extracts the embedded transaction id. The address part
// may itself contain colons, so the split uses the last one.
func TransactionIDFromXID(xid string) (int64, error) {
	idx := strings.LastIndex(xid, ":")
	if idx < 0 || idx == len(xid)-1 {
		return 0, fmt.Errorf("invalid xid %q", xid)
	}
	tid, err := strconv.ParseInt(xid[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid xid %q: %w", xid, err)
	}
	return tid, nil
}
