package session

// GlobalStatus is the lifecycle status of a global transaction. The integer
// codes are wire values shared with every TC peer on the same backing store
// and must never be renumbered.
type GlobalStatus int

const (
	StatusUnKnown                 GlobalStatus = 0
	StatusBegin                   GlobalStatus = 1
	StatusCommitting              GlobalStatus = 2
	StatusCommitRetrying          GlobalStatus = 3
	StatusRollbacking             GlobalStatus = 4
	StatusRollbackRetrying        GlobalStatus = 5
	StatusTimeoutRollbacking      GlobalStatus = 6
	StatusTimeoutRollbackRetrying GlobalStatus = 7
	StatusAsyncCommitting         GlobalStatus = 8
	StatusCommitted               GlobalStatus = 9
	StatusCommitFailed            GlobalStatus = 10
	StatusRollbacked              GlobalStatus = 11
	StatusRollbackFailed          GlobalStatus = 12
	StatusTimeoutRollbacked       GlobalStatus = 13
	StatusTimeoutRollbackFailed   GlobalStatus = 14
	StatusFinished                GlobalStatus = 15
)

var globalStatusNames = map[GlobalStatus]string{
	StatusUnKnown:                 "UnKnown",
	StatusBegin:                   "Begin",
	StatusCommitting:              "Committing",
	StatusCommitRetrying:          "CommitRetrying",
	StatusRollbacking:             "Rollbacking",
	StatusRollbackRetrying:        "RollbackRetrying",
	StatusTimeoutRollbacking:      "TimeoutRollbacking",
	StatusTimeoutRollbackRetrying: "TimeoutRollbackRetrying",
	StatusAsyncCommitting:         "AsyncCommitting",
	StatusCommitted:               "Committed",
	StatusCommitFailed:            "CommitFailed",
	StatusRollbacked:              "Rollbacked",
	StatusRollbackFailed:          "RollbackFailed",
	StatusTimeoutRollbacked:       "TimeoutRollbacked",
	StatusTimeoutRollbackFailed:   "TimeoutRollbackFailed",
	StatusFinished:                "Finished",
}

func (s GlobalStatus) String() string {
	if name, ok := globalStatusNames[s]; ok {
		return name
	}
	return "Invalid"
}

// BranchStatus is the phase outcome reported for a branch transaction.
type BranchStatus int

const (
	BranchStatusUnknown                   BranchStatus = 0
	BranchStatusRegistered                BranchStatus = 1
	BranchStatusPhaseOneDone              BranchStatus = 2
	BranchStatusPhaseOneFailed            BranchStatus = 3
	BranchStatusPhaseOneTimeout           BranchStatus = 4
	BranchStatusPhaseTwoCommitted         BranchStatus = 5
	BranchStatusPhaseTwoCommitRetryable   BranchStatus = 6
	BranchStatusPhaseTwoCommitUnretryable BranchStatus = 7
	BranchStatusPhaseTwoRollbacked        BranchStatus = 8
	BranchStatusPhaseTwoRbackRetryable    BranchStatus = 9
	BranchStatusPhaseTwoRbackUnretryable  BranchStatus = 10
)

// BranchType is the resource-manager mode of a branch.
type BranchType int

const (
	BranchTypeAT   BranchType = 0
	BranchTypeTCC  BranchType = 1
	BranchTypeSAGA BranchType = 2
	BranchTypeXA   BranchType = 3
)

func (t BranchType) String() string {
	switch t {
	case BranchTypeAT:
		return "AT"
	case BranchTypeTCC:
		return "TCC"
	case BranchTypeSAGA:
		return "SAGA"
	case BranchTypeXA:
		return "XA"
	default:
		return "Invalid"
	}
}
