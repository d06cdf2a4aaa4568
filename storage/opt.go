package storage

// LogOperation is the kind of session mutation submitted to WriteSession.
type LogOperation uint8

const (
	GlobalAdd LogOperation = iota
	GlobalUpdate
	GlobalRemove
	BranchAdd
	BranchUpdate
	BranchRemove
)

func (op LogOperation) String() string {
	switch op {
	case GlobalAdd:
		return "GLOBAL_ADD"
	case GlobalUpdate:
		return "GLOBAL_UPDATE"
	case GlobalRemove:
		return "GLOBAL_REMOVE"
	case BranchAdd:
		return "BRANCH_ADD"
	case BranchUpdate:
		return "BRANCH_UPDATE"
	case BranchRemove:
		return "BRANCH_REMOVE"
	default:
		return "UNKNOWN"
	}
}
